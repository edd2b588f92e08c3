package ingest

import (
	"errors"
	"fmt"
)

var (
	ErrValidation    = errors.New("invalid upload")
	ErrBlobWrite     = errors.New("blob write failed")
	ErrMetadataWrite = errors.New("metadata write failed")
)

// OrphanedBlobError is returned when the blob was stored but its metadata
// record was not. The blob stays where it is; nothing rolls it back.
type OrphanedBlobError struct {
	BlobLocation string
	Err          error
}

func (e *OrphanedBlobError) Error() string {
	return fmt.Sprintf("%s (orphaned blob %s): %v", ErrMetadataWrite, e.BlobLocation, e.Err)
}

func (e *OrphanedBlobError) Is(target error) bool {
	return target == ErrMetadataWrite
}

func (e *OrphanedBlobError) Unwrap() error {
	return e.Err
}
