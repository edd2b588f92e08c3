package models

import (
	"encoding/base64"
	"time"
)

// MaxUploadBytes is the largest upload the pipeline accepts.
const MaxUploadBytes = 5 << 20

// ImageRecord is the metadata kept for every ingested image.
// BlobLocation and CreatedAt never change after creation; Processed and
// DerivedArtifact are only mutated by the processing worker.
type ImageRecord struct {
	ImageID         string    `json:"imageId" db:"image_id"`
	BlobLocation    string    `json:"blobLocation" db:"blob_location"`
	DerivedArtifact string    `json:"derivedArtifact" db:"derived_artifact"`
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
	Processed       bool      `json:"processed" db:"processed"`
}

// Field names a record attribute that may be updated after creation.
type Field string

const (
	FieldProcessed       Field = "processed"
	FieldDerivedArtifact Field = "derivedArtifact"
)

// ProcessingState is derived, never stored. Dispatched is implicit in the
// pipeline and indistinguishable from Pending by looking at a record.
type ProcessingState string

const (
	StatePending   ProcessingState = "pending"
	StateCompleted ProcessingState = "completed"
)

func (r ImageRecord) State() ProcessingState {
	if r.Processed {
		return StateCompleted
	}
	return StatePending
}

// DataURI inlines raw bytes for preview use.
func DataURI(contentType string, data []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DispatchEvent is the only payload crossing the processing boundary.
type DispatchEvent struct {
	ImageID string `json:"imageId"`
}
