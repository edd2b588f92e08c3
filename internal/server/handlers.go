package server

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"image-platform/internal/ingest"
)

// multipart framing allowance on top of the file itself
const formOverhead = 1 << 20

type imageView struct {
	ImageID         string `json:"imageId"`
	ImageURL        string `json:"imageUrl"`
	Thumbnail       string `json:"thumbnail"`
	UploadedAt      string `json:"uploadedAt"`
	LambdaProcessed bool   `json:"lambdaProcessed"`
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Cloud Image Platform API",
		"version": version,
		"endpoints": gin.H{
			"health": "/health",
			"upload": "POST /api/upload",
			"images": "GET /api/images",
		},
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(timestampLayout),
		"service":   serviceName,
	})
}

func (s *Server) handleUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBytes+formOverhead)

	file, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}
	if file.Size > s.maxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
		return
	}

	src, err := file.Open()
	if err != nil {
		s.log.Error("open uploaded file", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Upload failed"})
		return
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		s.log.Error("read uploaded file", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Upload failed"})
		return
	}

	contentType, ok := imageContentType(file.Header.Get("Content-Type"), data)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only image files are allowed"})
		return
	}

	res, err := s.ingester.Ingest(c.Request.Context(), data, contentType)
	if err != nil {
		if errors.Is(err, ingest.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid image"})
			return
		}
		s.log.Error("upload error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Upload failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "Image uploaded successfully",
		"imageId":  res.ImageID,
		"imageUrl": res.BlobLocation,
	})
}

// imageContentType trusts the declared type only when the bytes also sniff
// as an image, and falls back to the sniffed type when nothing useful was declared.
func imageContentType(declared string, data []byte) (string, bool) {
	detected := mimetype.Detect(data)
	if !strings.HasPrefix(detected.String(), "image/") {
		return "", false
	}
	if strings.HasPrefix(declared, "image/") {
		return declared, true
	}
	return detected.String(), true
}

func (s *Server) handleListImages(c *gin.Context) {
	records, err := s.lister.List(c.Request.Context())
	if err != nil {
		s.log.Error("fetch images error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch images"})
		return
	}

	images := make([]imageView, 0, len(records))
	for _, rec := range records {
		images = append(images, imageView{
			ImageID:         rec.ImageID,
			ImageURL:        rec.BlobLocation,
			Thumbnail:       rec.DerivedArtifact,
			UploadedAt:      rec.CreatedAt.UTC().Format(timestampLayout),
			LambdaProcessed: rec.Processed,
		})
	}
	c.JSON(http.StatusOK, gin.H{"images": images})
}
