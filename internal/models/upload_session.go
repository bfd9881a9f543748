package models

import (
	"time"

	"github.com/google/uuid"
)

// UploadState is the state of a multipart upload session.
type UploadState string

const (
	UploadStateOpen      UploadState = "open"
	UploadStateCompleted UploadState = "completed"
	UploadStateAborted   UploadState = "aborted"
)

// Terminal reports whether the session can no longer be used.
func (s UploadState) Terminal() bool {
	return s == UploadStateCompleted || s == UploadStateAborted
}

// MaxUploadParts is the object store's limit on parts per multipart upload.
const MaxUploadParts = 10000

// UploadSession tracks one multipart upload of a video source file.
type UploadSession struct {
	VideoID   uuid.UUID      `json:"video_id"`
	UploadID  string         `json:"upload_id"`
	SourceKey string         `json:"source_key"`
	OwnerID   uuid.UUID      `json:"owner_id"`
	PartCount int            `json:"part_count"` // 0 until part URLs are first requested
	Parts     map[int]string `json:"parts,omitempty"`
	State     UploadState    `json:"state"`
	FinalETag string         `json:"final_etag,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// CompletedPart is one uploaded part as reported by the client.
type CompletedPart struct {
	PartNumber int    `json:"part_number"`
	ETag       string `json:"etag"`
}

// PartURL is a presigned handle for uploading one part.
type PartURL struct {
	PartNumber int    `json:"part_number"`
	URL        string `json:"url"`
}
