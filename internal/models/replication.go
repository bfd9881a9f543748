package models

import "github.com/google/uuid"

// ObjectFamily groups replicated objects by how their content type is handled.
type ObjectFamily string

const (
	FamilyStream    ObjectFamily = "stream" // HLS manifests and segments
	FamilyThumbnail ObjectFamily = "thumbnail"
)

// ObjectOutcome is the result of copying one object.
type ObjectOutcome struct {
	Key    string       `json:"key"`
	Family ObjectFamily `json:"family"`
	Synced bool         `json:"synced"`
	Bytes  int64        `json:"bytes,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// ReplicationResult summarizes one replication run for a video.
type ReplicationResult struct {
	VideoID    uuid.UUID       `json:"video_id"`
	Objects    []ObjectOutcome `json:"objects"`
	Synced     int             `json:"synced_files"`
	Failed     int             `json:"failed_files"`
	TotalBytes int64           `json:"total_bytes"`
	Success    bool            `json:"success"`
}
