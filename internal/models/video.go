package models

import (
	"time"

	"github.com/google/uuid"
)

// VideoStatus is the lifecycle state of a video as seen by the pipeline.
type VideoStatus string

// Video lifecycle. processing is the initial state; ready and failed are terminal.
const (
	VideoStatusProcessing VideoStatus = "processing"
	VideoStatusReady      VideoStatus = "ready"
	VideoStatusFailed     VideoStatus = "failed"
)

// videoTransitions lists every legal move. Anything absent is rejected.
var videoTransitions = map[VideoStatus][]VideoStatus{
	VideoStatusProcessing: {VideoStatusReady, VideoStatusFailed},
}

// Valid reports whether s is one of the known states.
func (s VideoStatus) Valid() bool {
	switch s {
	case VideoStatusProcessing, VideoStatusReady, VideoStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s VideoStatus) Terminal() bool {
	return s.Valid() && len(videoTransitions[s]) == 0
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to VideoStatus) bool {
	for _, next := range videoTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionSources returns the states from which to can be reached.
func TransitionSources(to VideoStatus) []VideoStatus {
	var out []VideoStatus
	for _, from := range []VideoStatus{VideoStatusProcessing, VideoStatusReady, VideoStatusFailed} {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

// Video is the shared video entity. The pipeline writes only the status, the
// playback fields and duration; title/description belong to the catalog API.
type Video struct {
	ID              uuid.UUID   `json:"id"`
	UploaderID      uuid.UUID   `json:"uploader_id"`
	Title           string      `json:"title"`
	Description     string      `json:"description,omitempty"`
	Status          VideoStatus `json:"status"`
	SourceKey       string      `json:"source_key"`
	DestPrefix      string      `json:"dest_prefix,omitempty"`
	HLSMasterKey    string      `json:"hls_master_key,omitempty"`
	PlaybackURL     string      `json:"playback_url,omitempty"`
	ThumbnailURL    string      `json:"thumbnail_url,omitempty"`
	DurationSeconds int         `json:"duration_seconds"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// ReadyUpdate carries the fields written when a transcode completes.
type ReadyUpdate struct {
	HLSMasterKey    string
	PlaybackURL     string
	ThumbnailURL    string
	DurationSeconds int
}

// Apply copies the update onto v and marks it ready.
func (u ReadyUpdate) Apply(v *Video) {
	v.Status = VideoStatusReady
	v.HLSMasterKey = u.HLSMasterKey
	v.PlaybackURL = u.PlaybackURL
	v.ThumbnailURL = u.ThumbnailURL
	v.DurationSeconds = u.DurationSeconds
}
