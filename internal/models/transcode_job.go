package models

import (
	"time"

	"github.com/google/uuid"
)

// TranscodeJobRef correlates a video with the transcoder job producing its renditions.
// The transcoder remains the source of truth for job progress.
type TranscodeJobRef struct {
	VideoID     uuid.UUID `json:"video_id"`
	JobID       string    `json:"job_id"`
	Ladder      []string  `json:"ladder"`
	SubmittedAt time.Time `json:"submitted_at"`
}
