// Package transcode turns new source uploads into transcoder jobs.
package transcode

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thaihoc1310/streamvod/internal/apperr"
	"github.com/thaihoc1310/streamvod/internal/events"
	"github.com/thaihoc1310/streamvod/internal/metrics"
	"github.com/thaihoc1310/streamvod/internal/models"
	"github.com/thaihoc1310/streamvod/pkg/storage"
	"github.com/thaihoc1310/streamvod/pkg/transcoder"
)

// Output layout and encoding parameters shared by every job.
const (
	SegmentSeconds = 4
	GOPSeconds     = 2.0
)

// Transcoder submits jobs.
type Transcoder interface {
	SubmitJob(ctx context.Context, spec transcoder.JobSpec) (string, error)
}

// JobRefStore records which job produced a video's renditions.
type JobRefStore interface {
	Save(ctx context.Context, ref models.TranscodeJobRef) error
}

// Submitter is the Transcode Job Submitter.
type Submitter struct {
	transcoder   Transcoder
	refs         JobRefStore // optional
	outputBucket string
	ladder       []transcoder.Rendition
	logger       *zap.Logger
	now          func() time.Time
}

// NewSubmitter creates a submitter writing to outputBucket. refs may be nil.
func NewSubmitter(tc Transcoder, refs JobRefStore, outputBucket string, logger *zap.Logger) *Submitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Submitter{
		transcoder:   tc,
		refs:         refs,
		outputBucket: outputBucket,
		ladder:       transcoder.DefaultLadder,
		logger:       logger,
		now:          time.Now,
	}
}

// HandleObjectCreated satisfies events.ObjectCreatedHandler.
func (s *Submitter) HandleObjectCreated(ctx context.Context, evt events.ObjectCreated) error {
	_, err := s.Submit(ctx, evt)
	return err
}

// Submit builds the job for a new source object and submits it. Failures are
// returned to the trigger for redelivery; nothing is retried here.
func (s *Submitter) Submit(ctx context.Context, evt events.ObjectCreated) (*models.TranscodeJobRef, error) {
	const op = "transcode.submit"
	if !strings.HasPrefix(evt.Key, storage.UploadPrefix) {
		return nil, apperr.Validation(op, "object key is outside the upload prefix: "+evt.Key)
	}
	videoID, ok := storage.VideoIDFromSourceKey(evt.Key)
	if !ok {
		return nil, apperr.Validation(op, "object key does not name a video id: "+evt.Key)
	}

	spec := s.BuildJob(evt.Bucket, evt.Key, videoID)
	jobID, err := s.transcoder.SubmitJob(ctx, spec)
	if err != nil {
		metrics.TranscodeSubmissions.WithLabelValues("error").Inc()
		return nil, apperr.External(op, "failed to submit transcode job", err)
	}
	metrics.TranscodeSubmissions.WithLabelValues("submitted").Inc()

	ref := models.TranscodeJobRef{
		VideoID:     videoID,
		JobID:       jobID,
		Ladder:      transcoder.LadderNames(s.ladder),
		SubmittedAt: s.now().UTC(),
	}
	if s.refs != nil {
		if err := s.refs.Save(ctx, ref); err != nil {
			s.logger.Warn("failed to record transcode job", zap.String("video_id", videoID.String()), zap.String("job_id", jobID), zap.Error(err))
		}
	}
	s.logger.Info("transcode job submitted",
		zap.String("video_id", videoID.String()),
		zap.String("job_id", jobID),
		zap.Strings("ladder", ref.Ladder))
	return &ref, nil
}

// BuildJob describes the transcode of one source object: the HLS ladder into a
// flat per-video directory and a single thumbnail frame.
func (s *Submitter) BuildJob(bucket, key string, videoID uuid.UUID) transcoder.JobSpec {
	return transcoder.JobSpec{
		InputURI:             storage.S3URI(bucket, key),
		HLSDestination:       storage.S3URI(s.outputBucket, storage.HLSPrefix(videoID)),
		ThumbnailDestination: storage.S3URI(s.outputBucket, storage.ThumbnailPrefix(videoID)),
		Ladder:               s.ladder,
		SegmentSeconds:       SegmentSeconds,
		GOPSeconds:           GOPSeconds,
		Metadata:             map[string]string{transcoder.MetadataVideoID: videoID.String()},
		IdempotencyToken:     videoID.String(),
	}
}
