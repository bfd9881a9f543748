// Package worker runs the background loops of the pipeline: the notification
// inbox consumers and the replica sync processor.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thaihoc1310/streamvod/internal/models"
	"github.com/thaihoc1310/streamvod/pkg/queue"
)

// JobQueue is the replication job queue.
type JobQueue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job, cause error) (bool, error)
}

// Replicator copies a video's outputs to the replica store.
type Replicator interface {
	Replicate(ctx context.Context, videoID uuid.UUID) (*models.ReplicationResult, error)
}

// VideoReader loads videos.
type VideoReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Video, error)
}

// ProcessorOptions tunes the replication loop.
type ProcessorOptions struct {
	PollTimeout time.Duration
	Backoff     time.Duration
}

// ReplicationProcessor runs replica sync jobs: check the video is ready, copy, retry on failure.
type ReplicationProcessor struct {
	videos VideoReader
	engine Replicator
	queue  JobQueue
	opts   ProcessorOptions
	logger *zap.Logger
}

// NewReplicationProcessor creates a replication processor.
func NewReplicationProcessor(videos VideoReader, engine Replicator, q JobQueue, opts ProcessorOptions, logger *zap.Logger) *ReplicationProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 5 * time.Second
	}
	if opts.Backoff <= 0 {
		opts.Backoff = queue.RetryBackoff
	}
	return &ReplicationProcessor{videos: videos, engine: engine, queue: q, opts: opts, logger: logger}
}

// Process executes one replication job.
func (p *ReplicationProcessor) Process(ctx context.Context, job *queue.Job) error {
	payload, err := queue.DecodeReplication(job)
	if err != nil {
		return err
	}
	video, err := p.videos.GetByID(ctx, payload.VideoID)
	if err != nil {
		return fmt.Errorf("load video: %w", err)
	}
	if video.Status != models.VideoStatusReady {
		return fmt.Errorf("video %s is %s, not ready", video.ID, video.Status)
	}

	res, err := p.engine.Replicate(ctx, payload.VideoID)
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("replication incomplete: %d of %d objects failed", res.Failed, res.Synced+res.Failed)
	}
	p.logger.Info("replication job completed",
		zap.String("job_id", job.ID),
		zap.String("video_id", payload.VideoID.String()),
		zap.Int("synced_files", res.Synced))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *ReplicationProcessor) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			p.logger.Info("replication worker stopping")
			return
		}

		job, err := p.queue.Dequeue(ctx, p.opts.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			sleep(ctx, p.opts.Backoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)), zap.Int("attempt", job.Attempt))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if _, reErr := p.queue.Retry(ctx, job, err); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.String("job_id", job.ID), zap.Error(reErr))
			}
			sleep(ctx, p.opts.Backoff)
		}
	}
}
