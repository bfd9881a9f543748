// Package reconciler drives the video lifecycle from transcoder job state changes.
//
// Deliveries are at-least-once and unordered. Every write is a single
// conditional update out of processing, so the first terminal event for a
// video wins and later ones are reported, not applied.
package reconciler

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thaihoc1310/streamvod/internal/apperr"
	"github.com/thaihoc1310/streamvod/internal/events"
	"github.com/thaihoc1310/streamvod/internal/metrics"
	"github.com/thaihoc1310/streamvod/internal/models"
	"github.com/thaihoc1310/streamvod/pkg/queue"
	"github.com/thaihoc1310/streamvod/pkg/storage"
	"github.com/thaihoc1310/streamvod/pkg/transcoder"
)

// VideoStore applies conditional status updates.
type VideoStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Video, error)
	MarkReady(ctx context.Context, id uuid.UUID, u models.ReadyUpdate) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID) (bool, error)
}

// JobSource reads job detail from the transcoder.
type JobSource interface {
	GetJob(ctx context.Context, jobID string) (*transcoder.Job, error)
}

// ReplicationScheduler queues a replica sync for a ready video.
type ReplicationScheduler interface {
	EnqueueReplication(ctx context.Context, p queue.ReplicationPayload) error
}

// Result is what an event did to the video.
type Result string

const (
	// Applied: the event moved the video out of processing.
	Applied Result = "applied"
	// Duplicate: the video was already in the state the event asks for.
	Duplicate Result = "duplicate"
	// IgnoredTerminal: the video already reached the other terminal state.
	IgnoredTerminal Result = "ignored_terminal"
	// Skipped: a non-terminal job status; nothing to do.
	Skipped Result = "skipped"
)

// Outcome describes how one event was reconciled.
type Outcome struct {
	JobID       string
	Status      string
	VideoID     uuid.UUID
	Result      Result
	VideoStatus models.VideoStatus // state of the video after the event
}

// Ready reports whether the video is ready after the event.
func (o Outcome) Ready() bool { return o.VideoStatus == models.VideoStatusReady }

// Reconciler is the Completion Reconciler.
type Reconciler struct {
	videos    VideoStore
	jobs      JobSource
	scheduler ReplicationScheduler // optional
	cdnDomain string
	logger    *zap.Logger
}

// New creates a reconciler. scheduler may be nil when no replica is configured.
func New(videos VideoStore, jobs JobSource, scheduler ReplicationScheduler, cdnDomain string, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{videos: videos, jobs: jobs, scheduler: scheduler, cdnDomain: cdnDomain, logger: logger}
}

// HandleJobStateChange satisfies events.JobStateHandler. When the video ends
// up ready, a replica sync is queued; failing to queue it fails the event so
// redelivery retries it.
func (r *Reconciler) HandleJobStateChange(ctx context.Context, evt events.JobStateChange) error {
	out, err := r.Handle(ctx, evt)
	if err != nil {
		return err
	}
	if r.scheduler == nil || !out.Ready() || out.Result == IgnoredTerminal {
		return nil
	}
	if err := r.scheduler.EnqueueReplication(ctx, queue.ReplicationPayload{VideoID: out.VideoID, JobID: out.JobID}); err != nil {
		return apperr.External("reconciler.schedule_replication", "failed to queue replication", err)
	}
	return nil
}

// Handle applies one job state change to its video.
func (r *Reconciler) Handle(ctx context.Context, evt events.JobStateChange) (Outcome, error) {
	const op = "reconciler.handle"
	out := Outcome{JobID: evt.JobID, Status: evt.Status}

	var target models.VideoStatus
	switch evt.Status {
	case events.StatusComplete:
		target = models.VideoStatusReady
	case events.StatusError, events.StatusCanceled:
		target = models.VideoStatusFailed
	default:
		out.Result = Skipped
		r.record(out)
		r.logger.Debug("ignoring non-terminal job status", zap.String("job_id", evt.JobID), zap.String("status", evt.Status))
		return out, nil
	}

	job, err := r.jobs.GetJob(ctx, evt.JobID)
	if err != nil {
		if transcoder.IsNotFound(err) {
			return out, &apperr.Error{Kind: apperr.KindNotFound, Op: op, Msg: "transcode job not found", Err: err}
		}
		return out, apperr.External(op, "failed to fetch transcode job", err)
	}
	videoID, err := videoIDFromJob(job)
	if err != nil {
		r.logger.Error("job state change cannot be mapped to a video", zap.String("job_id", evt.JobID), zap.Error(err))
		return out, err
	}
	out.VideoID = videoID

	var applied bool
	if target == models.VideoStatusReady {
		applied, err = r.videos.MarkReady(ctx, videoID, r.readyUpdate(videoID, job))
	} else {
		applied, err = r.videos.MarkFailed(ctx, videoID)
	}
	if err != nil {
		return out, apperr.Internal(op, "failed to update video", err)
	}
	if applied {
		out.Result = Applied
		out.VideoStatus = target
		r.record(out)
		r.logger.Info("video status updated",
			zap.String("video_id", videoID.String()),
			zap.String("job_id", evt.JobID),
			zap.String("status", string(target)))
		return out, nil
	}

	// Nothing matched: find out why.
	video, err := r.videos.GetByID(ctx, videoID)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			r.logger.Error("job refers to an unknown video", zap.String("video_id", videoID.String()), zap.String("job_id", evt.JobID))
			return out, apperr.Consistency(op, "job refers to an unknown video", err)
		}
		return out, apperr.Internal(op, "failed to load video", err)
	}
	out.VideoStatus = video.Status
	switch {
	case video.Status == target:
		out.Result = Duplicate
		r.logger.Info("duplicate job state change", zap.String("video_id", videoID.String()), zap.String("job_id", evt.JobID), zap.String("status", evt.Status))
	case video.Status.Terminal():
		out.Result = IgnoredTerminal
		r.logger.Warn("job state change for a video already in a terminal state",
			zap.String("video_id", videoID.String()),
			zap.String("job_id", evt.JobID),
			zap.String("event_status", evt.Status),
			zap.String("video_status", string(video.Status)))
	default:
		return out, apperr.Internal(op, "conditional update matched nothing for video in "+string(video.Status), nil)
	}
	r.record(out)
	return out, nil
}

func (r *Reconciler) readyUpdate(videoID uuid.UUID, job *transcoder.Job) models.ReadyUpdate {
	manifest := storage.MasterManifestKey(videoID)
	return models.ReadyUpdate{
		HLSMasterKey:    manifest,
		PlaybackURL:     storage.CDNURL(r.cdnDomain, manifest),
		ThumbnailURL:    storage.CDNURL(r.cdnDomain, storage.ThumbnailKey(videoID)),
		DurationSeconds: int(job.DurationMs / 1000),
	}
}

func (r *Reconciler) record(out Outcome) {
	metrics.ReconcileOutcomes.WithLabelValues(out.Status, string(out.Result)).Inc()
}

func videoIDFromJob(job *transcoder.Job) (uuid.UUID, error) {
	const op = "reconciler.video_id"
	raw, ok := job.Metadata[transcoder.MetadataVideoID]
	if !ok || raw == "" {
		return uuid.Nil, apperr.Consistency(op, "job metadata has no video_id", nil)
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, apperr.Consistency(op, "job metadata video_id is not a valid id", err)
	}
	return id, nil
}
