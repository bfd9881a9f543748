// Package replication copies a ready video's HLS renditions and thumbnail
// from the output bucket to the replica store.
package replication

import (
	"context"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/thaihoc1310/streamvod/internal/apperr"
	"github.com/thaihoc1310/streamvod/internal/metrics"
	"github.com/thaihoc1310/streamvod/internal/models"
	"github.com/thaihoc1310/streamvod/pkg/storage"
)

const (
	DefaultConcurrency   = 8
	DefaultObjectTimeout = 60 * time.Second

	thumbnailContentType = "image/jpeg"
)

// Source is the bucket holding transcoder outputs.
type Source interface {
	ListPage(ctx context.Context, prefix, token string) ([]storage.ObjectInfo, string, error)
	Get(ctx context.Context, key string) ([]byte, string, error)
}

// Destination is the replica bucket.
type Destination interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Probe(ctx context.Context) error
}

// Options tunes the copy pool.
type Options struct {
	Concurrency   int
	ObjectTimeout time.Duration
}

// Engine is the Replication Fan-out Engine.
type Engine struct {
	src    Source
	dst    Destination
	opts   Options
	logger *zap.Logger
}

type task struct {
	key    string
	family models.ObjectFamily
}

// NewEngine creates an engine copying from src to dst.
func NewEngine(src Source, dst Destination, opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.ObjectTimeout <= 0 {
		opts.ObjectTimeout = DefaultObjectTimeout
	}
	return &Engine{src: src, dst: dst, opts: opts, logger: logger}
}

// Replicate copies every output object of videoID. An unreachable replica or
// a failed listing fails the whole batch before any copy starts. Per-object
// failures are counted in the result, which is successful only when none failed.
func (e *Engine) Replicate(ctx context.Context, videoID uuid.UUID) (*models.ReplicationResult, error) {
	const op = "replication.replicate"
	start := time.Now()

	if err := e.dst.Probe(ctx); err != nil {
		return nil, apperr.External(op, "replica store is unreachable", err)
	}

	streams, err := e.list(ctx, storage.HLSPrefix(videoID), models.FamilyStream)
	if err != nil {
		return nil, apperr.External(op, "failed to list renditions", err)
	}
	thumbs, err := e.list(ctx, storage.ThumbnailPrefix(videoID), models.FamilyThumbnail)
	if err != nil {
		return nil, apperr.External(op, "failed to list thumbnails", err)
	}
	tasks := append(streams, thumbs...)

	outcomes := make([]models.ObjectOutcome, len(tasks))
	var g errgroup.Group
	g.SetLimit(e.opts.Concurrency)
	for i, t := range tasks {
		g.Go(func() error {
			outcomes[i] = e.copy(ctx, t)
			return nil
		})
	}
	_ = g.Wait()

	res := &models.ReplicationResult{VideoID: videoID, Objects: outcomes}
	for _, o := range outcomes {
		if o.Synced {
			res.Synced++
			res.TotalBytes += o.Bytes
		} else {
			res.Failed++
		}
	}
	res.Success = res.Failed == 0

	metrics.ReplicationDuration.Observe(time.Since(start).Seconds())
	e.logger.Info("replication finished",
		zap.String("video_id", videoID.String()),
		zap.Int("synced_files", res.Synced),
		zap.Float64("total_mb", float64(res.TotalBytes)/(1024*1024)),
		zap.Int("failed_files", res.Failed),
		zap.Duration("elapsed", time.Since(start)))
	return res, nil
}

// list walks every page under prefix.
func (e *Engine) list(ctx context.Context, prefix string, family models.ObjectFamily) ([]task, error) {
	var (
		tasks []task
		token string
	)
	for {
		page, next, err := e.src.ListPage(ctx, prefix, token)
		if err != nil {
			return nil, err
		}
		for _, obj := range page {
			if strings.HasSuffix(obj.Key, "/") {
				continue
			}
			tasks = append(tasks, task{key: obj.Key, family: family})
		}
		if next == "" {
			return tasks, nil
		}
		token = next
	}
}

func (e *Engine) copy(ctx context.Context, t task) models.ObjectOutcome {
	out := models.ObjectOutcome{Key: t.key, Family: t.family}
	ctx, cancel := context.WithTimeout(ctx, e.opts.ObjectTimeout)
	defer cancel()

	body, contentType, err := e.src.Get(ctx, t.key)
	if err == nil {
		switch {
		case t.family == models.FamilyThumbnail:
			contentType = thumbnailContentType
		case contentType == "":
			contentType = mimetype.Detect(body).String()
		}
		err = e.dst.Put(ctx, t.key, body, contentType)
	}
	if err != nil {
		out.Error = err.Error()
		metrics.ReplicationObjects.WithLabelValues(string(t.family), metrics.OutcomeFailed).Inc()
		e.logger.Warn("replica copy failed", zap.String("key", t.key), zap.Error(err))
		return out
	}
	out.Synced = true
	out.Bytes = int64(len(body))
	metrics.ReplicationObjects.WithLabelValues(string(t.family), metrics.OutcomeSucceeded).Inc()
	metrics.ReplicationBytes.Add(float64(out.Bytes))
	return out
}
