// Package main runs the background workers: the SQS notification consumers
// and the replica sync processor.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/thaihoc1310/streamvod/config"
	"github.com/thaihoc1310/streamvod/internal/events"
	"github.com/thaihoc1310/streamvod/internal/reconciler"
	"github.com/thaihoc1310/streamvod/internal/replication"
	"github.com/thaihoc1310/streamvod/internal/transcode"
	"github.com/thaihoc1310/streamvod/internal/videos"
	"github.com/thaihoc1310/streamvod/internal/worker"
	"github.com/thaihoc1310/streamvod/pkg/database"
	"github.com/thaihoc1310/streamvod/pkg/inbox"
	"github.com/thaihoc1310/streamvod/pkg/queue"
	"github.com/thaihoc1310/streamvod/pkg/redis"
	"github.com/thaihoc1310/streamvod/pkg/storage"
	"github.com/thaihoc1310/streamvod/pkg/transcoder"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	mc, err := transcoder.NewMediaConvert(ctx, transcoder.Config{
		Region:          cfg.AWS.Region,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
		Endpoint:        cfg.Transcoder.Endpoint,
		RoleARN:         cfg.Transcoder.RoleARN,
		QueueARN:        cfg.Transcoder.QueueARN,
	}, logger)
	if err != nil {
		logger.Fatal("mediaconvert", zap.Error(err))
	}

	videoRepo := videos.NewRepository(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	var scheduler reconciler.ReplicationScheduler
	if cfg.Replica.Enabled() {
		scheduler = jobQueue
	}
	submitter := transcode.NewSubmitter(mc, transcode.NewRepository(pool), cfg.AWS.OutputBucket, logger)
	rec := reconciler.New(videoRepo, mc, scheduler, cfg.CDN.Domain, logger)
	dispatcher := events.NewDispatcher(submitter, rec, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	run := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(workerCtx)
		}()
	}

	inboxCfg := inbox.Config{
		Region:            cfg.AWS.Region,
		AccessKeyID:       cfg.AWS.AccessKeyID,
		SecretAccessKey:   cfg.AWS.SecretAccessKey,
		WaitTimeSeconds:   int32(cfg.Inbox.WaitTimeSeconds),
		VisibilitySeconds: int32(cfg.Inbox.VisibilitySeconds),
	}
	consumers := []struct {
		source   string
		queueURL string
		handle   worker.HandleFunc
	}{
		{"uploads", cfg.Inbox.UploadsQueueURL, dispatcher.ObjectCreated},
		{"transcoder", cfg.Inbox.TranscodeQueueURL, dispatcher.JobStateChange},
	}
	for _, c := range consumers {
		if c.queueURL == "" {
			logger.Warn("inbox queue not configured", zap.String("source", c.source))
			continue
		}
		q, err := inbox.NewSQS(ctx, c.queueURL, inboxCfg, logger)
		if err != nil {
			logger.Fatal("sqs", zap.String("source", c.source), zap.Error(err))
		}
		run(worker.NewConsumer(c.source, q, c.handle, logger).Run)
	}

	if cfg.Replica.Enabled() {
		output, err := storage.NewS3(ctx, storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
		}, logger)
		if err != nil {
			logger.Fatal("s3", zap.Error(err))
		}
		replica, err := storage.NewS3(ctx, storage.S3Config{
			Region:          cfg.Replica.Region,
			AccessKeyID:     cfg.Replica.AccessKeyID,
			SecretAccessKey: cfg.Replica.SecretAccessKey,
			Endpoint:        cfg.Replica.Endpoint,
			UsePathStyle:    cfg.Replica.UsePathStyle,
		}, logger)
		if err != nil {
			logger.Fatal("replica", zap.Error(err))
		}
		engine := replication.NewEngine(
			output.Bucket(cfg.AWS.OutputBucket),
			replica.Bucket(cfg.Replica.Bucket),
			replication.Options{Concurrency: cfg.Replication.Concurrency, ObjectTimeout: cfg.Replication.ObjectTimeout()},
			logger,
		)
		run(worker.NewReplicationProcessor(videoRepo, engine, jobQueue, worker.ProcessorOptions{}, logger).Run)
	} else {
		logger.Warn("replica store not configured; replication disabled")
	}

	metricsSrv := &http.Server{Addr: ":" + cfg.Server.MetricsPort, Handler: promhttp.Handler()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server", zap.Error(err))
		}
	}()
	logger.Info("worker started", zap.String("metrics_port", cfg.Server.MetricsPort))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	wg.Wait()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	_ = metricsSrv.Shutdown(shutdownCtx)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
