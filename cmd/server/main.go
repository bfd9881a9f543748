// Package main runs the upload API and notification webhooks with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/thaihoc1310/streamvod/config"
	"github.com/thaihoc1310/streamvod/internal/auth"
	"github.com/thaihoc1310/streamvod/internal/events"
	"github.com/thaihoc1310/streamvod/internal/middleware"
	"github.com/thaihoc1310/streamvod/internal/reconciler"
	"github.com/thaihoc1310/streamvod/internal/transcode"
	"github.com/thaihoc1310/streamvod/internal/uploads"
	"github.com/thaihoc1310/streamvod/internal/videos"
	"github.com/thaihoc1310/streamvod/pkg/database"
	"github.com/thaihoc1310/streamvod/pkg/queue"
	"github.com/thaihoc1310/streamvod/pkg/redis"
	"github.com/thaihoc1310/streamvod/pkg/response"
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

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

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

	s3Client, err := storage.NewS3(ctx, storage.S3Config{
		Region:          cfg.AWS.Region,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
		UseAccelerate:   cfg.AWS.UseAccelerate,
	}, logger)
	if err != nil {
		logger.Fatal("s3", zap.Error(err))
	}
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

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	videoRepo := videos.NewRepository(pool)

	// Uploads
	uploadManager := uploads.NewManager(
		videoRepo,
		uploads.NewRedisSessionStore(rdb.Client),
		s3Client.Bucket(cfg.AWS.SourceBucket),
		uploads.Options{PartURLTTL: cfg.AWS.PresignExpire(), SessionTTL: cfg.AWS.SessionTTL()},
		logger,
	)
	uploadHandler := uploads.NewHandler(uploadManager, logger)

	// Notifications pushed over HTTP take the same path as the SQS inbox.
	submitter := transcode.NewSubmitter(mc, transcode.NewRepository(pool), cfg.AWS.OutputBucket, logger)
	var scheduler reconciler.ReplicationScheduler
	if cfg.Replica.Enabled() {
		scheduler = queue.NewQueue(rdb.Client, logger)
	}
	rec := reconciler.New(videoRepo, mc, scheduler, cfg.CDN.Domain, logger)
	webhookHandler := events.NewWebhookHandler(events.NewDispatcher(submitter, rec, logger), logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) {
		hctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(hctx); err != nil {
			response.Error(c, err)
			return
		}
		if err := rdb.Health(hctx); err != nil {
			response.Error(c, err)
			return
		}
		response.OK(c, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	uploadHandler.Register(api)

	// Webhooks (shared secret instead of JWT)
	hooks := router.Group("/webhooks")
	hooks.Use(middleware.SharedSecret(cfg.Webhook.Secret))
	webhookHandler.Register(hooks)
	if cfg.Webhook.Secret == "" {
		logger.Warn("webhook secret not set; notification webhooks are unauthenticated")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
