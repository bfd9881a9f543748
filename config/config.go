package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/thaihoc1310/streamvod/pkg/storage"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	AWS         AWSConfig
	Transcoder  TranscoderConfig
	CDN         CDNConfig
	Replica     ReplicaConfig
	Replication ReplicationConfig
	Inbox       InboxConfig
	Webhook     WebhookConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
	MetricsPort        string // worker only; the server exposes /metrics on Port
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/streamvod?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// JWTConfig holds the secret used to validate caller tokens.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// AWSConfig holds AWS credentials, buckets and upload session settings.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	SourceBucket         string // multipart uploads land here
	OutputBucket         string // transcoder output (HLS + thumbnails)
	UseAccelerate        bool   // S3 Transfer Acceleration for part uploads
	PresignExpireMinutes int
	UploadSessionHours   int
}

// TranscoderConfig holds MediaConvert settings.
type TranscoderConfig struct {
	Endpoint string // account-specific MediaConvert endpoint
	RoleARN  string
	QueueARN string // optional; default queue when empty
}

// CDNConfig holds the public playback domain.
type CDNConfig struct {
	Domain string
}

// ReplicaConfig describes the secondary S3-compatible store (e.g. Alibaba OSS).
type ReplicaConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UsePathStyle    bool
}

// ReplicationConfig bounds the replication fan-out.
type ReplicationConfig struct {
	Concurrency          int
	ObjectTimeoutSeconds int
}

// InboxConfig holds the SQS queues carrying storage and transcoder notifications.
type InboxConfig struct {
	UploadsQueueURL   string
	TranscodeQueueURL string
	WaitTimeSeconds   int
	VisibilitySeconds int
}

// WebhookConfig protects the notification webhooks. Empty disables the check.
type WebhookConfig struct {
	Secret string
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// PresignExpire returns how long a part upload URL stays valid.
func (c AWSConfig) PresignExpire() time.Duration {
	if c.PresignExpireMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.PresignExpireMinutes) * time.Minute
}

// SessionTTL returns how long an upload session is kept.
func (c AWSConfig) SessionTTL() time.Duration {
	if c.UploadSessionHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.UploadSessionHours) * time.Hour
}

// ObjectTimeout returns the per-object copy timeout.
func (c ReplicationConfig) ObjectTimeout() time.Duration {
	if c.ObjectTimeoutSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.ObjectTimeoutSeconds) * time.Second
}

// Enabled reports whether a replica store is configured.
func (c ReplicaConfig) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000"),
			MetricsPort:        getEnv("METRICS_PORT", "2112"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "streamvod"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 10),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			SourceBucket:         getEnv("S3_SOURCE_BUCKET", "streamvod-bucket"),
			OutputBucket:         getEnv("S3_OUTPUT_BUCKET", "streamvod-output"),
			UseAccelerate:        getEnvBool("S3_USE_ACCELERATE", true),
			PresignExpireMinutes: getEnvInt("PRESIGNED_EXPIRE_MINUTES", 15),
			UploadSessionHours:   getEnvInt("UPLOAD_SESSION_HOURS", 24),
		},
		Transcoder: TranscoderConfig{
			Endpoint: getEnv("MEDIACONVERT_ENDPOINT", ""),
			RoleARN:  getEnv("MEDIACONVERT_ROLE_ARN", ""),
			QueueARN: getEnv("MEDIACONVERT_QUEUE_ARN", ""),
		},
		CDN: CDNConfig{
			Domain: storage.CDNHost(getEnv("CDN_DOMAIN", "")),
		},
		Replica: ReplicaConfig{
			Endpoint:        getEnv("OSS_ENDPOINT", ""),
			Region:          getEnv("OSS_REGION", "cn-hongkong"),
			AccessKeyID:     getEnv("OSS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("OSS_ACCESS_KEY_SECRET", ""),
			Bucket:          getEnv("OSS_BUCKET", "streamvod-output-oss"),
			UsePathStyle:    getEnvBool("OSS_USE_PATH_STYLE", false),
		},
		Replication: ReplicationConfig{
			Concurrency:          getEnvInt("REPLICATION_CONCURRENCY", 8),
			ObjectTimeoutSeconds: getEnvInt("REPLICATION_OBJECT_TIMEOUT_SEC", 60),
		},
		Inbox: InboxConfig{
			UploadsQueueURL:   getEnv("SQS_UPLOADS_QUEUE_URL", ""),
			TranscodeQueueURL: getEnv("SQS_TRANSCODE_QUEUE_URL", ""),
			WaitTimeSeconds:   getEnvInt("SQS_WAIT_TIME_SEC", 20),
			VisibilitySeconds: getEnvInt("SQS_VISIBILITY_TIMEOUT_SEC", 120),
		},
		Webhook: WebhookConfig{
			Secret: getEnv("WEBHOOK_SECRET", ""),
		},
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
