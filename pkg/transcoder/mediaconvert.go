// Package transcoder submits and inspects AWS Elemental MediaConvert jobs.
package transcoder

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/mediaconvert"
	"github.com/aws/aws-sdk-go-v2/service/mediaconvert/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

// MetadataVideoID is the job metadata key carrying the video ID.
const MetadataVideoID = "video_id"

// Config holds MediaConvert client settings.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	RoleARN         string
	QueueARN        string
}

// Rendition is one rung of the HLS ladder.
type Rendition struct {
	Name         string // e.g. "1080p"; also the output name modifier
	Width        int32
	Height       int32
	MaxBitrate   int32
	Profile      types.H264CodecProfile
	Level        types.H264CodecLevel
	AudioBitrate int32
}

// JobSpec describes one transcode of a source object.
type JobSpec struct {
	InputURI             string
	HLSDestination       string
	ThumbnailDestination string
	Ladder               []Rendition
	SegmentSeconds       int32
	GOPSeconds           float64
	Metadata             map[string]string
	IdempotencyToken     string
}

// Job is the subset of a MediaConvert job the pipeline reads.
type Job struct {
	ID         string
	Status     string
	DurationMs int64
	Metadata   map[string]string
	ErrorMsg   string
}

// MediaConvert wraps the MediaConvert API.
type MediaConvert struct {
	client *mediaconvert.Client
	cfg    Config
	logger *zap.Logger
}

// NewMediaConvert creates a client bound to the account-specific endpoint.
func NewMediaConvert(ctx context.Context, cfg Config, logger *zap.Logger) (*MediaConvert, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := mediaconvert.NewFromConfig(awsCfg, func(o *mediaconvert.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	logger.Info("MediaConvert client ready", zap.String("region", cfg.Region), zap.String("endpoint", cfg.Endpoint))
	return &MediaConvert{client: client, cfg: cfg, logger: logger}, nil
}

// SubmitJob creates a job and returns its ID.
func (m *MediaConvert) SubmitJob(ctx context.Context, spec JobSpec) (string, error) {
	input := &mediaconvert.CreateJobInput{
		Role:         aws.String(m.cfg.RoleARN),
		Settings:     BuildJobSettings(spec),
		UserMetadata: spec.Metadata,
	}
	if m.cfg.QueueARN != "" {
		input.Queue = aws.String(m.cfg.QueueARN)
	}
	if spec.IdempotencyToken != "" {
		input.ClientRequestToken = aws.String(spec.IdempotencyToken)
	}
	out, err := m.client.CreateJob(ctx, input)
	if err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	if out.Job == nil || out.Job.Id == nil {
		return "", errors.New("create job: response has no job id")
	}
	return aws.ToString(out.Job.Id), nil
}

// GetJob fetches a job's status, metadata and output duration.
func (m *MediaConvert) GetJob(ctx context.Context, jobID string) (*Job, error) {
	out, err := m.client.GetJob(ctx, &mediaconvert.GetJobInput{Id: aws.String(jobID)})
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	if out.Job == nil {
		return nil, fmt.Errorf("get job %s: empty response", jobID)
	}
	return jobFromAPI(out.Job), nil
}

func jobFromAPI(j *types.Job) *Job {
	job := &Job{
		ID:       aws.ToString(j.Id),
		Status:   string(j.Status),
		Metadata: j.UserMetadata,
		ErrorMsg: aws.ToString(j.ErrorMessage),
	}
	// Duration of the first output of the first group; every rendition has the same length.
	for _, group := range j.OutputGroupDetails {
		for _, out := range group.OutputDetails {
			if out.DurationInMs != nil {
				job.DurationMs = int64(aws.ToInt32(out.DurationInMs))
				return job
			}
		}
	}
	return job
}

// IsNotFound reports whether err is MediaConvert's unknown job error.
func IsNotFound(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.ErrorCode() == "NotFoundException"
}
