package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

// S3Config holds S3 client configuration. Endpoint is set for S3-compatible
// stores (e.g. Alibaba OSS); leave it empty for AWS.
type S3Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	UsePathStyle    bool
	UseAccelerate   bool
}

// S3 provides the object store operations used by the pipeline.
type S3 struct {
	client   *s3.Client
	presign  *s3.PresignClient
	uploader *manager.Uploader
	cfg      S3Config
	logger   *zap.Logger
}

// Part is one finished part of a multipart upload.
type Part struct {
	Number int32
	ETag   string
}

// ObjectInfo is a listed object.
type ObjectInfo struct {
	Key  string
	Size int64
	ETag string
}

// NewS3 creates an S3 client using credentials from config or the default chain.
func NewS3(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	accessKey := cfg.AccessKeyID
	secretKey := cfg.SecretAccessKey
	if cfg.Endpoint == "" && (accessKey == "" || secretKey == "") {
		accessKey = os.Getenv("AWS_ACCESS_KEY_ID")
		secretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey, secretKey, "",
		)))
		logger.Info("S3 client using static credentials", zap.String("region", cfg.Region), zap.String("endpoint", cfg.Endpoint))
	} else {
		logger.Warn("S3 client using default credential chain", zap.String("region", cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(normalizeEndpoint(cfg.Endpoint))
		}
		o.UsePathStyle = cfg.UsePathStyle
		o.UseAccelerate = cfg.UseAccelerate
	})
	return &S3{
		client:   client,
		presign:  s3.NewPresignClient(client),
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = 5 * 1024 * 1024
		}),
		cfg:    cfg,
		logger: logger,
	}, nil
}

func normalizeEndpoint(endpoint string) string {
	if len(endpoint) >= 7 && (endpoint[:7] == "http://" || (len(endpoint) >= 8 && endpoint[:8] == "https://")) {
		return endpoint
	}
	return "https://" + endpoint
}

// CreateMultipartUpload opens a multipart upload session and returns its upload ID.
func (s *S3) CreateMultipartUpload(ctx context.Context, bucket, key, contentType string) (string, error) {
	out, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("create multipart upload: %w", err)
	}
	return aws.ToString(out.UploadId), nil
}

// PresignUploadPart returns a pre-signed PUT URL for one part.
func (s *S3) PresignUploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int32, expires time.Duration) (string, error) {
	req, err := s.presign.PresignUploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(bucket),
		Key:        aws.String(key),
		UploadId:   aws.String(uploadID),
		PartNumber: aws.Int32(partNumber),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expires
	})
	if err != nil {
		return "", fmt.Errorf("presign upload part %d: %w", partNumber, err)
	}
	return req.URL, nil
}

// CompleteMultipartUpload finalizes the upload and returns the object ETag.
func (s *S3) CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []Part) (string, error) {
	completed := make([]types.CompletedPart, 0, len(parts))
	for _, p := range parts {
		completed = append(completed, types.CompletedPart{
			PartNumber: aws.Int32(p.Number),
			ETag:       aws.String(p.ETag),
		})
	}
	out, err := s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(bucket),
		Key:             aws.String(key),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return "", fmt.Errorf("complete multipart upload: %w", err)
	}
	return aws.ToString(out.ETag), nil
}

// AbortMultipartUpload discards an unfinished upload and its parts.
func (s *S3) AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error {
	_, err := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		return fmt.Errorf("abort multipart upload: %w", err)
	}
	return nil
}

// ListPage returns one page of objects under prefix. An empty next token means
// the listing is exhausted.
func (s *S3) ListPage(ctx context.Context, bucket, prefix, token string) ([]ObjectInfo, string, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	}
	if token != "" {
		input.ContinuationToken = aws.String(token)
	}
	out, err := s.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, "", fmt.Errorf("list objects %s: %w", prefix, err)
	}
	objects := make([]ObjectInfo, 0, len(out.Contents))
	for _, obj := range out.Contents {
		objects = append(objects, ObjectInfo{
			Key:  aws.ToString(obj.Key),
			Size: aws.ToInt64(obj.Size),
			ETag: aws.ToString(obj.ETag),
		})
	}
	next := ""
	if aws.ToBool(out.IsTruncated) {
		next = aws.ToString(out.NextContinuationToken)
	}
	return objects, next, nil
}

// GetObject reads a whole object and returns it with its content type.
func (s *S3) GetObject(ctx context.Context, bucket, key string) ([]byte, string, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", fmt.Errorf("get object: %w", err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read object body: %w", err)
	}
	return data, aws.ToString(out.ContentType), nil
}

// Upload streams a reader to S3. Large bodies go through the multipart uploader.
func (s *S3) Upload(ctx context.Context, bucket, key, contentType string, body io.Reader, contentLength int64) error {
	var contentLengthPtr *int64
	if contentLength > 0 {
		contentLengthPtr = &contentLength
	}
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: contentLengthPtr,
	})
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	return nil
}

// HeadBucket checks that the bucket exists and is reachable with our credentials.
func (s *S3) HeadBucket(ctx context.Context, bucket string) error {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return fmt.Errorf("head bucket %s: %w", bucket, err)
	}
	return nil
}

// Bucket binds the client to one bucket.
func (s *S3) Bucket(name string) *Bucket {
	return &Bucket{s3: s, name: name}
}

// Bucket is an S3 client bound to a single bucket.
type Bucket struct {
	s3   *S3
	name string
}

// Name returns the bucket name.
func (b *Bucket) Name() string { return b.name }

func (b *Bucket) CreateMultipartUpload(ctx context.Context, key, contentType string) (string, error) {
	return b.s3.CreateMultipartUpload(ctx, b.name, key, contentType)
}

func (b *Bucket) PresignUploadPart(ctx context.Context, key, uploadID string, partNumber int32, expires time.Duration) (string, error) {
	return b.s3.PresignUploadPart(ctx, b.name, key, uploadID, partNumber, expires)
}

func (b *Bucket) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []Part) (string, error) {
	return b.s3.CompleteMultipartUpload(ctx, b.name, key, uploadID, parts)
}

func (b *Bucket) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	return b.s3.AbortMultipartUpload(ctx, b.name, key, uploadID)
}

func (b *Bucket) ListPage(ctx context.Context, prefix, token string) ([]ObjectInfo, string, error) {
	return b.s3.ListPage(ctx, b.name, prefix, token)
}

func (b *Bucket) Get(ctx context.Context, key string) ([]byte, string, error) {
	return b.s3.GetObject(ctx, b.name, key)
}

func (b *Bucket) Put(ctx context.Context, key string, body []byte, contentType string) error {
	return b.s3.Upload(ctx, b.name, key, contentType, bytes.NewReader(body), int64(len(body)))
}

func (b *Bucket) Probe(ctx context.Context) error {
	return b.s3.HeadBucket(ctx, b.name)
}

// IsNotFound reports whether err is an S3 "does not exist" error for a key,
// bucket or multipart upload.
func IsNotFound(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "NoSuchKey", "NoSuchUpload", "NoSuchBucket", "NotFound":
		return true
	}
	return false
}
