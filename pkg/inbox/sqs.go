// Package inbox long-polls SQS queues carrying storage and transcoder notifications.
package inbox

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"
)

// Config holds SQS client settings.
type Config struct {
	Region            string
	AccessKeyID       string
	SecretAccessKey   string
	WaitTimeSeconds   int32
	VisibilitySeconds int32
}

// Message is one received notification.
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
	ReceiveCount  string
}

// SQS receives and acknowledges messages from one queue.
type SQS struct {
	client   *sqs.Client
	queueURL string
	cfg      Config
	logger   *zap.Logger
}

// NewSQS creates an SQS inbox for queueURL.
func NewSQS(ctx context.Context, queueURL string, cfg Config, logger *zap.Logger) (*SQS, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueURL == "" {
		return nil, fmt.Errorf("sqs queue url is empty")
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
	return &SQS{
		client:   sqs.NewFromConfig(awsCfg),
		queueURL: queueURL,
		cfg:      cfg,
		logger:   logger.With(zap.String("queue_url", queueURL)),
	}, nil
}

// Receive long-polls for up to one message. An empty slice means the wait elapsed.
func (q *SQS) Receive(ctx context.Context) ([]Message, error) {
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     q.cfg.WaitTimeSeconds,
		VisibilityTimeout:   q.cfg.VisibilitySeconds,
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("receive message: %w", err)
	}
	msgs := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		msgs = append(msgs, Message{
			ID:            aws.ToString(m.MessageId),
			Body:          aws.ToString(m.Body),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
			ReceiveCount:  m.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)],
		})
	}
	return msgs, nil
}

// Delete acknowledges a processed message.
func (q *SQS) Delete(ctx context.Context, receiptHandle string) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// QueueURL returns the queue this inbox reads.
func (q *SQS) QueueURL() string { return q.queueURL }
