package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/thaihoc1310/streamvod/internal/apperr"
	"github.com/thaihoc1310/streamvod/internal/events"
	"github.com/thaihoc1310/streamvod/internal/metrics"
	"github.com/thaihoc1310/streamvod/pkg/inbox"
)

// Inbox results, used as the metric label.
const (
	ResultHandled  = "handled"
	ResultPoison   = "poison"
	ResultRejected = "rejected"
	ResultRetry    = "retry"
)

// DefaultReceiveBackoff is the pause after a failed receive.
const DefaultReceiveBackoff = 5 * time.Second

// Inbox is a queue of notification messages.
type Inbox interface {
	Receive(ctx context.Context) ([]inbox.Message, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// HandleFunc processes one message body.
type HandleFunc func(ctx context.Context, body []byte) error

// Consumer drains one inbox, one message at a time.
type Consumer struct {
	source  string
	inbox   Inbox
	handle  HandleFunc
	backoff time.Duration
	logger  *zap.Logger
}

// NewConsumer creates a consumer. source names the inbox in logs and metrics.
func NewConsumer(source string, in Inbox, handle HandleFunc, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{
		source:  source,
		inbox:   in,
		handle:  handle,
		backoff: DefaultReceiveBackoff,
		logger:  logger.With(zap.String("source", source)),
	}
}

// WithBackoff overrides the pause after a failed receive.
func (c *Consumer) WithBackoff(d time.Duration) *Consumer {
	c.backoff = d
	return c
}

// Run polls until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	c.logger.Info("inbox consumer started")
	for {
		if ctx.Err() != nil {
			c.logger.Info("inbox consumer stopping")
			return
		}
		msgs, err := c.inbox.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			c.logger.Error("receive message error", zap.Error(err))
			sleep(ctx, c.backoff)
			continue
		}
		for _, m := range msgs {
			c.Handle(ctx, m)
		}
	}
}

// Handle processes one message and reports the result. The message is
// deleted when it was handled or can never be parsed; anything else stays
// on the queue so its visibility timeout and redrive policy take over.
func (c *Consumer) Handle(ctx context.Context, m inbox.Message) string {
	log := c.logger.With(zap.String("message_id", m.ID), zap.String("receive_count", m.ReceiveCount))
	err := c.handle(ctx, []byte(m.Body))

	var result string
	switch {
	case err == nil:
		result = ResultHandled
	case errors.Is(err, events.ErrMalformed):
		result = ResultPoison
		log.Error("discarding malformed message", zap.String("body", m.Body), zap.Error(err))
	case apperr.IsKind(err, apperr.KindValidation), apperr.IsKind(err, apperr.KindConsistency):
		result = ResultRejected
		log.Error("message rejected, leaving it for redrive", zap.String("body", m.Body), zap.Error(err))
	default:
		result = ResultRetry
		log.Warn("message handling failed, will be redelivered", zap.Error(err))
	}
	metrics.InboxMessages.WithLabelValues(c.source, result).Inc()

	if result == ResultHandled || result == ResultPoison {
		if err := c.inbox.Delete(ctx, m.ReceiptHandle); err != nil {
			log.Warn("delete message failed", zap.Error(err))
		}
	}
	return result
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
