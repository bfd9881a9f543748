package events

import (
	"context"

	"go.uber.org/zap"
)

// ObjectCreatedHandler reacts to a new source object.
type ObjectCreatedHandler interface {
	HandleObjectCreated(ctx context.Context, evt ObjectCreated) error
}

// JobStateHandler reacts to a transcoder job state change.
type JobStateHandler interface {
	HandleJobStateChange(ctx context.Context, evt JobStateChange) error
}

// Dispatcher parses raw notification bodies and hands them to the component
// responsible. It is shared by the SQS consumers and the HTTP webhooks.
type Dispatcher struct {
	objects ObjectCreatedHandler
	jobs    JobStateHandler
	logger  *zap.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(objects ObjectCreatedHandler, jobs JobStateHandler, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{objects: objects, jobs: jobs, logger: logger}
}

// ObjectCreated handles a storage notification body. Records are processed in
// order and the first failure is returned so the whole notification is redelivered.
func (d *Dispatcher) ObjectCreated(ctx context.Context, body []byte) error {
	records, err := ParseObjectCreated(body)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		d.logger.Debug("storage notification without object-created records")
		return nil
	}
	for _, r := range records {
		if err := d.objects.HandleObjectCreated(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// JobStateChange handles a transcoder notification body.
func (d *Dispatcher) JobStateChange(ctx context.Context, body []byte) error {
	evt, err := ParseJobStateChange(body)
	if err != nil {
		return err
	}
	return d.jobs.HandleJobStateChange(ctx, evt)
}
