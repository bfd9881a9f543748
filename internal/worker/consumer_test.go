package worker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/thaihoc1310/streamvod/internal/apperr"
	"github.com/thaihoc1310/streamvod/internal/events"
	"github.com/thaihoc1310/streamvod/internal/metrics"
	"github.com/thaihoc1310/streamvod/internal/testsupport"
	"github.com/thaihoc1310/streamvod/internal/worker"
	"github.com/thaihoc1310/streamvod/pkg/inbox"
)

type fakeInbox struct {
	mu         sync.Mutex
	batches    [][]inbox.Message
	receiveErr []error
	deleted    []string
}

func (f *fakeInbox) Receive(ctx context.Context) ([]inbox.Message, error) {
	f.mu.Lock()
	if len(f.receiveErr) > 0 {
		err := f.receiveErr[0]
		f.receiveErr = f.receiveErr[1:]
		f.mu.Unlock()
		return nil, err
	}
	if len(f.batches) > 0 {
		b := f.batches[0]
		f.batches = f.batches[1:]
		f.mu.Unlock()
		return b, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeInbox) Delete(_ context.Context, receipt string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, receipt)
	return nil
}

func (f *fakeInbox) Deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func msg(id string) inbox.Message {
	return inbox.Message{ID: id, Body: `{"id":"` + id + `"}`, ReceiptHandle: "rh-" + id}
}

func TestConsumerHandleResults(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		want    string
		deleted bool
	}{
		{"success", nil, worker.ResultHandled, true},
		{"malformed body", events.ErrMalformed, worker.ResultPoison, true},
		{"validation", apperr.Validation("op", "bad key"), worker.ResultRejected, false},
		{"consistency", apperr.Consistency("op", "unknown video", nil), worker.ResultRejected, false},
		{"external", apperr.External("op", "transcoder down", testsupport.ErrInjected), worker.ResultRetry, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := &fakeInbox{}
			c := worker.NewConsumer("test", in, func(context.Context, []byte) error { return tt.err }, nil)
			before := testutil.ToFloat64(metrics.InboxMessages.WithLabelValues("test", tt.want))

			got := c.Handle(context.Background(), msg("m1"))
			assert.Equal(t, tt.want, got)
			if tt.deleted {
				assert.Equal(t, []string{"rh-m1"}, in.Deleted())
			} else {
				assert.Empty(t, in.Deleted())
			}
			assert.Equal(t, before+1, testutil.ToFloat64(metrics.InboxMessages.WithLabelValues("test", tt.want)))
		})
	}
}

func TestConsumerLogsPoisonBody(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	c := worker.NewConsumer("storage", &fakeInbox{}, func(context.Context, []byte) error { return events.ErrMalformed }, zap.New(core))

	c.Handle(context.Background(), inbox.Message{ID: "m1", Body: "not json", ReceiptHandle: "rh"})

	entries := logs.FilterMessage("discarding malformed message").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "not json", entries[0].ContextMap()["body"])
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
}

func TestConsumerRunProcessesUntilCancelled(t *testing.T) {
	in := &fakeInbox{
		receiveErr: []error{testsupport.ErrInjected},
		batches:    [][]inbox.Message{{msg("a")}, {msg("b")}},
	}
	var (
		mu   sync.Mutex
		seen []string
	)
	c := worker.NewConsumer("test", in, func(_ context.Context, body []byte) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, string(body))
		return nil
	}, nil).WithBackoff(time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(in.Deleted()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{`{"id":"a"}`, `{"id":"b"}`}, seen)
}
