package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis, *observer.ObservedLogs) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	core, logs := observer.New(zap.DebugLevel)
	return NewQueue(client, zap.New(core)), mr, logs
}

func TestDecodeReplication(t *testing.T) {
	id := uuid.New()
	body, err := json.Marshal(ReplicationPayload{VideoID: id, JobID: "job-1"})
	require.NoError(t, err)

	p, err := DecodeReplication(&Job{Type: JobTypeReplication, Payload: body})
	require.NoError(t, err)
	assert.Equal(t, id, p.VideoID)
	assert.Equal(t, "job-1", p.JobID)
}

func TestDecodeReplicationRejects(t *testing.T) {
	_, err := DecodeReplication(&Job{Type: "email", Payload: json.RawMessage(`{}`)})
	assert.Error(t, err)

	_, err = DecodeReplication(&Job{Type: JobTypeReplication, Payload: json.RawMessage(`{"video_id":"00000000-0000-0000-0000-000000000000"}`)})
	assert.Error(t, err)

	_, err = DecodeReplication(&Job{Type: JobTypeReplication, Payload: json.RawMessage(`not json`)})
	assert.Error(t, err)
}

func TestEnqueueThenDequeue(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, q.EnqueueReplication(ctx, ReplicationPayload{VideoID: id, JobID: "job-7"}))

	job, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, JobTypeReplication, job.Type)
	assert.Equal(t, 0, job.Attempt)
	assert.NotEmpty(t, job.ID)

	p, err := DecodeReplication(job)
	require.NoError(t, err)
	assert.Equal(t, id, p.VideoID)
	assert.Equal(t, "job-7", p.JobID)
}

func TestDequeueEmptyQueueTimesOut(t *testing.T) {
	q, _, _ := newTestQueue(t)

	job, err := q.Dequeue(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestDequeueDiscardsUnreadableEntry(t *testing.T) {
	q, mr, logs := newTestQueue(t)
	_, err := mr.Push(QueueReplication, "not json")
	require.NoError(t, err)

	job, err := q.Dequeue(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.Equal(t, 1, logs.FilterMessage("invalid job payload").Len())
	assert.False(t, mr.Exists(QueueReplication), "the entry is consumed, not left to block the queue")
}

func TestRetryRequeuesThenDeadLetters(t *testing.T) {
	q, mr, _ := newTestQueue(t)
	ctx := context.Background()
	body, err := json.Marshal(ReplicationPayload{VideoID: uuid.New()})
	require.NoError(t, err)
	job := &Job{ID: "job-1", Type: JobTypeReplication, Payload: body}
	cause := errors.New("replica unreachable")

	for attempt := 1; attempt < MaxRetries; attempt++ {
		dead, err := q.Retry(ctx, job, cause)
		require.NoError(t, err)
		assert.False(t, dead)
		assert.Equal(t, attempt, job.Attempt)

		requeued, err := q.Dequeue(ctx, time.Second)
		require.NoError(t, err)
		require.NotNil(t, requeued)
		assert.Equal(t, attempt, requeued.Attempt)
		assert.Equal(t, "replica unreachable", requeued.LastError)
		job = requeued
	}

	dead, err := q.Retry(ctx, job, cause)
	require.NoError(t, err)
	assert.True(t, dead)
	assert.False(t, mr.Exists(QueueReplication))

	dlq, err := mr.List(QueueDLQ)
	require.NoError(t, err)
	require.Len(t, dlq, 1)
	var parked Job
	require.NoError(t, json.Unmarshal([]byte(dlq[0]), &parked))
	assert.Equal(t, "job-1", parked.ID)
	assert.Equal(t, MaxRetries, parked.Attempt)
}

func TestQueueSurfacesRedisErrors(t *testing.T) {
	q, mr, _ := newTestQueue(t)
	mr.SetError("ERR injected")

	err := q.EnqueueReplication(context.Background(), ReplicationPayload{VideoID: uuid.New()})
	assert.Error(t, err)

	_, err = q.Dequeue(context.Background(), time.Second)
	assert.Error(t, err)
}
