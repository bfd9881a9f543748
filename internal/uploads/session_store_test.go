package uploads

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

	"github.com/thaihoc1310/streamvod/internal/apperr"
	"github.com/thaihoc1310/streamvod/internal/models"
)

func newRedisStore(t *testing.T) (*RedisSessionStore, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisSessionStore(client), mr, client
}

func openSession(ttl time.Duration) *models.UploadSession {
	now := time.Now().UTC()
	return &models.UploadSession{
		VideoID:   uuid.New(),
		UploadID:  "upload-1",
		SourceKey: "uploads/source.mp4",
		OwnerID:   uuid.New(),
		State:     models.UploadStateOpen,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

func TestRedisSessionStoreCreateAndGet(t *testing.T) {
	store, mr, _ := newRedisStore(t)
	ctx := context.Background()
	s := openSession(time.Hour)

	require.NoError(t, store.Create(ctx, s))
	ttl := mr.TTL(sessionKey(s.VideoID))
	assert.Greater(t, ttl, 59*time.Minute)
	assert.LessOrEqual(t, ttl, time.Hour)

	got, err := store.Get(ctx, s.VideoID)
	require.NoError(t, err)
	assert.Equal(t, s.UploadID, got.UploadID)
	assert.Equal(t, s.OwnerID, got.OwnerID)
	assert.Equal(t, models.UploadStateOpen, got.State)
}

func TestRedisSessionStoreCreateConflict(t *testing.T) {
	store, _, _ := newRedisStore(t)
	ctx := context.Background()
	s := openSession(time.Hour)
	require.NoError(t, store.Create(ctx, s))

	dup := *s
	dup.UploadID = "upload-2"
	err := store.Create(ctx, &dup)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	got, err := store.Get(ctx, s.VideoID)
	require.NoError(t, err)
	assert.Equal(t, "upload-1", got.UploadID, "the first session is not overwritten")
}

func TestRedisSessionStoreCreateRejectsExpired(t *testing.T) {
	store, mr, _ := newRedisStore(t)
	s := openSession(-time.Minute)

	err := store.Create(context.Background(), s)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	assert.False(t, mr.Exists(sessionKey(s.VideoID)))
}

func TestRedisSessionStoreMissingSession(t *testing.T) {
	store, _, _ := newRedisStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, uuid.New())
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	_, err = store.Update(ctx, uuid.New(), func(*models.UploadSession) error { return nil })
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestRedisSessionStoreUpdateKeepsTTL(t *testing.T) {
	store, mr, _ := newRedisStore(t)
	ctx := context.Background()
	s := openSession(time.Hour)
	require.NoError(t, store.Create(ctx, s))
	mr.FastForward(30 * time.Minute)

	updated, err := store.Update(ctx, s.VideoID, func(s *models.UploadSession) error {
		s.PartCount = 3
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, updated.PartCount)

	ttl := mr.TTL(sessionKey(s.VideoID))
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, 30*time.Minute)

	mr.FastForward(31 * time.Minute)
	_, err = store.Get(ctx, s.VideoID)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound), "the session still expires on its original deadline")
}

func TestRedisSessionStoreUpdatePropagatesFnError(t *testing.T) {
	store, _, _ := newRedisStore(t)
	ctx := context.Background()
	s := openSession(time.Hour)
	require.NoError(t, store.Create(ctx, s))

	_, err := store.Update(ctx, s.VideoID, func(*models.UploadSession) error {
		return apperr.WithOp(apperr.ErrSessionClosed, "uploads.complete")
	})
	assert.ErrorIs(t, err, apperr.ErrSessionClosed)

	plain := errors.New("boom")
	_, err = store.Update(ctx, s.VideoID, func(*models.UploadSession) error { return plain })
	assert.ErrorIs(t, err, plain)

	got, err := store.Get(ctx, s.VideoID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.PartCount, "a failed update writes nothing")
}

func TestRedisSessionStoreUpdateRetriesOnConcurrentWrite(t *testing.T) {
	store, _, client := newRedisStore(t)
	ctx := context.Background()
	s := openSession(time.Hour)
	require.NoError(t, store.Create(ctx, s))

	calls := 0
	updated, err := store.Update(ctx, s.VideoID, func(cur *models.UploadSession) error {
		calls++
		if calls == 1 {
			other := *cur
			other.PartCount = 10
			raw, err := json.Marshal(other)
			require.NoError(t, err)
			require.NoError(t, client.SetArgs(ctx, sessionKey(s.VideoID), raw, redis.SetArgs{KeepTTL: true}).Err())
		}
		cur.PartCount++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 11, updated.PartCount)

	got, err := store.Get(ctx, s.VideoID)
	require.NoError(t, err)
	assert.Equal(t, 11, got.PartCount)
}
