package uploads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/thaihoc1310/streamvod/internal/apperr"
	"github.com/thaihoc1310/streamvod/internal/models"
)

const (
	sessionKeyPrefix = "upload:session:"
	maxUpdateRetries = 5
)

// RedisSessionStore keeps upload sessions as JSON values that expire with the session.
type RedisSessionStore struct {
	client *redis.Client
}

// NewRedisSessionStore creates a Redis-backed session store.
func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

func sessionKey(videoID uuid.UUID) string {
	return sessionKeyPrefix + videoID.String()
}

// Create stores s until s.ExpiresAt.
func (r *RedisSessionStore) Create(ctx context.Context, s *models.UploadSession) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		return apperr.Validation("uploads.session_create", "session already expired")
	}
	ok, err := r.client.SetNX(ctx, sessionKey(s.VideoID), raw, ttl).Result()
	if err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	if !ok {
		return &apperr.Error{Kind: apperr.KindConflict, Op: "uploads.session_create", Msg: "upload session already exists"}
	}
	return nil
}

// Get loads the session of a video.
func (r *RedisSessionStore) Get(ctx context.Context, videoID uuid.UUID) (*models.UploadSession, error) {
	raw, err := r.client.Get(ctx, sessionKey(videoID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperr.NotFound("uploads.session_get", "upload session not found")
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	return decodeSession(raw)
}

// Update runs fn under WATCH so concurrent writers cannot interleave. The
// key keeps its remaining TTL.
func (r *RedisSessionStore) Update(ctx context.Context, videoID uuid.UUID, fn func(*models.UploadSession) error) (*models.UploadSession, error) {
	key := sessionKey(videoID)
	var updated *models.UploadSession
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return apperr.NotFound("uploads.session_update", "upload session not found")
			}
			return err
		}
		s, err := decodeSession(raw)
		if err != nil {
			return err
		}
		if err := fn(s); err != nil {
			return err
		}
		out, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetArgs(ctx, key, out, redis.SetArgs{KeepTTL: true})
			return nil
		})
		if err == nil {
			updated = s
		}
		return err
	}
	for i := 0; i < maxUpdateRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if apperr.KindOf(err) != apperr.KindInternal {
				return nil, err
			}
			return nil, fmt.Errorf("update session: %w", err)
		}
		return updated, nil
	}
	return nil, fmt.Errorf("update session: too much contention on %s", key)
}

func decodeSession(raw []byte) (*models.UploadSession, error) {
	var s models.UploadSession
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}
