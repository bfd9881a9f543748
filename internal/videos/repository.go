// Package videos persists the video entity shared with the catalog API.
// The pipeline owns the status column and the playback fields.
package videos

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/thaihoc1310/streamvod/internal/apperr"
	"github.com/thaihoc1310/streamvod/internal/models"
)

// Repository handles video persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a videos repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectColumns = `id, uploader_id, title, COALESCE(description,''), status, source_key, COALESCE(dest_prefix,''),
	COALESCE(hls_master_key,''), COALESCE(playback_url,''), COALESCE(thumbnail_url,''), duration_seconds, created_at, updated_at`

// Create inserts a new video in the processing state.
func (r *Repository) Create(ctx context.Context, v *models.Video) error {
	const q = `INSERT INTO videos (id, uploader_id, title, description, status, source_key, dest_prefix)
		VALUES ($1, $2, $3, NULLIF($4,''), $5, $6, NULLIF($7,''))
		RETURNING created_at, updated_at`
	if v.Status == "" {
		v.Status = models.VideoStatusProcessing
	}
	err := r.pool.QueryRow(ctx, q, v.ID, v.UploaderID, v.Title, v.Description, v.Status, v.SourceKey, v.DestPrefix).
		Scan(&v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return createError(err)
	}
	return nil
}

const uniqueViolation = "23505"

// createError reports a duplicate id as a conflict so the upload manager
// does not treat it as a storage outage.
func createError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return &apperr.Error{Kind: apperr.KindConflict, Op: "videos.create", Msg: "video already exists", Err: err}
	}
	return fmt.Errorf("insert video: %w", err)
}

// Delete removes a video row. Deleting a missing row is not an error.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM videos WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete video: %w", err)
	}
	return nil
}

// GetByID returns a video by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Video, error) {
	q := `SELECT ` + selectColumns + ` FROM videos WHERE id = $1`
	var v models.Video
	err := r.pool.QueryRow(ctx, q, id).Scan(&v.ID, &v.UploaderID, &v.Title, &v.Description, &v.Status, &v.SourceKey, &v.DestPrefix,
		&v.HLSMasterKey, &v.PlaybackURL, &v.ThumbnailURL, &v.DurationSeconds, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("videos.get", "video not found")
		}
		return nil, fmt.Errorf("select video: %w", err)
	}
	return &v, nil
}

// MarkReady moves a processing video to ready and stores its playback fields.
// It reports false when the video was not in processing (or does not exist).
func (r *Repository) MarkReady(ctx context.Context, id uuid.UUID, u models.ReadyUpdate) (bool, error) {
	const q = `UPDATE videos
		SET status = $1, hls_master_key = $2, playback_url = $3, thumbnail_url = $4, duration_seconds = $5, updated_at = NOW()
		WHERE id = $6 AND status = ANY($7)`
	tag, err := r.pool.Exec(ctx, q, models.VideoStatusReady, u.HLSMasterKey, u.PlaybackURL, u.ThumbnailURL, u.DurationSeconds,
		id, sourceStates(models.VideoStatusReady))
	if err != nil {
		return false, fmt.Errorf("mark video ready: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkFailed moves a processing video to failed. It reports false when the
// video was not in processing (or does not exist).
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID) (bool, error) {
	const q = `UPDATE videos SET status = $1, updated_at = NOW() WHERE id = $2 AND status = ANY($3)`
	tag, err := r.pool.Exec(ctx, q, models.VideoStatusFailed, id, sourceStates(models.VideoStatusFailed))
	if err != nil {
		return false, fmt.Errorf("mark video failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// sourceStates is the status guard for an update moving a video to to.
func sourceStates(to models.VideoStatus) []string {
	from := models.TransitionSources(to)
	out := make([]string, len(from))
	for i, s := range from {
		out[i] = string(s)
	}
	return out
}
