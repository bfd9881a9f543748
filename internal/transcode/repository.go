package transcode

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/thaihoc1310/streamvod/internal/models"
)

// Repository persists transcode job references.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a job reference repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Save records a submitted job. Resubmissions of the same job are ignored.
func (r *Repository) Save(ctx context.Context, ref models.TranscodeJobRef) error {
	const q = `INSERT INTO transcode_jobs (job_id, video_id, ladder, submitted_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (job_id) DO NOTHING`
	if _, err := r.pool.Exec(ctx, q, ref.JobID, ref.VideoID, ref.Ladder, ref.SubmittedAt); err != nil {
		return fmt.Errorf("insert transcode job: %w", err)
	}
	return nil
}
