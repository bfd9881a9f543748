// Package uploads manages multipart upload sessions for new videos.
package uploads

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thaihoc1310/streamvod/internal/apperr"
	"github.com/thaihoc1310/streamvod/internal/metrics"
	"github.com/thaihoc1310/streamvod/internal/models"
	"github.com/thaihoc1310/streamvod/pkg/storage"
)

// SourceContentType is the content type of every uploaded source file.
const SourceContentType = "video/mp4"

// VideoStore is the part of the video entity store the manager needs.
type VideoStore interface {
	Create(ctx context.Context, v *models.Video) error
	Delete(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Video, error)
	MarkFailed(ctx context.Context, id uuid.UUID) (bool, error)
}

// SessionStore persists upload sessions.
type SessionStore interface {
	// Create stores a new session; it fails with a Conflict if one exists.
	Create(ctx context.Context, s *models.UploadSession) error
	Get(ctx context.Context, videoID uuid.UUID) (*models.UploadSession, error)
	// Update applies fn to the stored session atomically and saves the result.
	// An error from fn aborts the update and is returned as is.
	Update(ctx context.Context, videoID uuid.UUID, fn func(*models.UploadSession) error) (*models.UploadSession, error)
}

// ObjectStore is the multipart half of the source bucket.
type ObjectStore interface {
	CreateMultipartUpload(ctx context.Context, key, contentType string) (string, error)
	PresignUploadPart(ctx context.Context, key, uploadID string, partNumber int32, expires time.Duration) (string, error)
	CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []storage.Part) (string, error)
	AbortMultipartUpload(ctx context.Context, key, uploadID string) error
}

// Options tunes session lifetimes.
type Options struct {
	PartURLTTL time.Duration
	SessionTTL time.Duration
}

// InitiateResult is returned to the client after a session is opened.
type InitiateResult struct {
	VideoID   uuid.UUID `json:"video_id"`
	UploadID  string    `json:"upload_id"`
	SourceKey string    `json:"key"`
}

// Manager is the Upload Session Manager.
type Manager struct {
	videos   VideoStore
	sessions SessionStore
	objects  ObjectStore
	opts     Options
	logger   *zap.Logger
	now      func() time.Time
}

// NewManager creates an upload session manager.
func NewManager(videos VideoStore, sessions SessionStore, objects ObjectStore, opts Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.PartURLTTL <= 0 {
		opts.PartURLTTL = 15 * time.Minute
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}
	return &Manager{videos: videos, sessions: sessions, objects: objects, opts: opts, logger: logger, now: time.Now}
}

// Initiate creates the video row and opens a multipart upload for it. A nil
// videoID allocates a new one. If the object store refuses the session the
// row is deleted again.
func (m *Manager) Initiate(ctx context.Context, caller, videoID uuid.UUID) (*InitiateResult, error) {
	const op = "uploads.initiate"
	if caller == uuid.Nil {
		return nil, apperr.Authorization(op, "missing caller identity")
	}
	if videoID == uuid.Nil {
		videoID = uuid.New()
	}
	key := storage.SourceKey(videoID)
	video := &models.Video{
		ID:         videoID,
		UploaderID: caller,
		Status:     models.VideoStatusProcessing,
		SourceKey:  key,
		DestPrefix: storage.HLSPrefix(videoID),
	}
	if err := m.videos.Create(ctx, video); err != nil {
		return nil, classify(op, "failed to create video", err)
	}

	uploadID, err := m.objects.CreateMultipartUpload(ctx, key, SourceContentType)
	if err != nil {
		m.compensateDelete(ctx, videoID, err)
		return nil, apperr.External(op, "failed to initiate multipart upload", err)
	}

	now := m.now().UTC()
	session := &models.UploadSession{
		VideoID:   videoID,
		UploadID:  uploadID,
		SourceKey: key,
		OwnerID:   caller,
		State:     models.UploadStateOpen,
		CreatedAt: now,
		ExpiresAt: now.Add(m.opts.SessionTTL),
	}
	if err := m.sessions.Create(ctx, session); err != nil {
		m.compensateAbort(ctx, key, uploadID, err)
		m.compensateDelete(ctx, videoID, err)
		return nil, classify(op, "failed to store upload session", err)
	}

	metrics.UploadSessions.WithLabelValues("initiated").Inc()
	m.logger.Info("multipart upload initiated",
		zap.String("video_id", videoID.String()),
		zap.String("upload_id", uploadID),
		zap.String("key", key))
	return &InitiateResult{VideoID: videoID, UploadID: uploadID, SourceKey: key}, nil
}

// PartURLs returns numParts presigned part upload URLs numbered 1..numParts.
// The first call fixes the session's part count; later calls must repeat it.
func (m *Manager) PartURLs(ctx context.Context, caller, videoID uuid.UUID, uploadID string, numParts int) ([]models.PartURL, error) {
	const op = "uploads.part_urls"
	if numParts < 1 || numParts > models.MaxUploadParts {
		return nil, apperr.Validation(op, "num_parts must be between 1 and "+strconv.Itoa(models.MaxUploadParts))
	}
	session, err := m.ownedSession(ctx, op, caller, videoID, uploadID)
	if err != nil {
		return nil, err
	}
	if err := m.usable(op, session); err != nil {
		return nil, err
	}
	if session.PartCount != numParts {
		session, err = m.sessions.Update(ctx, videoID, func(s *models.UploadSession) error {
			if err := m.usable(op, s); err != nil {
				return err
			}
			if s.PartCount != 0 && s.PartCount != numParts {
				return apperr.Validation(op, "num_parts differs from the part count already requested ("+strconv.Itoa(s.PartCount)+")")
			}
			s.PartCount = numParts
			return nil
		})
		if err != nil {
			return nil, classify(op, "failed to update upload session", err)
		}
	}

	urls := make([]models.PartURL, 0, numParts)
	for n := 1; n <= numParts; n++ {
		u, err := m.objects.PresignUploadPart(ctx, session.SourceKey, session.UploadID, int32(n), m.opts.PartURLTTL)
		if err != nil {
			return nil, apperr.External(op, "failed to presign part urls", err)
		}
		urls = append(urls, models.PartURL{PartNumber: n, URL: u})
	}
	return urls, nil
}

// Complete finalizes the multipart upload. parts must cover exactly 1..N.
// If the object store rejects the completion the upload is aborted on a best-effort basis.
func (m *Manager) Complete(ctx context.Context, caller, videoID uuid.UUID, uploadID string, parts []models.CompletedPart) (string, error) {
	const op = "uploads.complete"
	session, err := m.ownedSession(ctx, op, caller, videoID, uploadID)
	if err != nil {
		return "", err
	}
	if err := m.usable(op, session); err != nil {
		return "", err
	}
	if session.PartCount == 0 {
		return "", apperr.Validation(op, "no part urls were requested for this upload")
	}
	ordered, err := validateParts(op, parts, session.PartCount)
	if err != nil {
		return "", err
	}

	etag, err := m.objects.CompleteMultipartUpload(ctx, session.SourceKey, session.UploadID, ordered)
	if err != nil {
		if m.compensateAbort(ctx, session.SourceKey, session.UploadID, err) {
			m.markSession(ctx, videoID, models.UploadStateAborted, nil, "")
			m.failVideo(ctx, videoID)
		}
		return "", apperr.External(op, "failed to complete multipart upload", err)
	}

	recorded := make(map[int]string, len(parts))
	for _, p := range parts {
		recorded[p.PartNumber] = p.ETag
	}
	m.markSession(ctx, videoID, models.UploadStateCompleted, recorded, etag)
	metrics.UploadSessions.WithLabelValues("completed").Inc()
	m.logger.Info("multipart upload completed",
		zap.String("video_id", videoID.String()),
		zap.String("upload_id", session.UploadID),
		zap.Int("parts", len(parts)))
	return etag, nil
}

// Abort cancels an open upload at the client's request and fails the video.
// Aborting an already aborted session only makes sure the video is failed.
func (m *Manager) Abort(ctx context.Context, caller, videoID uuid.UUID, uploadID string) error {
	const op = "uploads.abort"
	session, err := m.ownedSession(ctx, op, caller, videoID, uploadID)
	if err != nil {
		return err
	}
	switch session.State {
	case models.UploadStateCompleted:
		return apperr.WithOp(apperr.ErrAlreadyCompleted, op)
	case models.UploadStateAborted:
		if _, err := m.videos.MarkFailed(ctx, videoID); err != nil {
			return classify(op, "failed to update video", err)
		}
		return nil
	}
	if err := m.objects.AbortMultipartUpload(ctx, session.SourceKey, session.UploadID); err != nil && !storage.IsNotFound(err) {
		return apperr.External(op, "failed to abort multipart upload", err)
	}
	m.markSession(ctx, videoID, models.UploadStateAborted, nil, "")

	moved, err := m.videos.MarkFailed(ctx, videoID)
	if err != nil {
		return classify(op, "failed to update video", err)
	}
	if !moved {
		m.logger.Warn("aborted upload for a video no longer processing", zap.String("video_id", videoID.String()))
	}
	metrics.UploadSessions.WithLabelValues("aborted").Inc()
	m.logger.Info("multipart upload aborted by client", zap.String("video_id", videoID.String()), zap.String("upload_id", session.UploadID))
	return nil
}

// ownedSession loads the video and its session and checks the caller owns
// both and that uploadID names the stored session.
func (m *Manager) ownedSession(ctx context.Context, op string, caller, videoID uuid.UUID, uploadID string) (*models.UploadSession, error) {
	video, err := m.videos.GetByID(ctx, videoID)
	if err != nil {
		return nil, classify(op, "failed to load video", err)
	}
	if video.UploaderID != caller {
		return nil, apperr.Authorization(op, "not authorized")
	}
	session, err := m.sessions.Get(ctx, videoID)
	if err != nil {
		return nil, classify(op, "failed to load upload session", err)
	}
	if session.OwnerID != caller {
		return nil, apperr.Authorization(op, "not authorized")
	}
	if uploadID == "" || session.UploadID != uploadID {
		return nil, apperr.NotFound(op, "upload session not found")
	}
	return session, nil
}

func (m *Manager) usable(op string, s *models.UploadSession) error {
	switch s.State {
	case models.UploadStateCompleted:
		return apperr.WithOp(apperr.ErrAlreadyCompleted, op)
	case models.UploadStateAborted:
		return apperr.WithOp(apperr.ErrSessionClosed, op)
	}
	if !s.ExpiresAt.IsZero() && m.now().After(s.ExpiresAt) {
		return apperr.WithOp(apperr.ErrSessionClosed, op)
	}
	return nil
}

// validateParts checks parts is exactly {1..n} with an etag each and returns
// them in part number order.
func validateParts(op string, parts []models.CompletedPart, n int) ([]storage.Part, error) {
	if len(parts) != n {
		return nil, apperr.Validation(op, "expected "+strconv.Itoa(n)+" parts, got "+strconv.Itoa(len(parts)))
	}
	seen := make(map[int]bool, n)
	for _, p := range parts {
		if p.PartNumber < 1 || p.PartNumber > n {
			return nil, apperr.Validation(op, "part number "+strconv.Itoa(p.PartNumber)+" out of range")
		}
		if seen[p.PartNumber] {
			return nil, apperr.Validation(op, "duplicate part number "+strconv.Itoa(p.PartNumber))
		}
		if p.ETag == "" {
			return nil, apperr.Validation(op, "part "+strconv.Itoa(p.PartNumber)+" has no etag")
		}
		seen[p.PartNumber] = true
	}
	ordered := make([]storage.Part, 0, n)
	for _, p := range parts {
		ordered = append(ordered, storage.Part{Number: int32(p.PartNumber), ETag: p.ETag})
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Number < ordered[j].Number })
	return ordered, nil
}

// markSession records a terminal state. The object store already reflects the
// outcome, so a failed write is logged rather than returned.
func (m *Manager) markSession(ctx context.Context, videoID uuid.UUID, state models.UploadState, parts map[int]string, etag string) {
	_, err := m.sessions.Update(ctx, videoID, func(s *models.UploadSession) error {
		s.State = state
		if parts != nil {
			s.Parts = parts
		}
		if etag != "" {
			s.FinalETag = etag
		}
		return nil
	})
	if err != nil {
		m.logger.Error("failed to record upload session state",
			zap.String("video_id", videoID.String()),
			zap.String("state", string(state)),
			zap.Error(err))
	}
}

// failVideo moves a video whose upload was aborted out of processing.
func (m *Manager) failVideo(ctx context.Context, videoID uuid.UUID) {
	if _, err := m.videos.MarkFailed(ctx, videoID); err != nil {
		m.logger.Error("failed to mark video failed after aborted upload",
			zap.String("video_id", videoID.String()),
			zap.Error(err))
	}
}

// compensateDelete removes a video row orphaned by a failed initiate.
func (m *Manager) compensateDelete(ctx context.Context, videoID uuid.UUID, cause error) {
	if err := m.videos.Delete(ctx, videoID); err != nil {
		metrics.Compensations.WithLabelValues("delete_video", metrics.OutcomeFailed).Inc()
		m.logger.Error("compensation failed: orphaned video row",
			zap.String("action", "delete_video"),
			zap.String("video_id", videoID.String()),
			zap.NamedError("cause", cause),
			zap.Error(err))
		return
	}
	metrics.Compensations.WithLabelValues("delete_video", metrics.OutcomeSucceeded).Inc()
	m.logger.Warn("compensation applied",
		zap.String("action", "delete_video"),
		zap.String("video_id", videoID.String()),
		zap.NamedError("cause", cause))
}

// compensateAbort aborts a multipart upload after a failure and reports whether it succeeded.
func (m *Manager) compensateAbort(ctx context.Context, key, uploadID string, cause error) bool {
	if err := m.objects.AbortMultipartUpload(ctx, key, uploadID); err != nil {
		metrics.Compensations.WithLabelValues("abort_upload", metrics.OutcomeFailed).Inc()
		m.logger.Error("compensation failed: multipart upload left open",
			zap.String("action", "abort_upload"),
			zap.String("key", key),
			zap.String("upload_id", uploadID),
			zap.NamedError("cause", cause),
			zap.Error(err))
		return false
	}
	metrics.Compensations.WithLabelValues("abort_upload", metrics.OutcomeSucceeded).Inc()
	m.logger.Warn("compensation applied",
		zap.String("action", "abort_upload"),
		zap.String("key", key),
		zap.String("upload_id", uploadID),
		zap.NamedError("cause", cause))
	return true
}

// classify keeps already classified errors and treats the rest as internal.
func classify(op, msg string, err error) error {
	if apperr.KindOf(err) != apperr.KindInternal {
		return err
	}
	return apperr.Internal(op, msg, err)
}
