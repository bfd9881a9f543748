package uploads

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thaihoc1310/streamvod/internal/apperr"
	"github.com/thaihoc1310/streamvod/internal/middleware"
	"github.com/thaihoc1310/streamvod/internal/models"
	"github.com/thaihoc1310/streamvod/pkg/response"
)

// InitiateRequest optionally names the video ID to upload under.
type InitiateRequest struct {
	VideoID string `json:"video_id"`
}

// PartURLsRequest is the body of POST /videos/multipart/get-urls.
type PartURLsRequest struct {
	VideoID  string `json:"video_id" binding:"required"`
	UploadID string `json:"upload_id" binding:"required"`
	NumParts int    `json:"num_parts" binding:"required"`
}

// CompleteRequest is the body of POST /videos/multipart/complete.
type CompleteRequest struct {
	VideoID  string                 `json:"video_id" binding:"required"`
	UploadID string                 `json:"upload_id" binding:"required"`
	Parts    []models.CompletedPart `json:"parts" binding:"required"`
}

// AbortRequest is the body of POST /videos/multipart/abort.
type AbortRequest struct {
	VideoID  string `json:"video_id" binding:"required"`
	UploadID string `json:"upload_id" binding:"required"`
}

// Handler exposes the upload session manager over HTTP.
type Handler struct {
	manager *Manager
	logger  *zap.Logger
}

// NewHandler creates an uploads handler.
func NewHandler(manager *Manager, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{manager: manager, logger: logger}
}

// Register mounts the multipart routes on an authenticated group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	mp := rg.Group("/videos/multipart")
	mp.POST("/initiate", h.Initiate)
	mp.POST("/get-urls", h.PartURLs)
	mp.POST("/complete", h.Complete)
	mp.POST("/abort", h.Abort)
}

// Initiate handles POST /videos/multipart/initiate.
func (h *Handler) Initiate(c *gin.Context) {
	var body InitiateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, "invalid request: "+err.Error())
			return
		}
	}
	videoID := uuid.Nil
	if body.VideoID != "" {
		id, err := uuid.Parse(body.VideoID)
		if err != nil {
			response.BadRequest(c, "invalid video_id")
			return
		}
		videoID = id
	}
	res, err := h.manager.Initiate(c.Request.Context(), callerID(c), videoID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, res)
}

// PartURLs handles POST /videos/multipart/get-urls.
func (h *Handler) PartURLs(c *gin.Context) {
	var body PartURLsRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	videoID, err := uuid.Parse(body.VideoID)
	if err != nil {
		response.BadRequest(c, "invalid video_id")
		return
	}
	parts, err := h.manager.PartURLs(c.Request.Context(), callerID(c), videoID, body.UploadID, body.NumParts)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, gin.H{"parts": parts})
}

// Complete handles POST /videos/multipart/complete.
func (h *Handler) Complete(c *gin.Context) {
	var body CompleteRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	videoID, err := uuid.Parse(body.VideoID)
	if err != nil {
		response.BadRequest(c, "invalid video_id")
		return
	}
	etag, err := h.manager.Complete(c.Request.Context(), callerID(c), videoID, body.UploadID, body.Parts)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, gin.H{"video_id": videoID, "etag": etag, "status": models.VideoStatusProcessing})
}

// Abort handles POST /videos/multipart/abort.
func (h *Handler) Abort(c *gin.Context) {
	var body AbortRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	videoID, err := uuid.Parse(body.VideoID)
	if err != nil {
		response.BadRequest(c, "invalid video_id")
		return
	}
	if err := h.manager.Abort(c.Request.Context(), callerID(c), videoID, body.UploadID); err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, gin.H{"video_id": videoID, "status": models.VideoStatusFailed})
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindExternalService, apperr.KindInternal:
		h.logger.Error("upload request failed", zap.String("path", c.FullPath()), zap.Error(err))
	default:
		h.logger.Debug("upload request rejected", zap.String("path", c.FullPath()), zap.Error(err))
	}
	response.Error(c, err)
}

func callerID(c *gin.Context) uuid.UUID {
	v, ok := c.Get(middleware.ContextUserID)
	if !ok {
		return uuid.Nil
	}
	id, _ := v.(uuid.UUID)
	return id
}
