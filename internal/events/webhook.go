package events

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/thaihoc1310/streamvod/internal/apperr"
	"github.com/thaihoc1310/streamvod/pkg/response"
)

const maxWebhookBody = 1 << 20

// WebhookHandler accepts pushed notifications over HTTP.
type WebhookHandler struct {
	dispatcher *Dispatcher
	logger     *zap.Logger
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(dispatcher *Dispatcher, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{dispatcher: dispatcher, logger: logger}
}

// Register mounts the webhook routes.
func (h *WebhookHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/object-created", h.ObjectCreated)
	rg.POST("/transcoder-events", h.TranscoderEvent)
}

// ObjectCreated handles POST /webhooks/object-created.
func (h *WebhookHandler) ObjectCreated(c *gin.Context) {
	body, ok := h.readBody(c)
	if !ok {
		return
	}
	if err := h.dispatcher.ObjectCreated(c.Request.Context(), body); err != nil {
		h.fail(c, "object-created", body, err)
		return
	}
	response.OK(c, gin.H{"accepted": true})
}

// TranscoderEvent handles POST /webhooks/transcoder-events.
func (h *WebhookHandler) TranscoderEvent(c *gin.Context) {
	body, ok := h.readBody(c)
	if !ok {
		return
	}
	if err := h.dispatcher.JobStateChange(c.Request.Context(), body); err != nil {
		h.fail(c, "transcoder-events", body, err)
		return
	}
	response.OK(c, gin.H{"accepted": true})
}

func (h *WebhookHandler) readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.logger.Warn("rejecting oversized notification", zap.String("path", c.FullPath()), zap.Int64("limit", tooLarge.Limit))
			response.PayloadTooLarge(c, "notification body too large")
			return nil, false
		}
		response.BadRequest(c, "failed to read body")
		return nil, false
	}
	return body, true
}

// fail reports the error to the sender. Non-2xx responses make push
// deliveries retry, which is the recovery path for every class but malformed bodies.
func (h *WebhookHandler) fail(c *gin.Context, source string, body []byte, err error) {
	if errors.Is(err, ErrMalformed) {
		h.logger.Error("discarding malformed notification", zap.String("source", source), zap.ByteString("body", body), zap.Error(err))
		response.BadRequest(c, "malformed notification")
		return
	}
	fields := []zap.Field{zap.String("source", source), zap.String("kind", string(apperr.KindOf(err))), zap.Error(err)}
	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindConsistency:
		h.logger.Error("notification rejected", append(fields, zap.ByteString("body", body))...)
	default:
		h.logger.Error("notification handling failed", fields...)
	}
	response.Error(c, err)
}
