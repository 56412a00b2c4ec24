package telephony

import (
	"errors"
	"net/http"
	"time"

	"voicemail-recorder/internal/calls"
	"voicemail-recorder/internal/metrics"
	"voicemail-recorder/pkg/logger"

	"github.com/gin-gonic/gin"
)

// WebhookHandler converts platform webhooks to internal types, delegates to
// Webhooks, and writes the platform-facing response.
//
// No business logic here.
type WebhookHandler struct {
	Hooks      Webhooks
	Recordings RecordingLookup
}

func (h WebhookHandler) HandleAnswer(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Hooks == nil {
		WriteError(c, http.StatusInternalServerError, ErrKindInternal, "webhook handler not configured", nil)
		return
	}

	params := ParseAnswerParams(c.Request.URL.Query())
	ncco, err := h.Hooks.HandleAnswer(c.Request.Context(), params)
	if err != nil {
		log.Error("answer_webhook_error", "call_uuid", params.UUID, "err", err)
		metrics.ObserveWebhook("answer", metrics.OutcomeError)
		WriteError(c, http.StatusInternalServerError, ErrKindInternal, "An unexpected error occurred", nil)
		return
	}

	log.Info("answer_webhook_response", "call_uuid", params.UUID, "ncco_actions", len(ncco))
	metrics.ObserveWebhook("answer", metrics.OutcomeOK)
	c.JSON(http.StatusOK, ncco)
}

func (h WebhookHandler) HandleRecording(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Hooks == nil {
		WriteError(c, http.StatusInternalServerError, ErrKindInternal, "webhook handler not configured", nil)
		return
	}

	p, err := ParseRecordingPayload(c.Request)
	if err != nil {
		h.rejectInvalid(c, "recording", err)
		return
	}

	h.Hooks.HandleRecording(c.Request.Context(), p)

	log.Info("recording_webhook_processed", "recording_url", p.RecordingURL, "conversation_uuid", p.ConversationUUID)
	metrics.ObserveWebhook("recording", metrics.OutcomeOK)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h WebhookHandler) HandleEvent(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Hooks == nil {
		WriteError(c, http.StatusInternalServerError, ErrKindInternal, "webhook handler not configured", nil)
		return
	}

	ev, err := ParseEventPayload(c.Request)
	if err != nil {
		h.rejectInvalid(c, "event", err)
		return
	}

	h.Hooks.HandleEvent(c.Request.Context(), ev)

	log.Info("event_webhook_processed", "call_uuid", ev.UUID, "status", ev.Status)
	metrics.ObserveWebhook("event", metrics.OutcomeOK)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h WebhookHandler) rejectInvalid(c *gin.Context, kind string, err error) {
	log := logger.FromGin(c)
	metrics.ObserveWebhook(kind, metrics.OutcomeInvalid)

	var verr *ValidationError
	if errors.As(err, &verr) {
		log.Error("webhook_validation_error",
			"error_type", verr.Kind,
			"error_message", verr.Message,
			"path", c.Request.URL.Path,
			"content_type", c.ContentType(),
		)
		WriteError(c, http.StatusBadRequest, verr.Kind, verr.Message, nil)
		return
	}
	log.Error("webhook_parse_failed", "path", c.Request.URL.Path, "err", err)
	WriteError(c, http.StatusBadRequest, ErrKindBadRequest, "Bad Request", nil)
}

// ListRecordings serves GET /recordings?start=&end= (RFC3339 bounds).
func (h WebhookHandler) ListRecordings(c *gin.Context) {
	if h.Recordings == nil {
		WriteError(c, http.StatusInternalServerError, ErrKindInternal, "recording store not configured", nil)
		return
	}

	start, err := parseBound(c.Query("start"))
	if err != nil {
		WriteError(c, http.StatusBadRequest, ErrKindBadRequest, "start must be an RFC3339 timestamp", map[string]any{"start": c.Query("start")})
		return
	}
	end, err := parseBound(c.Query("end"))
	if err != nil {
		WriteError(c, http.StatusBadRequest, ErrKindBadRequest, "end must be an RFC3339 timestamp", map[string]any{"end": c.Query("end")})
		return
	}

	recs, err := h.Recordings.ListRecordings(c.Request.Context(), start, end)
	if err != nil {
		logger.FromGin(c).Error("list_recordings_failed", "err", err)
		WriteError(c, http.StatusInternalServerError, ErrKindInternal, "An unexpected error occurred", nil)
		return
	}
	if recs == nil {
		recs = []calls.Recording{}
	}
	c.JSON(http.StatusOK, gin.H{"recordings": recs, "count": len(recs)})
}

// GetRecording serves GET /recordings/:call_uuid.
func (h WebhookHandler) GetRecording(c *gin.Context) {
	if h.Recordings == nil {
		WriteError(c, http.StatusInternalServerError, ErrKindInternal, "recording store not configured", nil)
		return
	}

	callUUID := c.Param("call_uuid")
	rec, err := h.Recordings.GetRecording(c.Request.Context(), callUUID)
	if errors.Is(err, calls.ErrNotFound) {
		WriteError(c, http.StatusNotFound, ErrKindNotFound, "recording not found", map[string]any{"call_uuid": callUUID})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("get_recording_failed", "call_uuid", callUUID, "err", err)
		WriteError(c, http.StatusInternalServerError, ErrKindInternal, "An unexpected error occurred", nil)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// NotFound and MethodNotAllowed back gin's NoRoute/NoMethod.
func NotFound(c *gin.Context) {
	WriteError(c, http.StatusNotFound, ErrKindNotFound, "Not Found", map[string]any{"path": c.Request.URL.Path})
}

func MethodNotAllowed(c *gin.Context) {
	WriteError(c, http.StatusMethodNotAllowed, ErrKindMethodNotAllowed, "Method Not Allowed", map[string]any{"method": c.Request.Method})
}

// Recovery returns a gin.RecoveryFunc writing the internal_error body.
func Recovery(c *gin.Context, recovered any) {
	logger.FromGin(c).Error("unhandled_panic", "path", c.Request.URL.Path, "panic", recovered)
	WriteError(c, http.StatusInternalServerError, ErrKindInternal, "An unexpected error occurred", nil)
}

func parseBound(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}
