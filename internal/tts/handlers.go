package tts

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/safewalk/guardian/internal/logging"
	"github.com/safewalk/guardian/internal/metrics"
	"github.com/safewalk/guardian/internal/validation"
)

// MaxTextLength is the longest text, in characters, that will be spoken.
const MaxTextLength = 400

// Synthesizer turns text into audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// FallbackResponse tells the client to speak the text itself.
type FallbackResponse struct {
	OK       bool   `json:"ok"`
	Fallback bool   `json:"fallback"`
	Provider string `json:"provider"`
	Text     string `json:"text"`
	Reason   string `json:"reason"`
}

// Handler provides HTTP endpoints for speech
type Handler struct {
	synth   Synthesizer
	secrets []string
	logger  *slog.Logger
}

// NewHandler creates a new speech handler. secrets are redacted from any
// logged upstream error.
func NewHandler(synth Synthesizer, logger *slog.Logger, secrets ...string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{synth: synth, secrets: secrets, logger: logger}
}

// RegisterRoutes sets up speech routes. The group is expected to carry the
// rate governor.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/tts", h.Speak)
}

type speakRequest struct {
	Text string `json:"text"`
}

// Speak handles POST /api/tts
func (h *Handler) Speak(c *gin.Context) {
	var req speakRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		metrics.TTSRequestsTotal.WithLabelValues("rejected").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
		return
	}

	text := validation.SanitizeString(req.Text)
	if errs := validation.Validate(
		validation.Required("text", text),
		validation.MaxRunes("text", text, MaxTextLength),
	); len(errs) > 0 {
		metrics.TTSRequestsTotal.WithLabelValues("rejected").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": errs.Code()})
		return
	}

	audio, err := h.synth.Synthesize(c.Request.Context(), text)
	switch {
	case errors.Is(err, ErrNotConfigured):
		metrics.TTSRequestsTotal.WithLabelValues("not_configured").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "elevenlabs_not_configured"})
	case err != nil:
		metrics.TTSRequestsTotal.WithLabelValues("fallback").Inc()
		logging.LOr(c.Request.Context(), h.logger).Warn("speech synthesis failed, using browser fallback",
			"error", logging.RedactError(err, h.secrets...),
		)
		c.JSON(http.StatusOK, FallbackResponse{
			OK:       false,
			Fallback: true,
			Provider: "browser_tts",
			Text:     text,
			Reason:   "elevenlabs_unavailable",
		})
	default:
		metrics.TTSRequestsTotal.WithLabelValues("audio").Inc()
		c.Header("Cache-Control", "no-store")
		c.Data(http.StatusOK, "audio/mpeg", audio)
	}
}
