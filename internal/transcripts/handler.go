package transcripts

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/soundscribe/backend/internal/models"
	"github.com/soundscribe/backend/pkg/response"
)

// AudioFinder resolves public audio IDs. Satisfied by the audios repository.
type AudioFinder interface {
	GetByPublicID(ctx context.Context, publicID uuid.UUID) (*models.Audio, error)
}

// Handler handles transcript HTTP endpoints.
type Handler struct {
	repo   *Repository
	audios AudioFinder
	logger *zap.Logger
}

// NewHandler creates a transcripts handler.
func NewHandler(repo *Repository, audios AudioFinder, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, audios: audios, logger: logger}
}

// Get handles GET /audios/:id/text: all three text variants plus the
// effective one.
func (h *Handler) Get(c *gin.Context) {
	audio, transcript, ok := h.lookup(c)
	if !ok {
		return
	}
	response.OK(c, gin.H{
		"audio_id":       audio.PublicID,
		"raw_text":       transcript.RawText,
		"processed_text": transcript.ProcessedText,
		"custom_text":    transcript.CustomText,
		"text":           transcript.BestText(),
	})
}

type putTextRequest struct {
	CustomText string `json:"custom_text"`
}

// Put handles PUT /audios/:id/text: stores the reviewer's edited text.
func (h *Handler) Put(c *gin.Context) {
	audio, _, ok := h.lookup(c)
	if !ok {
		return
	}

	var req putTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	transcript, err := h.repo.UpdateCustomText(c.Request.Context(), audio.ID, req.CustomText)
	if err != nil {
		h.logger.Error("update custom text failed", zap.Error(err), zap.Int64("audio_id", audio.ID))
		response.Internal(c, "failed to update transcript")
		return
	}
	response.OK(c, gin.H{
		"audio_id":    audio.PublicID,
		"custom_text": transcript.CustomText,
		"text":        transcript.BestText(),
	})
}

// Export handles GET /audios/:id/export: the effective text as a plain-text
// attachment named after the audio.
func (h *Handler) Export(c *gin.Context) {
	audio, transcript, ok := h.lookup(c)
	if !ok {
		return
	}
	filename := ExportFilename(audio)
	c.Header("Content-Disposition", ContentDisposition(filename))
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(transcript.BestText()))
}

// lookup resolves the :id path parameter to an audio and its transcript,
// writing the error response itself when it cannot.
func (h *Handler) lookup(c *gin.Context) (*models.Audio, *models.Transcript, bool) {
	publicID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid audio id")
		return nil, nil, false
	}
	audio, err := h.audios.GetByPublicID(c.Request.Context(), publicID)
	if err != nil || audio == nil {
		response.NotFound(c, "audio not found")
		return nil, nil, false
	}
	transcript, err := h.repo.GetByAudioID(c.Request.Context(), audio.ID)
	if errors.Is(err, ErrNotFound) {
		response.NotFound(c, "no transcript for this audio yet")
		return nil, nil, false
	}
	if err != nil {
		h.logger.Error("load transcript failed", zap.Error(err), zap.Int64("audio_id", audio.ID))
		response.Internal(c, "failed to load transcript")
		return nil, nil, false
	}
	return audio, transcript, true
}
