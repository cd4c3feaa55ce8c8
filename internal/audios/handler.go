package audios

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/soundscribe/backend/internal/middleware"
	"github.com/soundscribe/backend/internal/models"
	"github.com/soundscribe/backend/internal/transcripts"
	"github.com/soundscribe/backend/pkg/queue"
	"github.com/soundscribe/backend/pkg/response"
	"github.com/soundscribe/backend/pkg/storage"
)

// Handler handles audio HTTP endpoints.
type Handler struct {
	repo        *Repository
	transcripts *transcripts.Repository
	media       *storage.Media
	s3          *storage.S3 // optional: presigned downloads of archived copies
	queue       *queue.Queue
	maxUpload   int64
	logger      *zap.Logger
}

// NewHandler creates an audios handler. s3 may be nil to disable archive
// downloads.
func NewHandler(repo *Repository, tr *transcripts.Repository, media *storage.Media, s3 *storage.S3, q *queue.Queue, maxUpload int64, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxUpload <= 0 {
		maxUpload = 10 * 1024 * 1024
	}
	return &Handler{repo: repo, transcripts: tr, media: media, s3: s3, queue: q, maxUpload: maxUpload, logger: logger}
}

// Upload handles POST /audios: store the recording, create the row in the
// awaiting-processing state and enqueue the transcription job.
func (h *Handler) Upload(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	name := strings.TrimSpace(c.PostForm("name"))
	if name == "" {
		response.BadRequest(c, "name is required")
		return
	}
	kind := models.AudioKind(c.PostForm("kind"))
	if !models.ValidKind(kind) {
		response.BadRequest(c, "kind must be meeting or lesson")
		return
	}
	categoryID, err := strconv.ParseInt(c.PostForm("category_id"), 10, 64)
	if err != nil || categoryID <= 0 {
		response.BadRequest(c, "invalid category_id")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "audio file is required")
		return
	}
	if fileHeader.Size > h.maxUpload {
		response.BadRequest(c, "audio file exceeds the upload limit")
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		response.BadRequest(c, "could not read uploaded file")
		return
	}
	defer f.Close()

	mt, err := mimetype.DetectReader(f)
	if err != nil || !strings.HasPrefix(mt.String(), "audio/") {
		response.BadRequest(c, "file does not look like an audio recording")
		return
	}
	if _, err := f.Seek(0, 0); err != nil {
		response.Internal(c, "could not read uploaded file")
		return
	}

	relPath, err := h.media.SaveAudio(f, fileHeader.Filename)
	if err != nil {
		h.logger.Error("save upload failed", zap.Error(err))
		response.Internal(c, "failed to store audio file")
		return
	}

	audio := &models.Audio{
		Name:       name,
		Subject:    strings.TrimSpace(c.PostForm("subject")),
		Kind:       kind,
		CategoryID: categoryID,
		FilePath:   relPath,
		UploadedBy: userID,
	}
	if err := h.repo.Create(c.Request.Context(), audio); err != nil {
		_ = h.media.Remove(relPath)
		h.logger.Error("create audio failed", zap.Error(err))
		response.Internal(c, "failed to create audio")
		return
	}

	jobID := h.enqueue(c.Request.Context(), audio, fileHeader.Filename)
	audio.JobID = jobID
	response.Created(c, gin.H{"audio": audio, "job_id": jobID})
}

// enqueue submits the transcription job and records the handle. Failure to
// enqueue leaves the item in the awaiting-processing state for a later
// reprocess.
func (h *Handler) enqueue(ctx context.Context, audio *models.Audio, fileName string) string {
	jobID, err := h.queue.EnqueueTranscription(ctx, queue.TranscriptionPayload{
		AudioID:  audio.ID,
		FileName: fileName,
		FilePath: h.media.Abs(audio.FilePath),
	})
	if err != nil {
		h.logger.Error("enqueue transcription failed", zap.Error(err), zap.Int64("audio_id", audio.ID))
		return ""
	}
	if err := h.repo.SetJobID(ctx, audio.ID, jobID); err != nil {
		h.logger.Warn("could not record job handle", zap.Error(err), zap.Int64("audio_id", audio.ID))
	}
	return jobID
}

// List handles GET /audios: filtered listing plus per-status counts.
func (h *Handler) List(c *gin.Context) {
	filter := ListFilter{
		Status: models.AudioStatus(c.Query("status")),
		Kind:   models.AudioKind(c.Query("kind")),
	}
	if filter.Status != "" && !models.ValidStatus(filter.Status) {
		response.BadRequest(c, "invalid status filter")
		return
	}
	if filter.Kind != "" && !models.ValidKind(filter.Kind) {
		response.BadRequest(c, "invalid kind filter")
		return
	}
	if v := c.Query("category_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			response.BadRequest(c, "invalid category_id filter")
			return
		}
		filter.CategoryID = id
	}
	if c.Query("mine") == "true" {
		filter.UploadedBy = c.MustGet(middleware.ContextUserID).(uuid.UUID)
	}

	list, err := h.repo.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("list audios failed", zap.Error(err))
		response.Internal(c, "failed to list audios")
		return
	}
	counts, err := h.repo.CountByStatus(c.Request.Context())
	if err != nil {
		h.logger.Error("count audios failed", zap.Error(err))
		response.Internal(c, "failed to list audios")
		return
	}
	response.OK(c, gin.H{"audios": list, "status_counts": counts})
}

// Get handles GET /audios/:id.
func (h *Handler) Get(c *gin.Context) {
	audio, ok := h.lookup(c)
	if !ok {
		return
	}
	response.OK(c, audio)
}

type updateRequest struct {
	Name       *string `json:"name"`
	Subject    *string `json:"subject"`
	Kind       *string `json:"kind"`
	CategoryID *int64  `json:"category_id"`
}

// Update handles PATCH /audios/:id: partial metadata edit.
func (h *Handler) Update(c *gin.Context) {
	audio, ok := h.lookup(c)
	if !ok {
		return
	}
	if !h.canMutate(c, audio) {
		return
	}

	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			response.BadRequest(c, "name cannot be empty")
			return
		}
		audio.Name = strings.TrimSpace(*req.Name)
	}
	if req.Subject != nil {
		audio.Subject = strings.TrimSpace(*req.Subject)
	}
	if req.Kind != nil {
		kind := models.AudioKind(*req.Kind)
		if !models.ValidKind(kind) {
			response.BadRequest(c, "kind must be meeting or lesson")
			return
		}
		audio.Kind = kind
	}
	if req.CategoryID != nil {
		if *req.CategoryID <= 0 {
			response.BadRequest(c, "invalid category_id")
			return
		}
		audio.CategoryID = *req.CategoryID
	}

	if err := h.repo.Update(c.Request.Context(), audio); err != nil {
		h.logger.Error("update audio failed", zap.Error(err), zap.Int64("audio_id", audio.ID))
		response.Internal(c, "failed to update audio")
		return
	}
	response.OK(c, audio)
}

// Delete handles DELETE /audios/:id: removes the row, the transcript, the
// stored file and the archived S3 copy.
func (h *Handler) Delete(c *gin.Context) {
	audio, ok := h.lookup(c)
	if !ok {
		return
	}
	if !h.canMutate(c, audio) {
		return
	}
	if audio.Status == models.StatusProcessing {
		response.Conflict(c, "audio is being processed")
		return
	}

	if err := h.repo.Delete(c.Request.Context(), audio.ID); err != nil {
		h.logger.Error("delete audio failed", zap.Error(err), zap.Int64("audio_id", audio.ID))
		response.Internal(c, "failed to delete audio")
		return
	}
	if err := h.media.Remove(audio.FilePath); err != nil {
		h.logger.Warn("could not remove media file", zap.Error(err), zap.String("path", audio.FilePath))
	}
	if h.s3 != nil && audio.ArchiveKey != "" {
		if err := h.s3.DeleteObject(c.Request.Context(), audio.ArchiveKey); err != nil {
			h.logger.Warn("could not remove archived copy", zap.Error(err), zap.String("key", audio.ArchiveKey))
		}
	}
	response.NoContent(c)
}

// GetStatus handles GET /audios/:id/status.
func (h *Handler) GetStatus(c *gin.Context) {
	audio, ok := h.lookup(c)
	if !ok {
		return
	}
	response.OK(c, gin.H{
		"status":       audio.Status,
		"status_label": audio.Status.Label(),
		"job_id":       audio.JobID,
	})
}

type statusRequest struct {
	Status models.AudioStatus `json:"status"`
}

// PutStatus handles PUT /audios/:id/status: human review transitions. The
// processing state is owned by the worker and cannot be set here.
func (h *Handler) PutStatus(c *gin.Context) {
	audio, ok := h.lookup(c)
	if !ok {
		return
	}
	if !h.canMutate(c, audio) {
		return
	}

	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil || !models.ValidStatus(req.Status) {
		response.BadRequest(c, "invalid status")
		return
	}
	if req.Status == models.StatusProcessing {
		response.BadRequest(c, "processing status is set by the worker")
		return
	}

	if err := h.repo.UpdateStatus(c.Request.Context(), audio.ID, req.Status); err != nil {
		h.logger.Error("update status failed", zap.Error(err), zap.Int64("audio_id", audio.ID))
		response.Internal(c, "failed to update status")
		return
	}
	response.OK(c, gin.H{"status": req.Status, "status_label": req.Status.Label()})
}

// Reprocess handles POST /audios/:id/reprocess: drop the old transcript and
// run the pipeline again. Refused while a run is already in flight.
func (h *Handler) Reprocess(c *gin.Context) {
	audio, ok := h.lookup(c)
	if !ok {
		return
	}
	if !h.canMutate(c, audio) {
		return
	}
	if audio.Status == models.StatusProcessing {
		response.Conflict(c, "audio is already being processed")
		return
	}

	if err := h.transcripts.DeleteByAudioID(c.Request.Context(), audio.ID); err != nil {
		h.logger.Error("drop transcript failed", zap.Error(err), zap.Int64("audio_id", audio.ID))
		response.Internal(c, "failed to reprocess audio")
		return
	}
	if err := h.repo.UpdateStatus(c.Request.Context(), audio.ID, models.StatusAwaitingProcessing); err != nil {
		h.logger.Error("reset status failed", zap.Error(err), zap.Int64("audio_id", audio.ID))
		response.Internal(c, "failed to reprocess audio")
		return
	}

	jobID := h.enqueue(c.Request.Context(), audio, audio.Name)
	if jobID == "" {
		response.Internal(c, "failed to enqueue processing job")
		return
	}
	response.OK(c, gin.H{"job_id": jobID, "status": models.StatusAwaitingProcessing})
}

// DownloadURL handles GET /audios/:id/download-url: presigned URL for the
// archived copy of the recording.
func (h *Handler) DownloadURL(c *gin.Context) {
	audio, ok := h.lookup(c)
	if !ok {
		return
	}
	if h.s3 == nil {
		response.ServiceUnavailable(c, "archive storage not configured")
		return
	}
	if audio.ArchiveKey == "" {
		response.NotFound(c, "audio has not been archived")
		return
	}
	expire := h.s3.PresignExpire()
	url, err := h.s3.GeneratePresignedDownloadURL(c.Request.Context(), audio.ArchiveKey, expire)
	if err != nil {
		h.logger.Error("presign audio download failed", zap.Error(err), zap.Int64("audio_id", audio.ID))
		response.Internal(c, "failed to generate download URL")
		return
	}
	response.OK(c, gin.H{"download_url": url, "expires_in": int(expire.Seconds())})
}

// FixStatuses handles POST /admin/audios/fix-status: reconcile status drift
// left behind by crashed workers.
func (h *Handler) FixStatuses(c *gin.Context) {
	promoted, released, err := h.repo.ReconcileStatuses(c.Request.Context(), 30*time.Minute)
	if err != nil {
		h.logger.Error("reconcile statuses failed", zap.Error(err))
		response.Internal(c, "failed to reconcile statuses")
		return
	}
	response.OK(c, gin.H{"promoted": promoted, "released": released})
}

// ListCategories handles GET /categories.
func (h *Handler) ListCategories(c *gin.Context) {
	list, err := h.repo.ListCategories(c.Request.Context())
	if err != nil {
		h.logger.Error("list categories failed", zap.Error(err))
		response.Internal(c, "failed to list categories")
		return
	}
	response.OK(c, list)
}

// lookup resolves the :id path parameter to an audio, writing the error
// response itself when it cannot.
func (h *Handler) lookup(c *gin.Context) (*models.Audio, bool) {
	publicID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid audio id")
		return nil, false
	}
	audio, err := h.repo.GetByPublicID(c.Request.Context(), publicID)
	if errors.Is(err, ErrNotFound) {
		response.NotFound(c, "audio not found")
		return nil, false
	}
	if err != nil {
		h.logger.Error("load audio failed", zap.Error(err), zap.String("public_id", publicID.String()))
		response.Internal(c, "failed to load audio")
		return nil, false
	}
	return audio, true
}

// canMutate allows admins and the uploader, writing the error response when
// refusing.
func (h *Handler) canMutate(c *gin.Context, audio *models.Audio) bool {
	role := c.MustGet(middleware.ContextUserRole).(string)
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	if role == string(models.RoleAdmin) || audio.UploadedBy == userID {
		return true
	}
	response.Forbidden(c, "not authorized to modify this audio")
	return false
}
