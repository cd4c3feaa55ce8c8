package prompts

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/soundscribe/backend/internal/middleware"
	"github.com/soundscribe/backend/internal/models"
	"github.com/soundscribe/backend/pkg/response"
)

// Handler handles prompt HTTP endpoints. Routes are admin-only; the role
// check lives in the router.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates a prompts handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

// List handles GET /prompts.
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list prompts failed", zap.Error(err))
		response.Internal(c, "failed to list prompts")
		return
	}
	response.OK(c, list)
}

type promptRequest struct {
	Title      string `json:"title"`
	Content    string `json:"content"`
	CategoryID int64  `json:"category_id"`
	IsActive   bool   `json:"is_active"`
}

func (r *promptRequest) validate() string {
	if strings.TrimSpace(r.Title) == "" {
		return "title is required"
	}
	if strings.TrimSpace(r.Content) == "" {
		return "content is required"
	}
	if r.CategoryID <= 0 {
		return "invalid category_id"
	}
	return ""
}

// Create handles POST /prompts.
func (h *Handler) Create(c *gin.Context) {
	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		response.BadRequest(c, msg)
		return
	}
	p := &models.Prompt{
		Title:      strings.TrimSpace(req.Title),
		Content:    req.Content,
		CategoryID: req.CategoryID,
		IsActive:   req.IsActive,
		CreatedBy:  c.MustGet(middleware.ContextUserID).(uuid.UUID),
	}
	if err := h.repo.Create(c.Request.Context(), p); err != nil {
		h.logger.Error("create prompt failed", zap.Error(err))
		response.Internal(c, "failed to create prompt")
		return
	}
	response.Created(c, p)
}

// Update handles PUT /prompts/:id.
func (h *Handler) Update(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid prompt id")
		return
	}
	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		response.BadRequest(c, msg)
		return
	}
	p, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "prompt not found")
		return
	}
	p.Title = strings.TrimSpace(req.Title)
	p.Content = req.Content
	p.CategoryID = req.CategoryID
	p.IsActive = req.IsActive
	if err := h.repo.Update(c.Request.Context(), p); err != nil {
		h.logger.Error("update prompt failed", zap.Error(err), zap.Int64("prompt_id", id))
		response.Internal(c, "failed to update prompt")
		return
	}
	response.OK(c, p)
}

// Delete handles DELETE /prompts/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid prompt id")
		return
	}
	if err := h.repo.Delete(c.Request.Context(), id); err != nil {
		h.logger.Error("delete prompt failed", zap.Error(err), zap.Int64("prompt_id", id))
		response.Internal(c, "failed to delete prompt")
		return
	}
	response.NoContent(c)
}
