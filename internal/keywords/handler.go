package keywords

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

// Handler handles keyword HTTP endpoints.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates a keywords handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

// List handles GET /keywords, optionally filtered by category_id.
func (h *Handler) List(c *gin.Context) {
	var categoryID int64
	if v := c.Query("category_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			response.BadRequest(c, "invalid category_id filter")
			return
		}
		categoryID = id
	}
	list, err := h.repo.List(c.Request.Context(), categoryID)
	if err != nil {
		h.logger.Error("list keywords failed", zap.Error(err))
		response.Internal(c, "failed to list keywords")
		return
	}
	response.OK(c, list)
}

type keywordRequest struct {
	Term        string `json:"term"`
	CategoryID  int64  `json:"category_id"`
	Description string `json:"description"`
}

// Create handles POST /keywords.
func (h *Handler) Create(c *gin.Context) {
	var req keywordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Term) == "" {
		response.BadRequest(c, "term is required")
		return
	}
	if req.CategoryID <= 0 {
		response.BadRequest(c, "invalid category_id")
		return
	}
	k := &models.Keyword{
		Term:        strings.TrimSpace(req.Term),
		CategoryID:  req.CategoryID,
		Description: strings.TrimSpace(req.Description),
		CreatedBy:   c.MustGet(middleware.ContextUserID).(uuid.UUID),
	}
	if err := h.repo.Create(c.Request.Context(), k); err != nil {
		h.logger.Error("create keyword failed", zap.Error(err))
		response.Internal(c, "failed to create keyword")
		return
	}
	response.Created(c, k)
}

// Update handles PUT /keywords/:id.
func (h *Handler) Update(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid keyword id")
		return
	}
	var req keywordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Term) == "" {
		response.BadRequest(c, "term is required")
		return
	}
	k, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "keyword not found")
		return
	}
	k.Term = strings.TrimSpace(req.Term)
	if req.CategoryID > 0 {
		k.CategoryID = req.CategoryID
	}
	k.Description = strings.TrimSpace(req.Description)
	if err := h.repo.Update(c.Request.Context(), k); err != nil {
		h.logger.Error("update keyword failed", zap.Error(err), zap.Int64("keyword_id", id))
		response.Internal(c, "failed to update keyword")
		return
	}
	response.OK(c, k)
}

// Delete handles DELETE /keywords/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid keyword id")
		return
	}
	if err := h.repo.Delete(c.Request.Context(), id); err != nil {
		h.logger.Error("delete keyword failed", zap.Error(err), zap.Int64("keyword_id", id))
		response.Internal(c, "failed to delete keyword")
		return
	}
	response.NoContent(c)
}
