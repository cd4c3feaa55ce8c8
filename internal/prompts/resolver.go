package prompts

import (
	"context"

	"go.uber.org/zap"

	"github.com/soundscribe/backend/internal/models"
)

// GenericPrompt is the last-resort refinement instruction.
const GenericPrompt = "Rewrite this transcript as formal meeting minutes."

// DefaultKindPrompts are the static fallbacks used when no prompt is
// configured for the audio's category.
var DefaultKindPrompts = map[models.AudioKind]string{
	models.KindMeeting: "Rewrite this transcript as formal meeting minutes with a clear structure: summary, attendees and resolutions.",
	models.KindLesson:  "Rewrite this transcript as a lesson-learned document covering the problem, the corrective action and the outcome.",
}

// Lookup is the subset of the prompt repository the resolver needs.
type Lookup interface {
	FirstActiveByCategory(ctx context.Context, categoryID int64) (*models.Prompt, error)
	FirstActiveByCategoryTitle(ctx context.Context, title string) (*models.Prompt, error)
}

// Resolver picks the refinement instruction for an audio item. It never fails:
// lookup errors degrade to the static defaults.
type Resolver struct {
	store  Lookup
	logger *zap.Logger
}

// NewResolver creates a prompt resolver.
func NewResolver(store Lookup, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{store: store, logger: logger}
}

// Resolve returns the prompt text for an audio item: active prompt by
// category, then by kind label match against category titles, then the static
// per-kind default, then the generic fallback.
func (r *Resolver) Resolve(ctx context.Context, audio *models.Audio) string {
	if p, err := r.store.FirstActiveByCategory(ctx, audio.CategoryID); err != nil {
		r.logger.Warn("prompt lookup by category failed", zap.Int64("category_id", audio.CategoryID), zap.Error(err))
	} else if p != nil && p.Content != "" {
		return p.Content
	}

	if p, err := r.store.FirstActiveByCategoryTitle(ctx, audio.Kind.Label()); err != nil {
		r.logger.Warn("prompt lookup by kind label failed", zap.String("kind", string(audio.Kind)), zap.Error(err))
	} else if p != nil && p.Content != "" {
		return p.Content
	}

	if text, ok := DefaultKindPrompts[audio.Kind]; ok {
		return text
	}
	return GenericPrompt
}
