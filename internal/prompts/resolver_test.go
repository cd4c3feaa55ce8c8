package prompts

import (
	"context"
	"errors"
	"testing"

	"github.com/soundscribe/backend/internal/models"
)

type fakeLookup struct {
	byCategory map[int64]*models.Prompt
	byTitle    map[string]*models.Prompt
	err        error
}

func (f *fakeLookup) FirstActiveByCategory(ctx context.Context, categoryID int64) (*models.Prompt, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byCategory[categoryID], nil
}

func (f *fakeLookup) FirstActiveByCategoryTitle(ctx context.Context, title string) (*models.Prompt, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byTitle[title], nil
}

func TestResolvePrefersCategoryPrompt(t *testing.T) {
	store := &fakeLookup{
		byCategory: map[int64]*models.Prompt{3: {Content: "category prompt"}},
		byTitle:    map[string]*models.Prompt{"Meeting minutes": {Content: "title prompt"}},
	}
	r := NewResolver(store, nil)
	got := r.Resolve(context.Background(), &models.Audio{CategoryID: 3, Kind: models.KindMeeting})
	if got != "category prompt" {
		t.Errorf("Resolve = %q, want category prompt", got)
	}
}

func TestResolveFallsBackToKindTitle(t *testing.T) {
	store := &fakeLookup{
		byTitle: map[string]*models.Prompt{"Lesson learned": {Content: "title prompt"}},
	}
	r := NewResolver(store, nil)
	got := r.Resolve(context.Background(), &models.Audio{CategoryID: 9, Kind: models.KindLesson})
	if got != "title prompt" {
		t.Errorf("Resolve = %q, want title prompt", got)
	}
}

func TestResolveFallsBackToKindDefault(t *testing.T) {
	r := NewResolver(&fakeLookup{}, nil)
	got := r.Resolve(context.Background(), &models.Audio{CategoryID: 9, Kind: models.KindMeeting})
	if got != DefaultKindPrompts[models.KindMeeting] {
		t.Errorf("Resolve = %q, want kind default", got)
	}
}

func TestResolveUnknownKindUsesGenericPrompt(t *testing.T) {
	r := NewResolver(&fakeLookup{}, nil)
	got := r.Resolve(context.Background(), &models.Audio{CategoryID: 9, Kind: "podcast"})
	if got != GenericPrompt {
		t.Errorf("Resolve = %q, want generic prompt", got)
	}
}

func TestResolveDegradesOnLookupErrors(t *testing.T) {
	r := NewResolver(&fakeLookup{err: errors.New("db down")}, nil)
	got := r.Resolve(context.Background(), &models.Audio{CategoryID: 3, Kind: models.KindLesson})
	if got != DefaultKindPrompts[models.KindLesson] {
		t.Errorf("Resolve = %q, want kind default despite errors", got)
	}
}
