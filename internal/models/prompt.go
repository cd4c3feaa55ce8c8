package models

import (
	"time"

	"github.com/google/uuid"
)

// Prompt is a refinement instruction configured for a category of audio.
type Prompt struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	CategoryID int64     `json:"category_id"`
	IsActive   bool      `json:"is_active"`
	CreatedBy  uuid.UUID `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Keyword is a dictionary term attached to a category.
type Keyword struct {
	ID          int64     `json:"id"`
	Term        string    `json:"term"`
	CategoryID  int64     `json:"category_id"`
	Description string    `json:"description,omitempty"`
	CreatedBy   uuid.UUID `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
