package models

import (
	"time"

	"github.com/google/uuid"
)

// AudioStatus is the coarse lifecycle state of an uploaded recording.
// It is the single source of truth for where an item is in its lifecycle.
type AudioStatus string

const (
	// StatusAwaitingProcessing: uploaded, waiting for a worker slot (also the
	// backpressure parking state when the vendor reports credit exhaustion).
	StatusAwaitingProcessing AudioStatus = "AP"
	// StatusProcessing: an orchestrator run is in flight.
	StatusProcessing AudioStatus = "P"
	// StatusProduced: transcript persisted, awaiting human review.
	StatusProduced AudioStatus = "PD"
	// StatusServiceUnavailable: vendor was unreachable or returned 5xx; the item
	// is eligible for manual retry.
	StatusServiceUnavailable AudioStatus = "SU"
	// StatusApproved: a human accepted the produced transcript.
	StatusApproved AudioStatus = "A"
	// StatusError: terminal pipeline failure.
	StatusError AudioStatus = "E"
	// StatusRejected: a human rejected the item.
	StatusRejected AudioStatus = "R"
)

// ValidStatus reports whether s is a member of the status enumeration.
func ValidStatus(s AudioStatus) bool {
	switch s {
	case StatusAwaitingProcessing, StatusProcessing, StatusProduced,
		StatusServiceUnavailable, StatusApproved, StatusError, StatusRejected:
		return true
	}
	return false
}

// Label returns the human-readable status name.
func (s AudioStatus) Label() string {
	switch s {
	case StatusAwaitingProcessing:
		return "awaiting processing"
	case StatusProcessing:
		return "processing"
	case StatusProduced:
		return "content produced"
	case StatusServiceUnavailable:
		return "service unavailable"
	case StatusApproved:
		return "approved"
	case StatusError:
		return "error"
	case StatusRejected:
		return "rejected"
	}
	return "unknown"
}

// AudioKind selects the document semantics of a recording.
type AudioKind string

const (
	KindMeeting AudioKind = "meeting" // meeting minutes
	KindLesson  AudioKind = "lesson"  // lesson learned
)

// ValidKind reports whether k is a known audio kind.
func ValidKind(k AudioKind) bool {
	return k == KindMeeting || k == KindLesson
}

// Label returns the display name of the kind, used in prompts and exports.
func (k AudioKind) Label() string {
	switch k {
	case KindMeeting:
		return "Meeting minutes"
	case KindLesson:
		return "Lesson learned"
	}
	return string(k)
}

// Audio is one uploaded recording.
type Audio struct {
	ID          int64       `json:"id"`
	PublicID    uuid.UUID   `json:"public_id"`
	Name        string      `json:"name"`
	Subject     string      `json:"subject"`
	Kind        AudioKind   `json:"kind"`
	CategoryID  int64       `json:"category_id"`
	FilePath    string      `json:"-"` // relative to the media dir
	Status      AudioStatus `json:"status"`
	VendorToken string      `json:"-"` // opaque file token from the transcription vendor
	JobID       string      `json:"job_id,omitempty"`
	ArchiveKey  string      `json:"-"` // S3 object key of the archived copy, when archived
	Duration    float64     `json:"duration,omitempty"`
	UploadedBy  uuid.UUID   `json:"uploaded_by"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Category groups audios and selects prompt/keyword sets.
type Category struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}
