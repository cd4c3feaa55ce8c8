// Package progress is the side channel background jobs publish their state
// on. Records are kept in Redis keyed by job handle, readable independently of
// the audio row, and expire after a retention window.
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// State is the job execution state, mirroring the worker's native states.
type State string

const (
	StatePending  State = "PENDING"
	StateProgress State = "PROGRESS"
	StateSuccess  State = "SUCCESS"
	StateFailure  State = "FAILURE"
)

// DefaultTTL is how long terminal records remain queryable.
const DefaultTTL = 24 * time.Hour

const keyPrefix = "jobs:progress:"

// Record is one job's published state.
type Record struct {
	JobID      string         `json:"job_id"`
	State      State          `json:"state"`
	Progress   int            `json:"progress"` // 0-100
	Message    string         `json:"message"`
	Result     map[string]any `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
	ErrorKind  string         `json:"error_kind,omitempty"`
	RetryAfter int            `json:"retry_after_sec,omitempty"` // suggested delay before manual retry
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Terminal reports whether the record is in a final state.
func (r *Record) Terminal() bool {
	return r.State == StateSuccess || r.State == StateFailure
}

// Store reads and writes job progress records in Redis.
type Store struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewStore creates a progress store. ttl <= 0 uses DefaultTTL.
func NewStore(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{rdb: rdb, ttl: ttl, logger: logger}
}

func (s *Store) write(ctx context.Context, rec *Record) error {
	rec.UpdatedAt = time.Now()
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal progress record: %w", err)
	}
	if err := s.rdb.Set(ctx, keyPrefix+rec.JobID, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("store progress record: %w", err)
	}
	return nil
}

// Report publishes an incremental progress update.
func (s *Store) Report(ctx context.Context, jobID string, percentage int, message string) error {
	return s.write(ctx, &Record{
		JobID:    jobID,
		State:    StateProgress,
		Progress: clamp(percentage),
		Message:  message,
	})
}

// Succeed publishes the terminal success record with an optional result payload.
func (s *Store) Succeed(ctx context.Context, jobID string, result map[string]any) error {
	return s.write(ctx, &Record{
		JobID:    jobID,
		State:    StateSuccess,
		Progress: 100,
		Message:  "processing complete",
		Result:   result,
	})
}

// Fail publishes the terminal failure record. retryAfter > 0 suggests when a
// manual retry is worth attempting (transient vendor outages).
func (s *Store) Fail(ctx context.Context, jobID, kind, message string, retryAfter time.Duration) error {
	rec := &Record{
		JobID:     jobID,
		State:     StateFailure,
		Message:   message,
		Error:     message,
		ErrorKind: kind,
	}
	if retryAfter > 0 {
		rec.RetryAfter = int(retryAfter.Seconds())
	}
	return s.write(ctx, rec)
}

// Get returns the record for a job handle. Unknown handles report PENDING, the
// state of a job that has been enqueued but not yet picked up (or whose record
// has expired).
func (s *Store) Get(ctx context.Context, jobID string) (*Record, error) {
	raw, err := s.rdb.Get(ctx, keyPrefix+jobID).Bytes()
	if errors.Is(err, redis.Nil) {
		return &Record{JobID: jobID, State: StatePending, Message: "waiting to start"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read progress record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		s.logger.Warn("corrupt progress record", zap.String("job_id", jobID), zap.Error(err))
		return &Record{JobID: jobID, State: StatePending, Message: "waiting to start"}, nil
	}
	return &rec, nil
}

func clamp(pct int) int {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
