package transcripts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/soundscribe/backend/internal/models"
)

// ErrNotFound is returned when an audio has no transcript yet.
var ErrNotFound = errors.New("transcript not found")

// Repository handles transcript persistence. Each audio has at most one
// transcript.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a transcripts repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const transcriptColumns = `id, audio_id, raw_text, processed_text, custom_text, created_at, updated_at`

func scanTranscript(row pgx.Row) (*models.Transcript, error) {
	var t models.Transcript
	err := row.Scan(&t.ID, &t.AudioID, &t.RawText, &t.ProcessedText, &t.CustomText, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetByAudioID returns the transcript for an audio.
func (r *Repository) GetByAudioID(ctx context.Context, audioID int64) (*models.Transcript, error) {
	const q = `SELECT ` + transcriptColumns + ` FROM transcripts WHERE audio_id = $1`
	return scanTranscript(r.pool.QueryRow(ctx, q, audioID))
}

// Replace drops any existing transcript for the audio and inserts a fresh one
// in a single transaction, so a reprocessed item never keeps stale text.
func (r *Repository) Replace(ctx context.Context, audioID int64, rawText, processedText string) (*models.Transcript, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM transcripts WHERE audio_id = $1`, audioID); err != nil {
		return nil, fmt.Errorf("delete old transcript: %w", err)
	}

	t := &models.Transcript{AudioID: audioID, RawText: rawText, ProcessedText: processedText}
	err = tx.QueryRow(ctx, `INSERT INTO transcripts (audio_id, raw_text, processed_text)
		VALUES ($1, $2, $3) RETURNING id, created_at, updated_at`,
		audioID, rawText, processedText).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert transcript: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return t, nil
}

// DeleteByAudioID removes the transcript for an audio, if any.
func (r *Repository) DeleteByAudioID(ctx context.Context, audioID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM transcripts WHERE audio_id = $1`, audioID)
	return err
}

// UpdateCustomText stores the reviewer's edited text for an audio's
// transcript.
func (r *Repository) UpdateCustomText(ctx context.Context, audioID int64, customText string) (*models.Transcript, error) {
	const q = `UPDATE transcripts SET custom_text = $1, updated_at = NOW()
		WHERE audio_id = $2 RETURNING ` + transcriptColumns
	return scanTranscript(r.pool.QueryRow(ctx, q, customText, audioID))
}
