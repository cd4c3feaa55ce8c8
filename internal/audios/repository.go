package audios

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/soundscribe/backend/internal/models"
)

// ErrNotFound is returned when an audio does not exist.
var ErrNotFound = errors.New("audio not found")

// Repository handles audio persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an audios repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const audioColumns = `id, public_id, name, subject, kind, category_id, file_path, status,
	vendor_token, job_id, archive_key, duration, uploaded_by, created_at, updated_at`

func scanAudio(row pgx.Row) (*models.Audio, error) {
	var a models.Audio
	err := row.Scan(&a.ID, &a.PublicID, &a.Name, &a.Subject, &a.Kind, &a.CategoryID, &a.FilePath,
		&a.Status, &a.VendorToken, &a.JobID, &a.ArchiveKey, &a.Duration, &a.UploadedBy, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Create inserts a new audio in the awaiting-processing state.
func (r *Repository) Create(ctx context.Context, a *models.Audio) error {
	if a.PublicID == uuid.Nil {
		a.PublicID = uuid.New()
	}
	if a.Status == "" {
		a.Status = models.StatusAwaitingProcessing
	}
	const q = `INSERT INTO audios (public_id, name, subject, kind, category_id, file_path, status, duration, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, a.PublicID, a.Name, a.Subject, a.Kind, a.CategoryID, a.FilePath,
		a.Status, a.Duration, a.UploadedBy).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
}

// GetByID returns an audio by internal ID.
func (r *Repository) GetByID(ctx context.Context, id int64) (*models.Audio, error) {
	const q = `SELECT ` + audioColumns + ` FROM audios WHERE id = $1`
	return scanAudio(r.pool.QueryRow(ctx, q, id))
}

// GetByPublicID returns an audio by its public UUID.
func (r *Repository) GetByPublicID(ctx context.Context, publicID uuid.UUID) (*models.Audio, error) {
	const q = `SELECT ` + audioColumns + ` FROM audios WHERE public_id = $1`
	return scanAudio(r.pool.QueryRow(ctx, q, publicID))
}

// ListFilter narrows List results. Zero values mean no filtering.
type ListFilter struct {
	Status     models.AudioStatus
	Kind       models.AudioKind
	CategoryID int64
	UploadedBy uuid.UUID
}

// List returns audios newest first, optionally filtered.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]models.Audio, error) {
	var (
		conds []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Kind != "" {
		args = append(args, f.Kind)
		conds = append(conds, fmt.Sprintf("kind = $%d", len(args)))
	}
	if f.CategoryID != 0 {
		args = append(args, f.CategoryID)
		conds = append(conds, fmt.Sprintf("category_id = $%d", len(args)))
	}
	if f.UploadedBy != uuid.Nil {
		args = append(args, f.UploadedBy)
		conds = append(conds, fmt.Sprintf("uploaded_by = $%d", len(args)))
	}
	q := `SELECT ` + audioColumns + ` FROM audios`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY created_at DESC"

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Audio
	for rows.Next() {
		var a models.Audio
		if err := rows.Scan(&a.ID, &a.PublicID, &a.Name, &a.Subject, &a.Kind, &a.CategoryID, &a.FilePath,
			&a.Status, &a.VendorToken, &a.JobID, &a.ArchiveKey, &a.Duration, &a.UploadedBy, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

// CountByStatus returns the number of audios per lifecycle status.
func (r *Repository) CountByStatus(ctx context.Context) (map[models.AudioStatus]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM audios GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[models.AudioStatus]int64)
	for rows.Next() {
		var status models.AudioStatus
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// Update modifies the editable metadata fields.
func (r *Repository) Update(ctx context.Context, a *models.Audio) error {
	const q = `UPDATE audios SET name = $1, subject = $2, kind = $3, category_id = $4, updated_at = NOW()
		WHERE id = $5 RETURNING updated_at`
	err := r.pool.QueryRow(ctx, q, a.Name, a.Subject, a.Kind, a.CategoryID, a.ID).Scan(&a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// UpdateStatus moves an audio to a new lifecycle status.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, status models.AudioStatus) error {
	tag, err := r.pool.Exec(ctx, `UPDATE audios SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetVendorToken records the vendor file token for an audio.
func (r *Repository) SetVendorToken(ctx context.Context, id int64, token string) error {
	_, err := r.pool.Exec(ctx, `UPDATE audios SET vendor_token = $1, updated_at = NOW() WHERE id = $2`, token, id)
	return err
}

// SetJobID records the background job handle driving an audio.
func (r *Repository) SetJobID(ctx context.Context, id int64, jobID string) error {
	_, err := r.pool.Exec(ctx, `UPDATE audios SET job_id = $1, updated_at = NOW() WHERE id = $2`, jobID, id)
	return err
}

// SetArchiveKey records where the recording was archived.
func (r *Repository) SetArchiveKey(ctx context.Context, id int64, key string) error {
	_, err := r.pool.Exec(ctx, `UPDATE audios SET archive_key = $1, updated_at = NOW() WHERE id = $2`, key, id)
	return err
}

// Delete removes an audio. Its transcript goes with it via the foreign key.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM audios WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ReconcileStatuses repairs drift between audios and their transcripts:
// items that have a transcript but never reached the produced state are
// promoted, and items stuck in processing longer than stuckAfter with no
// transcript are sent back to await processing.
func (r *Repository) ReconcileStatuses(ctx context.Context, stuckAfter time.Duration) (promoted, released int64, err error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE audios SET status = $1, updated_at = NOW()
		WHERE status IN ($2, $3, $4)
		AND EXISTS (SELECT 1 FROM transcripts t WHERE t.audio_id = audios.id)`,
		models.StatusProduced, models.StatusAwaitingProcessing, models.StatusProcessing, models.StatusServiceUnavailable)
	if err != nil {
		return 0, 0, fmt.Errorf("promote produced: %w", err)
	}
	promoted = tag.RowsAffected()

	tag, err = r.pool.Exec(ctx, `
		UPDATE audios SET status = $1, updated_at = NOW()
		WHERE status = $2
		AND updated_at < NOW() - $3::interval
		AND NOT EXISTS (SELECT 1 FROM transcripts t WHERE t.audio_id = audios.id)`,
		models.StatusAwaitingProcessing, models.StatusProcessing, fmt.Sprintf("%d seconds", int(stuckAfter.Seconds())))
	if err != nil {
		return promoted, 0, fmt.Errorf("release stuck: %w", err)
	}
	released = tag.RowsAffected()
	return promoted, released, nil
}

// ListCategories returns all categories ordered by title.
func (r *Repository) ListCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, title FROM categories ORDER BY title`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Title); err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}
