package prompts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/soundscribe/backend/internal/models"
)

// Repository handles prompt persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a prompts repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const promptColumns = `id, title, content, category_id, is_active, created_by, created_at, updated_at`

func scanPrompt(row pgx.Row) (*models.Prompt, error) {
	var p models.Prompt
	err := row.Scan(&p.ID, &p.Title, &p.Content, &p.CategoryID, &p.IsActive, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FirstActiveByCategory returns the first active prompt configured for a
// category, or nil when none exists.
func (r *Repository) FirstActiveByCategory(ctx context.Context, categoryID int64) (*models.Prompt, error) {
	const q = `SELECT ` + promptColumns + ` FROM prompts WHERE category_id = $1 AND is_active ORDER BY id LIMIT 1`
	p, err := scanPrompt(r.pool.QueryRow(ctx, q, categoryID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// FirstActiveByCategoryTitle returns the first active prompt whose category
// title matches case-insensitively, or nil when none exists.
func (r *Repository) FirstActiveByCategoryTitle(ctx context.Context, title string) (*models.Prompt, error) {
	const q = `SELECT p.id, p.title, p.content, p.category_id, p.is_active, p.created_by, p.created_at, p.updated_at
		FROM prompts p JOIN categories c ON c.id = p.category_id
		WHERE lower(c.title) = lower($1) AND p.is_active ORDER BY p.id LIMIT 1`
	p, err := scanPrompt(r.pool.QueryRow(ctx, q, title))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// GetByID returns a prompt by ID.
func (r *Repository) GetByID(ctx context.Context, id int64) (*models.Prompt, error) {
	const q = `SELECT ` + promptColumns + ` FROM prompts WHERE id = $1`
	return scanPrompt(r.pool.QueryRow(ctx, q, id))
}

// List returns all prompts, newest first.
func (r *Repository) List(ctx context.Context) ([]models.Prompt, error) {
	const q = `SELECT ` + promptColumns + ` FROM prompts ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Prompt
	for rows.Next() {
		var p models.Prompt
		if err := rows.Scan(&p.ID, &p.Title, &p.Content, &p.CategoryID, &p.IsActive, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// Create inserts a new prompt.
func (r *Repository) Create(ctx context.Context, p *models.Prompt) error {
	const q = `INSERT INTO prompts (title, content, category_id, is_active, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, p.Title, p.Content, p.CategoryID, p.IsActive, p.CreatedBy).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

// Update modifies title, content, category and active flag of a prompt.
func (r *Repository) Update(ctx context.Context, p *models.Prompt) error {
	const q = `UPDATE prompts SET title = $1, content = $2, category_id = $3, is_active = $4, updated_at = NOW()
		WHERE id = $5 RETURNING updated_at`
	return r.pool.QueryRow(ctx, q, p.Title, p.Content, p.CategoryID, p.IsActive, p.ID).Scan(&p.UpdatedAt)
}

// Delete removes a prompt.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM prompts WHERE id = $1`, id)
	return err
}
