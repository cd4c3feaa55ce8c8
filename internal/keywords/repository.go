package keywords

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/soundscribe/backend/internal/models"
)

// ErrNotFound is returned when a keyword does not exist.
var ErrNotFound = errors.New("keyword not found")

// Repository handles keyword persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a keywords repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const keywordColumns = `id, term, category_id, description, created_by, created_at, updated_at`

func scanKeyword(row pgx.Row) (*models.Keyword, error) {
	var k models.Keyword
	err := row.Scan(&k.ID, &k.Term, &k.CategoryID, &k.Description, &k.CreatedBy, &k.CreatedAt, &k.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// List returns keywords, optionally narrowed to a category.
func (r *Repository) List(ctx context.Context, categoryID int64) ([]models.Keyword, error) {
	q := `SELECT ` + keywordColumns + ` FROM keywords ORDER BY term`
	args := []any{}
	if categoryID != 0 {
		q = `SELECT ` + keywordColumns + ` FROM keywords WHERE category_id = $1 ORDER BY term`
		args = append(args, categoryID)
	}
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Keyword
	for rows.Next() {
		var k models.Keyword
		if err := rows.Scan(&k.ID, &k.Term, &k.CategoryID, &k.Description, &k.CreatedBy, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, k)
	}
	return list, rows.Err()
}

// GetByID returns a keyword by ID.
func (r *Repository) GetByID(ctx context.Context, id int64) (*models.Keyword, error) {
	const q = `SELECT ` + keywordColumns + ` FROM keywords WHERE id = $1`
	return scanKeyword(r.pool.QueryRow(ctx, q, id))
}

// Create inserts a new keyword.
func (r *Repository) Create(ctx context.Context, k *models.Keyword) error {
	const q = `INSERT INTO keywords (term, category_id, description, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, k.Term, k.CategoryID, k.Description, k.CreatedBy).
		Scan(&k.ID, &k.CreatedAt, &k.UpdatedAt)
}

// Update modifies a keyword.
func (r *Repository) Update(ctx context.Context, k *models.Keyword) error {
	const q = `UPDATE keywords SET term = $1, category_id = $2, description = $3, updated_at = NOW()
		WHERE id = $4 RETURNING updated_at`
	err := r.pool.QueryRow(ctx, q, k.Term, k.CategoryID, k.Description, k.ID).Scan(&k.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// Delete removes a keyword.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM keywords WHERE id = $1`, id)
	return err
}
