package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"maxxpharm/internal/domain"
)

type CategoryRepository struct {
	db *sql.DB
}

func NewCategoryRepository(db *sql.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

const categoryColumns = `id, name, COALESCE(description, ''), is_active, created_at, updated_at`

func scanCategory(row rowScanner) (*domain.Category, error) {
	var c domain.Category
	var updatedAt sql.NullTime
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &c.IsActive, &c.CreatedAt, &updatedAt); err != nil {
		return nil, err
	}
	c.UpdatedAt = updatedAt.Time
	return &c, nil
}

func (r *CategoryRepository) Create(ctx context.Context, q DBTX, c *domain.Category) error {
	query := `
		INSERT INTO categories (name, description, is_active, created_at)
		VALUES (?, ?, 1, CURRENT_TIMESTAMP)
	`

	result, err := q.ExecContext(ctx, query, c.Name, nullString(c.Description))
	if err != nil {
		return fmt.Errorf("error creating category: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = id
	c.IsActive = true
	return nil
}

func (r *CategoryRepository) GetByID(ctx context.Context, id int64) (*domain.Category, error) {
	return r.get(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id)
}

func (r *CategoryRepository) GetByName(ctx context.Context, name string) (*domain.Category, error) {
	return r.get(ctx, `SELECT `+categoryColumns+` FROM categories WHERE name = ?`, name)
}

func (r *CategoryRepository) get(ctx context.Context, query string, args ...any) (*domain.Category, error) {
	c, err := scanCategory(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting category: %w", err)
	}
	return c, nil
}

// GetActive lists active categories ordered by name
func (r *CategoryRepository) GetActive(ctx context.Context) ([]domain.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE is_active = 1 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("error querying categories: %w", err)
	}
	defer rows.Close()

	var categories []domain.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning category: %w", err)
		}
		categories = append(categories, *c)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating category rows: %w", err)
	}
	return categories, nil
}

func (r *CategoryRepository) Update(ctx context.Context, q DBTX, c *domain.Category) error {
	query := `
		UPDATE categories
		SET name = ?, description = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	result, err := q.ExecContext(ctx, query, c.Name, nullString(c.Description), c.ID)
	if err != nil {
		return fmt.Errorf("error updating category: %w", err)
	}
	return requireAffected(result)
}

// SoftDelete hides the category from the catalog
func (r *CategoryRepository) SoftDelete(ctx context.Context, q DBTX, id int64) error {
	result, err := q.ExecContext(ctx, `UPDATE categories SET is_active = 0, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND is_active = 1`, id)
	if err != nil {
		return fmt.Errorf("error deleting category: %w", err)
	}
	return requireAffected(result)
}

func requireAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// IsActive reports whether an active category with the id exists
func (r *CategoryRepository) IsActive(ctx context.Context, q DBTX, id int64) (bool, error) {
	var active bool
	err := q.QueryRowContext(ctx, `SELECT is_active FROM categories WHERE id = ?`, id).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error checking category: %w", err)
	}
	return active, nil
}
