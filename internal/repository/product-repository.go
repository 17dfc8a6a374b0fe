package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"maxxpharm/internal/domain"

	"github.com/shopspring/decimal"
)

type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{
		db: db,
	}
}

const productSelect = `
	SELECT p.id, p.name, COALESCE(p.description, ''), p.price_minor, p.stock_quantity,
		p.category_id, COALESCE(c.name, ''), COALESCE(p.image_path, ''), p.is_active,
		p.created_at, p.updated_at
	FROM products p
	LEFT JOIN categories c ON c.id = p.category_id
`

func scanProduct(row rowScanner) (*domain.Product, error) {
	var p domain.Product
	var priceMinor int64
	var updatedAt sql.NullTime
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&priceMinor,
		&p.StockQuantity,
		&p.CategoryID,
		&p.CategoryName,
		&p.ImagePath,
		&p.IsActive,
		&p.CreatedAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Price = domain.MoneyFromMinor(priceMinor)
	p.UpdatedAt = updatedAt.Time
	return &p, nil
}

// Create a new product
func (r *ProductRepository) Create(ctx context.Context, q DBTX, p *domain.Product) error {
	query := `
		INSERT INTO products (name, description, price_minor, stock_quantity, category_id, image_path, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, CURRENT_TIMESTAMP)
	`

	result, err := q.ExecContext(ctx, query,
		p.Name,
		nullString(p.Description),
		domain.MoneyToMinor(p.Price),
		p.StockQuantity,
		p.CategoryID,
		nullString(p.ImagePath))
	if err != nil {
		return fmt.Errorf("error creating product: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = id
	p.IsActive = true
	return nil
}

// GetByID returns an active product
func (r *ProductRepository) GetByID(ctx context.Context, q DBTX, id int64) (*domain.Product, error) {
	return r.get(ctx, q, productSelect+` WHERE p.id = ? AND p.is_active = 1`, id)
}

func (r *ProductRepository) GetByName(ctx context.Context, name string) (*domain.Product, error) {
	return r.get(ctx, r.db, productSelect+` WHERE p.name = ? AND p.is_active = 1`, name)
}

func (r *ProductRepository) get(ctx context.Context, q DBTX, query string, args ...any) (*domain.Product, error) {
	p, err := scanProduct(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting product: %w", err)
	}
	return p, nil
}

// GetAll lists active products ordered by name
func (r *ProductRepository) GetAll(ctx context.Context) ([]domain.Product, error) {
	return r.list(ctx, productSelect+` WHERE p.is_active = 1 ORDER BY p.name`)
}

func (r *ProductRepository) GetByCategory(ctx context.Context, categoryID int64) ([]domain.Product, error) {
	return r.list(ctx, productSelect+` WHERE p.category_id = ? AND p.is_active = 1 ORDER BY p.name`, categoryID)
}

// SearchByName matches the query against product names, ignoring case.
// sqlite LOWER only folds ASCII, so Cyrillic names are matched here.
func (r *ProductRepository) SearchByName(ctx context.Context, name string) ([]domain.Product, error) {
	all, err := r.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("error searching products: %w", err)
	}

	needle := strings.ToLower(strings.TrimSpace(name))
	var found []domain.Product
	for _, p := range all {
		if strings.Contains(strings.ToLower(p.Name), needle) {
			found = append(found, p)
		}
	}
	return found, nil
}

// AdvancedSearch filters by name, category and price bounds; zero values disable a filter
func (r *ProductRepository) AdvancedSearch(ctx context.Context, name string, categoryID int64, minPrice, maxPrice decimal.Decimal) ([]domain.Product, error) {
	query := productSelect + ` WHERE p.is_active = 1`
	var args []any

	if categoryID > 0 {
		query += " AND p.category_id = ?"
		args = append(args, categoryID)
	}

	if minPrice.IsPositive() {
		query += " AND p.price_minor >= ?"
		args = append(args, domain.MoneyToMinor(minPrice))
	}

	if maxPrice.IsPositive() {
		query += " AND p.price_minor <= ?"
		args = append(args, domain.MoneyToMinor(maxPrice))
	}

	query += " ORDER BY p.name"

	products, err := r.list(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return products, nil
	}

	needle := strings.ToLower(name)
	filtered := products[:0]
	for _, p := range products {
		if strings.Contains(strings.ToLower(p.Name), needle) {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}

// LowStock lists active products with stock at or below the threshold, scarcest first
func (r *ProductRepository) LowStock(ctx context.Context, threshold int) ([]domain.Product, error) {
	return r.list(ctx, productSelect+` WHERE p.is_active = 1 AND p.stock_quantity <= ? ORDER BY p.stock_quantity, p.name`, threshold)
}

func (r *ProductRepository) list(ctx context.Context, query string, args ...any) ([]domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying products: %w", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning product: %w", err)
		}
		products = append(products, *p)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating product rows: %w", err)
	}
	return products, nil
}

// Update product
func (r *ProductRepository) Update(ctx context.Context, q DBTX, p *domain.Product) error {
	query := `
		UPDATE products
		SET name = ?, description = ?, price_minor = ?, stock_quantity = ?, category_id = ?, image_path = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND is_active = 1
	`

	result, err := q.ExecContext(ctx, query,
		p.Name,
		nullString(p.Description),
		domain.MoneyToMinor(p.Price),
		p.StockQuantity,
		p.CategoryID,
		nullString(p.ImagePath),
		p.ID)
	if err != nil {
		return fmt.Errorf("error updating product: %w", err)
	}
	return requireAffected(result)
}

// SoftDelete hides the product from the catalog
func (r *ProductRepository) SoftDelete(ctx context.Context, q DBTX, id int64) error {
	result, err := q.ExecContext(ctx, `UPDATE products SET is_active = 0, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND is_active = 1`, id)
	if err != nil {
		return fmt.Errorf("error deleting product: %w", err)
	}
	return requireAffected(result)
}

func (r *ProductRepository) SetStock(ctx context.Context, q DBTX, id int64, quantity int) error {
	result, err := q.ExecContext(ctx, `UPDATE products SET stock_quantity = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND is_active = 1`, quantity, id)
	if err != nil {
		return fmt.Errorf("error setting stock: %w", err)
	}
	return requireAffected(result)
}

// AddStock puts quantity back on the shelf, inactive products included.
func (r *ProductRepository) AddStock(ctx context.Context, q DBTX, id int64, quantity int) error {
	result, err := q.ExecContext(ctx, `UPDATE products SET stock_quantity = stock_quantity + ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, quantity, id)
	if err != nil {
		return fmt.Errorf("error adding stock: %w", err)
	}
	return requireAffected(result)
}

// TakeStock decrements stock only if enough is available and reports whether it did
func (r *ProductRepository) TakeStock(ctx context.Context, q DBTX, id int64, quantity int) (bool, error) {
	query := `
		UPDATE products
		SET stock_quantity = stock_quantity - ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND is_active = 1 AND stock_quantity >= ?
	`

	result, err := q.ExecContext(ctx, query, quantity, id, quantity)
	if err != nil {
		return false, fmt.Errorf("error taking stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error getting rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}
