package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"maxxpharm/internal/domain"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderSelect = `
	SELECT o.id, o.user_id, o.status, o.total_minor, COALESCE(o.delivery_address, ''),
		COALESCE(o.phone, ''), COALESCE(o.notes, ''), o.version, o.created_at, o.updated_at,
		COALESCE(u.full_name, ''), COALESCE(u.telegram_id, 0)
	FROM orders o
	LEFT JOIN users u ON u.id = o.user_id
`

func scanOrder(row rowScanner) (*domain.Order, error) {
	var o domain.Order
	var totalMinor int64
	var updatedAt sql.NullTime
	err := row.Scan(
		&o.ID,
		&o.UserID,
		&o.Status,
		&totalMinor,
		&o.DeliveryAddress,
		&o.Phone,
		&o.Notes,
		&o.Version,
		&o.CreatedAt,
		&updatedAt,
		&o.CustomerName,
		&o.CustomerTelegramID,
	)
	if err != nil {
		return nil, err
	}
	o.TotalAmount = domain.MoneyFromMinor(totalMinor)
	o.UpdatedAt = updatedAt.Time
	return &o, nil
}

// Create inserts a NEW order with version 1
func (r *OrderRepository) Create(ctx context.Context, q DBTX, order *domain.Order) error {
	query := `
		INSERT INTO orders (user_id, status, total_minor, delivery_address, phone, notes, version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, CURRENT_TIMESTAMP)
	`

	result, err := q.ExecContext(ctx, query,
		order.UserID,
		domain.StatusNew,
		domain.MoneyToMinor(order.TotalAmount),
		nullString(order.DeliveryAddress),
		nullString(order.Phone),
		nullString(order.Notes))
	if err != nil {
		return fmt.Errorf("error creating order: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}

	order.ID = id
	order.Status = domain.StatusNew
	order.Version = 1
	return nil
}

// GetByID retrieves an order with its items
func (r *OrderRepository) GetByID(ctx context.Context, q DBTX, id int64) (*domain.Order, error) {
	order, err := scanOrder(q.QueryRowContext(ctx, orderSelect+` WHERE o.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting order: %w", err)
	}

	order.Items, err = r.GetItems(ctx, q, id)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// GetByUserID retrieves the user's orders, newest first
func (r *OrderRepository) GetByUserID(ctx context.Context, userID int64, limit int) ([]domain.Order, error) {
	return r.list(ctx, orderSelect+` WHERE o.user_id = ? ORDER BY o.created_at DESC, o.id DESC LIMIT ?`, userID, limit)
}

func (r *OrderRepository) GetAll(ctx context.Context, limit int) ([]domain.Order, error) {
	return r.list(ctx, orderSelect+` ORDER BY o.created_at DESC, o.id DESC LIMIT ?`, limit)
}

func (r *OrderRepository) GetByStatus(ctx context.Context, status domain.OrderStatus, limit int) ([]domain.Order, error) {
	return r.list(ctx, orderSelect+` WHERE o.status = ? ORDER BY o.created_at DESC, o.id DESC LIMIT ?`, status, limit)
}

// GetStaleNew returns NEW orders created more than days ago
func (r *OrderRepository) GetStaleNew(ctx context.Context, days int) ([]domain.Order, error) {
	return r.list(ctx, orderSelect+` WHERE o.status = ? AND o.created_at < datetime('now', ?) ORDER BY o.id`, domain.StatusNew, daysAgo(days))
}

func (r *OrderRepository) list(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying orders: %w", err)
	}

	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("error scanning order: %w", err)
		}
		orders = append(orders, *order)
	}
	if err = rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating order rows: %w", err)
	}
	rows.Close()

	// Items are loaded after the cursor is released so a single connection is enough.
	for i := range orders {
		orders[i].Items, err = r.GetItems(ctx, r.db, orders[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *OrderRepository) GetItems(ctx context.Context, q DBTX, orderID int64) ([]domain.OrderItem, error) {
	query := `
		SELECT i.id, i.order_id, i.product_id, COALESCE(p.name, ''), i.quantity, i.price_minor, i.created_at
		FROM order_items i
		LEFT JOIN products p ON p.id = i.product_id
		WHERE i.order_id = ?
		ORDER BY i.id
	`

	rows, err := q.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("error querying order items: %w", err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		var priceMinor int64
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.ProductName,
			&item.Quantity,
			&priceMinor,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning order item: %w", err)
		}
		item.Price = domain.MoneyFromMinor(priceMinor)
		items = append(items, item)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order item rows: %w", err)
	}
	return items, nil
}

// UpsertItem adds quantity to the order line for the product, creating it if needed.
// The unit price snapshot is refreshed to the given price.
func (r *OrderRepository) UpsertItem(ctx context.Context, q DBTX, item *domain.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, product_id, quantity, price_minor, created_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(order_id, product_id) DO UPDATE SET
			quantity = order_items.quantity + excluded.quantity,
			price_minor = excluded.price_minor
	`

	_, err := q.ExecContext(ctx, query, item.OrderID, item.ProductID, item.Quantity, domain.MoneyToMinor(item.Price))
	if err != nil {
		return fmt.Errorf("error saving order item: %w", err)
	}
	return nil
}

// ItemQuantity returns the quantity of the product in the order, 0 when absent
func (r *OrderRepository) ItemQuantity(ctx context.Context, q DBTX, orderID, productID int64) (int, error) {
	var quantity int
	err := q.QueryRowContext(ctx, `SELECT quantity FROM order_items WHERE order_id = ? AND product_id = ?`, orderID, productID).Scan(&quantity)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("error getting item quantity: %w", err)
	}
	return quantity, nil
}

// DeleteItem removes the product line and reports whether there was one
func (r *OrderRepository) DeleteItem(ctx context.Context, q DBTX, orderID, productID int64) (bool, error) {
	result, err := q.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = ? AND product_id = ?`, orderID, productID)
	if err != nil {
		return false, fmt.Errorf("error deleting order item: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error getting rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// UpdateStatus moves the order to status if it is still at version.
// ErrVersionConflict means someone else changed the order first.
func (r *OrderRepository) UpdateStatus(ctx context.Context, q DBTX, id int64, status domain.OrderStatus, version int) error {
	query := `
		UPDATE orders
		SET status = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND version = ?
	`

	result, err := q.ExecContext(ctx, query, status, id, version)
	if err != nil {
		return fmt.Errorf("error updating order status: %w", err)
	}
	return versionChecked(result)
}

// RecalculateTotal sums the order lines into the total and bumps the version
func (r *OrderRepository) RecalculateTotal(ctx context.Context, q DBTX, id int64, version int) error {
	query := `
		UPDATE orders
		SET total_minor = (SELECT COALESCE(SUM(quantity * price_minor), 0) FROM order_items WHERE order_id = ?),
			version = version + 1,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND version = ?
	`

	result, err := q.ExecContext(ctx, query, id, id, version)
	if err != nil {
		return fmt.Errorf("error updating order total: %w", err)
	}
	return versionChecked(result)
}

func versionChecked(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

// CountByStatus returns order counts keyed by status
func (r *OrderRepository) CountByStatus(ctx context.Context) (map[domain.OrderStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("error counting orders: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.OrderStatus]int)
	for rows.Next() {
		var status domain.OrderStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("error scanning order count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}
