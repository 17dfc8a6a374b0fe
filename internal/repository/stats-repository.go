package repository

import (
	"context"
	"database/sql"
	"fmt"

	"maxxpharm/internal/domain"

	"github.com/jmoiron/sqlx"
)

// StatsRepository runs the aggregate queries behind the admin reports
type StatsRepository struct {
	db *sqlx.DB
}

func NewStatsRepository(db *sql.DB) *StatsRepository {
	return &StatsRepository{db: sqlx.NewDb(db, "sqlite3")}
}

type Totals struct {
	Users      int `db:"users"`
	Products   int `db:"products"`
	Categories int `db:"categories"`
	Orders     int `db:"orders"`
}

type Revenue struct {
	CompletedOrders int   `db:"completed_orders"`
	TotalMinor      int64 `db:"total_minor"`
}

type RoleCount struct {
	Role  domain.Role `db:"role"`
	Count int         `db:"count"`
}

type DailyStat struct {
	Date            string `db:"order_date"`
	TotalOrders     int    `db:"total_orders"`
	CompletedOrders int    `db:"completed_orders"`
	CancelledOrders int    `db:"cancelled_orders"`
	RevenueMinor    int64  `db:"revenue_minor"`
}

func (r *StatsRepository) Totals(ctx context.Context) (*Totals, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM users WHERE is_active = 1) AS users,
			(SELECT COUNT(*) FROM products WHERE is_active = 1) AS products,
			(SELECT COUNT(*) FROM categories WHERE is_active = 1) AS categories,
			(SELECT COUNT(*) FROM orders) AS orders
	`

	var totals Totals
	if err := r.db.GetContext(ctx, &totals, query); err != nil {
		return nil, fmt.Errorf("error querying totals: %w", err)
	}
	return &totals, nil
}

// Revenue sums completed orders
func (r *StatsRepository) Revenue(ctx context.Context) (*Revenue, error) {
	query := `
		SELECT COUNT(*) AS completed_orders, COALESCE(SUM(total_minor), 0) AS total_minor
		FROM orders
		WHERE status = ?
	`

	var revenue Revenue
	if err := r.db.GetContext(ctx, &revenue, query, domain.StatusCompleted); err != nil {
		return nil, fmt.Errorf("error querying revenue: %w", err)
	}
	return &revenue, nil
}

func (r *StatsRepository) UsersByRole(ctx context.Context) ([]RoleCount, error) {
	var counts []RoleCount
	err := r.db.SelectContext(ctx, &counts, `SELECT role, COUNT(*) AS count FROM users WHERE is_active = 1 GROUP BY role ORDER BY count DESC, role`)
	if err != nil {
		return nil, fmt.Errorf("error querying users by role: %w", err)
	}
	return counts, nil
}

// UsersWithOrders counts active users who placed at least one order
func (r *StatsRepository) UsersWithOrders(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(DISTINCT o.user_id) FROM orders o JOIN users u ON u.id = o.user_id WHERE u.is_active = 1`)
	if err != nil {
		return 0, fmt.Errorf("error querying users with orders: %w", err)
	}
	return count, nil
}

// Daily reads the daily_stats_view for the last days
func (r *StatsRepository) Daily(ctx context.Context, days int) ([]DailyStat, error) {
	var stats []DailyStat
	err := r.db.SelectContext(ctx, &stats, `SELECT order_date, total_orders, completed_orders, cancelled_orders, revenue_minor FROM daily_stats_view WHERE order_date >= DATE('now', ?)`, daysAgo(days))
	if err != nil {
		return nil, fmt.Errorf("error querying daily stats: %w", err)
	}
	return stats, nil
}
