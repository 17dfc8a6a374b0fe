package service

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"maxxpharm/internal/domain"
	"maxxpharm/internal/metrics"
	"maxxpharm/traits/database"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type env struct {
	db         *sql.DB
	orders     *OrderService
	products   *ProductService
	categories *CategoryService
	users      *UserService
	auth       *AuthService
	logs       *LogService
	reports    *ReportService
	metrics    *metrics.Collector
}

const adminTelegramID int64 = 777

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	return envFor(t, db)
}

// newFileEnv uses a database file with the production DSN, so several connections write at once
func newFileEnv(t *testing.T) *env {
	t.Helper()
	db, err := database.OpenSQLite(context.Background(), database.SQLiteDSN(filepath.Join(t.TempDir(), "maxxpharm.db")))
	require.NoError(t, err)
	return envFor(t, db)
}

func envFor(t *testing.T, db *sql.DB) *env {
	t.Helper()
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Prepare(db))

	logger := zap.NewNop()
	collector := metrics.NewCollectorWithRegistry(prometheus.NewRegistry())
	return &env{
		db:         db,
		orders:     NewOrderService(db, collector, logger),
		products:   NewProductService(db),
		categories: NewCategoryService(db),
		users:      NewUserService(db, logger),
		auth:       NewAuthService(db, adminTelegramID, logger),
		logs:       NewLogService(db, logger),
		reports:    NewReportService(db, 10),
		metrics:    collector,
	}
}

func (e *env) client(t *testing.T, telegramID int64) *domain.User {
	t.Helper()
	u, err := e.auth.Authenticate(context.Background(), telegramID, "Клиент Тестов", "client_test")
	require.NoError(t, err)
	return u
}

func (e *env) product(t *testing.T, name, price string, stock int) *domain.Product {
	t.Helper()
	ctx := context.Background()
	category, err := e.categories.GetByName(ctx, "Лекарства")
	if err == ErrCategoryNotFound {
		category, err = e.categories.Create(ctx, 0, "Лекарства", "")
	}
	require.NoError(t, err)

	p := &domain.Product{Name: name, Price: decimal.RequireFromString(price), StockQuantity: stock, CategoryID: category.ID}
	require.NoError(t, e.products.Create(ctx, 0, p))
	return p
}

func (e *env) stock(t *testing.T, productID int64) int {
	t.Helper()
	var stock int
	require.NoError(t, e.db.QueryRow(`SELECT stock_quantity FROM products WHERE id = ?`, productID).Scan(&stock))
	return stock
}

func (e *env) logCount(t *testing.T, action string) int {
	t.Helper()
	var count int
	require.NoError(t, e.db.QueryRow(`SELECT COUNT(*) FROM logs WHERE action = ?`, action).Scan(&count))
	return count
}

// order creates a NEW order for the user with the given product quantities
func (e *env) order(t *testing.T, user *domain.User, lines ...domain.CartLine) *domain.Order {
	t.Helper()
	order, err := e.orders.CreateOrderFromCart(context.Background(), user.ID, lines, "г. Ташкент, ул. Навои 1", "+998901234567", "")
	require.NoError(t, err)
	return order
}

