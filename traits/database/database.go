package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// SQLiteDSN enables foreign keys and makes every transaction take the write lock
// at BEGIN, so concurrent writers queue on the busy timeout instead of deadlocking.
func SQLiteDSN(path string) string {
	return path + "?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate"
}

// OpenSQLite opens the database and waits until it answers a ping
func OpenSQLite(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	backoff := retry.WithMaxRetries(5, retry.NewExponential(200*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return db, nil
}

// Prepare creates tables, applies migrations and creates views.
func Prepare(db *sql.DB) error {
	if err := CreateTables(db); err != nil {
		return err
	}
	if err := MigrateDatabase(db); err != nil {
		return err
	}
	return CreateViews(db)
}

// CreateTables creates all required tables for the pharmacy bot
func CreateTables(db *sql.DB) error {
	tables := []struct {
		name string
		fn   func(*sql.DB) error
	}{
		{"users", createUsersTable},
		{"categories", createCategoriesTable},
		{"products", createProductsTable},
		{"orders", createOrdersTable},
		{"order_items", createOrderItemsTable},
		{"logs", createLogsTable},
	}

	for _, table := range tables {
		if err := table.fn(db); err != nil {
			return fmt.Errorf("create %s table: %w", table.name, err)
		}
	}

	return nil
}

func createUsersTable(db *sql.DB) error {
	const stmt = `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		telegram_id BIGINT NOT NULL UNIQUE,
		full_name VARCHAR(255) NOT NULL,
		username VARCHAR(255) NULL,
		phone VARCHAR(20) NULL,
		role VARCHAR(50) NOT NULL DEFAULT 'CLIENT',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NULL
	);
	`
	_, err := db.Exec(stmt)
	return err
}

func createCategoriesTable(db *sql.DB) error {
	const stmt = `
	CREATE TABLE IF NOT EXISTS categories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name VARCHAR(255) NOT NULL UNIQUE,
		description VARCHAR(500) NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NULL
	);
	`
	_, err := db.Exec(stmt)
	return err
}

func createProductsTable(db *sql.DB) error {
	const stmt = `
	CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name VARCHAR(255) NOT NULL,
		description TEXT NULL,
		price_minor INTEGER NOT NULL CHECK(price_minor >= 0),
		stock_quantity INTEGER NOT NULL DEFAULT 0 CHECK(stock_quantity >= 0),
		category_id INTEGER NOT NULL REFERENCES categories(id),
		image_path VARCHAR(500) NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NULL
	);
	`
	_, err := db.Exec(stmt)
	return err
}

func createOrdersTable(db *sql.DB) error {
	const stmt = `
	CREATE TABLE IF NOT EXISTS orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id),
		status VARCHAR(20) NOT NULL DEFAULT 'NEW',
		total_minor INTEGER NOT NULL DEFAULT 0,
		delivery_address VARCHAR(500) NULL,
		phone VARCHAR(20) NULL,
		notes VARCHAR(1000) NULL,
		version INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NULL
	);
	`
	_, err := db.Exec(stmt)
	return err
}

func createOrderItemsTable(db *sql.DB) error {
	const stmt = `
	CREATE TABLE IF NOT EXISTS order_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id INTEGER NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		product_id INTEGER NOT NULL REFERENCES products(id),
		quantity INTEGER NOT NULL CHECK(quantity > 0),
		price_minor INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(stmt)
	return err
}

func createLogsTable(db *sql.DB) error {
	const stmt = `
	CREATE TABLE IF NOT EXISTS logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		action VARCHAR(255) NOT NULL,
		user_id INTEGER NULL REFERENCES users(id),
		details VARCHAR(1000) NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(stmt)
	return err
}

// CreateViews creates useful views for reporting
func CreateViews(db *sql.DB) error {
	views := []struct {
		name string
		sql  string
	}{
		{
			"order_summary_view",
			`CREATE VIEW IF NOT EXISTS order_summary_view AS
			SELECT
				o.id,
				o.status,
				o.total_minor,
				o.delivery_address,
				o.phone,
				u.telegram_id,
				u.full_name,
				o.created_at AS order_date,
				(SELECT COALESCE(SUM(i.quantity), 0) FROM order_items i WHERE i.order_id = o.id) AS items_count
			FROM orders o
			JOIN users u ON u.id = o.user_id
			ORDER BY o.created_at DESC`,
		},
		{
			"daily_stats_view",
			`CREATE VIEW IF NOT EXISTS daily_stats_view AS
			SELECT
				DATE(created_at) AS order_date,
				COUNT(*) AS total_orders,
				COUNT(CASE WHEN status = 'COMPLETED' THEN 1 END) AS completed_orders,
				COUNT(CASE WHEN status = 'CANCELLED' THEN 1 END) AS cancelled_orders,
				COALESCE(SUM(CASE WHEN status = 'COMPLETED' THEN total_minor END), 0) AS revenue_minor
			FROM orders
			GROUP BY DATE(created_at)
			ORDER BY order_date DESC`,
		},
	}

	for _, view := range views {
		if _, err := db.Exec(view.sql); err != nil {
			return fmt.Errorf("create view %s: %w", view.name, err)
		}
	}

	return nil
}

// MigrateDatabase applies the versioned migrations on top of the base tables
func MigrateDatabase(db *sql.DB) error {
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// SeedData adds a starter catalog when the database is empty
func SeedData(db *sql.DB) error {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM products").Scan(&count); err != nil {
		return err
	}

	if count > 0 {
		log.Println("Sample data already exists, skipping seed")
		return nil
	}

	categories := []struct {
		name        string
		description string
	}{
		{"Обезболивающие", "Анальгетики и жаропонижающие"},
		{"Витамины", "Витамины и минералы"},
		{"Простуда и грипп", "Средства от простуды"},
	}

	categoryIDs := make(map[string]int64, len(categories))
	for _, c := range categories {
		res, err := db.Exec(`INSERT INTO categories (name, description) VALUES (?, ?)`, c.name, c.description)
		if err != nil {
			return fmt.Errorf("insert sample category %s: %w", c.name, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		categoryIDs[c.name] = id
	}

	products := []struct {
		name        string
		category    string
		description string
		priceMinor  int64
		stock       int
	}{
		{"Парацетамол 500 мг", "Обезболивающие", "Таблетки, 20 шт.", 4500, 120},
		{"Ибупрофен 200 мг", "Обезболивающие", "Таблетки, покрытые оболочкой, 50 шт.", 8900, 60},
		{"Витамин C 1000 мг", "Витамины", "Шипучие таблетки, 20 шт.", 25000, 35},
		{"Витамин D3 2000 МЕ", "Витамины", "Капсулы, 60 шт.", 42000, 8},
		{"Терафлю", "Простуда и грипп", "Порошок для приготовления раствора, 10 пакетиков", 51000, 15},
	}

	for _, p := range products {
		_, err := db.Exec(`
			INSERT INTO products (name, description, price_minor, stock_quantity, category_id)
			VALUES (?, ?, ?, ?, ?)
		`, p.name, p.description, p.priceMinor, p.stock, categoryIDs[p.category])
		if err != nil {
			return fmt.Errorf("insert sample product %s: %w", p.name, err)
		}
	}

	log.Println("Sample data seeded successfully")
	return nil
}
