package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"maxxpharm/internal/domain"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, telegram_id, full_name, COALESCE(username, ''), COALESCE(phone, ''), role, is_active, created_at, updated_at`

func scanUser(row rowScanner) (*domain.User, error) {
	var u domain.User
	var updatedAt sql.NullTime
	err := row.Scan(
		&u.ID,
		&u.TelegramID,
		&u.FullName,
		&u.Username,
		&u.Phone,
		&u.Role,
		&u.IsActive,
		&u.CreatedAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.UpdatedAt = updatedAt.Time
	return &u, nil
}

// Create inserts a user and sets its ID
func (r *UserRepository) Create(ctx context.Context, q DBTX, u *domain.User) error {
	query := `
		INSERT INTO users (telegram_id, full_name, username, phone, role, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`

	result, err := q.ExecContext(ctx, query,
		u.TelegramID,
		u.FullName,
		nullString(u.Username),
		nullString(u.Phone),
		u.Role,
		u.IsActive)
	if err != nil {
		return fmt.Errorf("error creating user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = id
	return nil
}

func (r *UserRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE telegram_id = ?`

	u, err := scanUser(r.db.QueryRowContext(ctx, query, telegramID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting user: %w", err)
	}
	return u, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`

	u, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting user: %w", err)
	}
	return u, nil
}

// GetAll returns every user, newest first
func (r *UserRepository) GetAll(ctx context.Context) ([]domain.User, error) {
	return r.list(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id DESC`)
}

func (r *UserRepository) GetActive(ctx context.Context) ([]domain.User, error) {
	return r.list(ctx, `SELECT `+userColumns+` FROM users WHERE is_active = 1 ORDER BY created_at DESC, id DESC`)
}

func (r *UserRepository) GetByRole(ctx context.Context, role domain.Role) ([]domain.User, error) {
	return r.list(ctx, `SELECT `+userColumns+` FROM users WHERE role = ? AND is_active = 1 ORDER BY full_name`, role)
}

func (r *UserRepository) list(ctx context.Context, query string, args ...any) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning user: %w", err)
		}
		users = append(users, *u)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user rows: %w", err)
	}
	return users, nil
}

func (r *UserRepository) UpdateRole(ctx context.Context, q DBTX, telegramID int64, role domain.Role) error {
	return r.exec(ctx, q, `UPDATE users SET role = ?, updated_at = CURRENT_TIMESTAMP WHERE telegram_id = ?`, role, telegramID)
}

func (r *UserRepository) SetActive(ctx context.Context, q DBTX, telegramID int64, active bool) error {
	return r.exec(ctx, q, `UPDATE users SET is_active = ?, updated_at = CURRENT_TIMESTAMP WHERE telegram_id = ?`, active, telegramID)
}

func (r *UserRepository) UpdatePhone(ctx context.Context, q DBTX, telegramID int64, phone string) error {
	return r.exec(ctx, q, `UPDATE users SET phone = ?, updated_at = CURRENT_TIMESTAMP WHERE telegram_id = ?`, phone, telegramID)
}

// UpdateProfile refreshes the name and username Telegram reports for the user
func (r *UserRepository) UpdateProfile(ctx context.Context, q DBTX, telegramID int64, fullName, username string) error {
	return r.exec(ctx, q, `UPDATE users SET full_name = ?, username = ?, updated_at = CURRENT_TIMESTAMP WHERE telegram_id = ?`,
		fullName, nullString(username), telegramID)
}

func (r *UserRepository) exec(ctx context.Context, q DBTX, query string, args ...any) error {
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("error updating user: %w", err)
	}

	return requireAffected(result)
}
