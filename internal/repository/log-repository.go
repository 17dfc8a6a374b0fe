package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"maxxpharm/internal/domain"

	"github.com/jmoiron/sqlx"
)

type LogRepository struct {
	db *sqlx.DB
}

func NewLogRepository(db *sql.DB) *LogRepository {
	return &LogRepository{db: sqlx.NewDb(db, "sqlite3")}
}

const logSelect = `
	SELECT l.id, l.action, l.user_id, COALESCE(l.details, '') AS details, l.created_at, u.full_name AS user_name
	FROM logs l
	LEFT JOIN users u ON u.id = l.user_id
`

// Create writes an entry; q lets it join the caller's transaction
func (r *LogRepository) Create(ctx context.Context, q DBTX, entry *domain.Log) error {
	result, err := q.ExecContext(ctx,
		`INSERT INTO logs (action, user_id, details, created_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)`,
		entry.Action, entry.UserID, nullString(entry.Details))
	if err != nil {
		return fmt.Errorf("error creating log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	entry.ID = id
	return nil
}

func (r *LogRepository) Recent(ctx context.Context, limit int) ([]domain.Log, error) {
	return r.selectLogs(ctx, logSelect+` ORDER BY l.created_at DESC, l.id DESC LIMIT ?`, limit)
}

func (r *LogRepository) ByUser(ctx context.Context, userID int64, limit int) ([]domain.Log, error) {
	return r.selectLogs(ctx, logSelect+` WHERE l.user_id = ? ORDER BY l.created_at DESC, l.id DESC LIMIT ?`, userID, limit)
}

func (r *LogRepository) ByAction(ctx context.Context, action string, limit int) ([]domain.Log, error) {
	return r.selectLogs(ctx, logSelect+` WHERE l.action = ? ORDER BY l.created_at DESC, l.id DESC LIMIT ?`, action, limit)
}

func (r *LogRepository) ByDateRange(ctx context.Context, from, to time.Time) ([]domain.Log, error) {
	return r.selectLogs(ctx, logSelect+` WHERE l.created_at BETWEEN ? AND ? ORDER BY l.created_at DESC, l.id DESC`,
		from.UTC().Format(timeLayout), to.UTC().Format(timeLayout))
}

// Since returns entries from the last hours
func (r *LogRepository) Since(ctx context.Context, hours int) ([]domain.Log, error) {
	return r.selectLogs(ctx, logSelect+` WHERE l.created_at >= datetime('now', ?) ORDER BY l.created_at DESC, l.id DESC`, hoursAgo(hours))
}

func (r *LogRepository) selectLogs(ctx context.Context, query string, args ...any) ([]domain.Log, error) {
	var logs []domain.Log
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, fmt.Errorf("error querying logs: %w", err)
	}
	return logs, nil
}

// ActionStats counts entries per action over the last days, most frequent first
func (r *LogRepository) ActionStats(ctx context.Context, days int) ([]domain.ActionStat, error) {
	query := `
		SELECT action, COUNT(*) AS count
		FROM logs
		WHERE created_at >= datetime('now', ?)
		GROUP BY action
		ORDER BY count DESC, action
	`

	var stats []domain.ActionStat
	if err := r.db.SelectContext(ctx, &stats, query, daysAgo(days)); err != nil {
		return nil, fmt.Errorf("error querying action stats: %w", err)
	}
	return stats, nil
}

// UserActivity returns the ten most active users over the last days
func (r *LogRepository) UserActivity(ctx context.Context, days int) ([]domain.UserActivity, error) {
	query := `
		SELECT u.full_name, u.username, COUNT(l.id) AS action_count
		FROM logs l
		JOIN users u ON u.id = l.user_id
		WHERE l.created_at >= datetime('now', ?)
		GROUP BY u.id
		ORDER BY action_count DESC, u.full_name
		LIMIT 10
	`

	var activity []domain.UserActivity
	if err := r.db.SelectContext(ctx, &activity, query, daysAgo(days)); err != nil {
		return nil, fmt.Errorf("error querying user activity: %w", err)
	}
	return activity, nil
}

// DeleteOlderThan removes entries older than days and returns how many were removed
func (r *LogRepository) DeleteOlderThan(ctx context.Context, days int) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM logs WHERE created_at < datetime('now', ?)`, daysAgo(days))
	if err != nil {
		return 0, fmt.Errorf("error deleting old logs: %w", err)
	}
	return result.RowsAffected()
}
