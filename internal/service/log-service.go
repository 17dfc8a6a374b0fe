package service

import (
	"context"
	"database/sql"
	"time"

	"maxxpharm/internal/domain"
	"maxxpharm/internal/repository"

	"go.uber.org/zap"
)

// Log actions
const (
	ActionUserRegistered     = "user_registered"
	ActionUserLogin          = "user_login"
	ActionUserRoleChanged    = "user_role_changed"
	ActionUserBlocked        = "user_blocked"
	ActionUserUnblocked      = "user_unblocked"
	ActionCategoryCreated    = "category_created"
	ActionCategoryUpdated    = "category_updated"
	ActionCategoryDeleted    = "category_deleted"
	ActionProductCreated     = "product_created"
	ActionProductUpdated     = "product_updated"
	ActionProductDeleted     = "product_deleted"
	ActionStockUpdated       = "stock_updated"
	ActionStockReplenished   = "stock_replenished"
	ActionOrderCreated       = "order_created"
	ActionOrderItemAdded     = "order_item_added"
	ActionOrderItemRemoved   = "order_item_removed"
	ActionOrderConfirmed     = "order_confirmed"
	ActionOrderCancelled     = "order_cancelled"
	ActionOrderStatusChanged = "order_status_changed"
	ActionLogsCleared        = "logs_cleared"
)

const (
	DefaultLogRetentionDays = 90
	recentLogsLimit         = 100
	filteredLogsLimit       = 50
)

func actorID(userID int64) sql.NullInt64 {
	return sql.NullInt64{Int64: userID, Valid: userID > 0}
}

type LogService struct {
	logs   *repository.LogRepository
	db     *sql.DB
	logger *zap.Logger
}

func NewLogService(db *sql.DB, logger *zap.Logger) *LogService {
	return &LogService{
		logs:   repository.NewLogRepository(db),
		db:     db,
		logger: logger,
	}
}

// Record writes an audit entry; userID 0 means the system
func (s *LogService) Record(ctx context.Context, action string, userID int64, details string) error {
	return s.logs.Create(ctx, s.db, &domain.Log{Action: action, UserID: actorID(userID), Details: details})
}

func (s *LogService) Recent(ctx context.Context) ([]domain.Log, error) {
	return s.logs.Recent(ctx, recentLogsLimit)
}

func (s *LogService) ByUser(ctx context.Context, userID int64) ([]domain.Log, error) {
	return s.logs.ByUser(ctx, userID, filteredLogsLimit)
}

func (s *LogService) ByAction(ctx context.Context, action string) ([]domain.Log, error) {
	return s.logs.ByAction(ctx, action, filteredLogsLimit)
}

func (s *LogService) ByDateRange(ctx context.Context, from, to time.Time) ([]domain.Log, error) {
	return s.logs.ByDateRange(ctx, from, to)
}

// LastHours returns at most limit entries from the last hours
func (s *LogService) LastHours(ctx context.Context, hours, limit int) ([]domain.Log, error) {
	logs, err := s.logs.Since(ctx, hours)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

func (s *LogService) ActionStats(ctx context.Context, days int) ([]domain.ActionStat, error) {
	return s.logs.ActionStats(ctx, days)
}

func (s *LogService) UserActivity(ctx context.Context, days int) ([]domain.UserActivity, error) {
	return s.logs.UserActivity(ctx, days)
}

// Cleanup deletes entries older than days (DefaultLogRetentionDays when days <= 0)
func (s *LogService) Cleanup(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		days = DefaultLogRetentionDays
	}

	deleted, err := s.logs.DeleteOlderThan(ctx, days)
	if err != nil {
		return 0, err
	}

	s.logger.Info("Old logs cleaned up", zap.Int64("deleted", deleted), zap.Int("retention_days", days))
	return deleted, nil
}
