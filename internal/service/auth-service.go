package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"maxxpharm/internal/domain"
	"maxxpharm/internal/repository"

	"go.uber.org/zap"
)

type AuthService struct {
	db              *sql.DB
	users           *repository.UserRepository
	logs            *repository.LogRepository
	adminTelegramID int64
	logger          *zap.Logger
}

func NewAuthService(db *sql.DB, adminTelegramID int64, logger *zap.Logger) *AuthService {
	return &AuthService{
		db:              db,
		users:           repository.NewUserRepository(db),
		logs:            repository.NewLogRepository(db),
		adminTelegramID: adminTelegramID,
		logger:          logger,
	}
}

// Authenticate registers a first-time user as a client, or logs the login of a known one.
// The configured admin account always ends up as SUPER_ADMIN.
func (s *AuthService) Authenticate(ctx context.Context, telegramID int64, fullName, username string) (*domain.User, error) {
	user, err := s.users.GetByTelegramID(ctx, telegramID)
	if errors.Is(err, repository.ErrNotFound) {
		return s.register(ctx, telegramID, fullName, username)
	}
	if err != nil {
		return nil, err
	}

	if !user.IsActive {
		return nil, ErrUserBlocked
	}

	err = repository.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		if s.isConfiguredAdmin(telegramID) && user.Role != domain.RoleSuperAdmin {
			if err := s.users.UpdateRole(ctx, tx, telegramID, domain.RoleSuperAdmin); err != nil {
				return err
			}
			user.Role = domain.RoleSuperAdmin
		}
		if fullName != "" && (fullName != user.FullName || username != user.Username) {
			if err := s.users.UpdateProfile(ctx, tx, telegramID, fullName, username); err != nil {
				return err
			}
			user.FullName, user.Username = fullName, username
		}
		return s.logs.Create(ctx, tx, &domain.Log{
			Action:  ActionUserLogin,
			UserID:  actorID(user.ID),
			Details: fmt.Sprintf("Вход пользователя %d", telegramID),
		})
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}

func (s *AuthService) register(ctx context.Context, telegramID int64, fullName, username string) (*domain.User, error) {
	role := domain.RoleClient
	if s.isConfiguredAdmin(telegramID) {
		role = domain.RoleSuperAdmin
	}
	if fullName == "" {
		fullName = fmt.Sprintf("User %d", telegramID)
	}

	user := &domain.User{
		TelegramID: telegramID,
		FullName:   fullName,
		Username:   username,
		Role:       role,
		IsActive:   true,
	}

	err := repository.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.users.Create(ctx, tx, user); err != nil {
			return err
		}
		return s.logs.Create(ctx, tx, &domain.Log{
			Action:  ActionUserRegistered,
			UserID:  actorID(user.ID),
			Details: fmt.Sprintf("Новый пользователь %d с ролью %s", telegramID, role),
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("User registered",
		zap.Int64("telegram_id", telegramID),
		zap.String("role", string(role)))
	return user, nil
}

func (s *AuthService) isConfiguredAdmin(telegramID int64) bool {
	return s.adminTelegramID != 0 && telegramID == s.adminTelegramID
}

// CheckPermission reports whether an active user holds at least the required role
func CheckPermission(user *domain.User, required domain.Role) bool {
	return user != nil && user.IsActive && user.Role.Level() >= required.Level()
}

func IsAdmin(user *domain.User) bool   { return CheckPermission(user, domain.RoleAdmin) }
func IsManager(user *domain.User) bool { return CheckPermission(user, domain.RoleManager) }
func IsCourier(user *domain.User) bool { return CheckPermission(user, domain.RoleCourier) }

func CanManageUsers(user *domain.User) bool    { return CheckPermission(user, domain.RoleSuperAdmin) }
func CanManageProducts(user *domain.User) bool { return CheckPermission(user, domain.RoleAdmin) }
func CanViewStatistics(user *domain.User) bool { return CheckPermission(user, domain.RoleAdmin) }
func CanManageOrders(user *domain.User) bool   { return CheckPermission(user, domain.RoleManager) }
func CanDeliverOrders(user *domain.User) bool  { return CheckPermission(user, domain.RoleCourier) }

// RequireRole returns ErrPermissionDenied unless the user holds at least role
func RequireRole(user *domain.User, role domain.Role) error {
	if !CheckPermission(user, role) {
		return ErrPermissionDenied
	}
	return nil
}
