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

type UserService struct {
	db     *sql.DB
	users  *repository.UserRepository
	logs   *repository.LogRepository
	logger *zap.Logger
}

func NewUserService(db *sql.DB, logger *zap.Logger) *UserService {
	return &UserService{
		db:     db,
		users:  repository.NewUserRepository(db),
		logs:   repository.NewLogRepository(db),
		logger: logger,
	}
}

// Create registers a user directly with the given role
func (s *UserService) Create(ctx context.Context, telegramID int64, fullName, username string, role domain.Role) (*domain.User, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	if !ValidateTelegramUsername(username) {
		return nil, invalid("username", "telegram username is not valid")
	}

	user := &domain.User{TelegramID: telegramID, FullName: fullName, Username: username, Role: role, IsActive: true}
	err := repository.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.users.Create(ctx, tx, user); err != nil {
			return err
		}
		return s.logs.Create(ctx, tx, &domain.Log{
			Action:  ActionUserRegistered,
			UserID:  actorID(user.ID),
			Details: fmt.Sprintf("Пользователь %d создан с ролью %s", telegramID, role),
		})
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserService) GetByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	user, err := s.users.GetByTelegramID(ctx, telegramID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

func (s *UserService) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

func (s *UserService) GetAll(ctx context.Context) ([]domain.User, error) {
	return s.users.GetAll(ctx)
}

func (s *UserService) GetActive(ctx context.Context) ([]domain.User, error) {
	return s.users.GetActive(ctx)
}

func (s *UserService) GetByRole(ctx context.Context, role domain.Role) ([]domain.User, error) {
	return s.users.GetByRole(ctx, role)
}

// ChangeRole lets a super admin assign any valid role to another user
func (s *UserService) ChangeRole(ctx context.Context, actor *domain.User, telegramID int64, role domain.Role) error {
	if !CanManageUsers(actor) {
		return ErrPermissionDenied
	}
	if !role.Valid() {
		return ErrInvalidRole
	}
	if actor.TelegramID == telegramID {
		return ErrPermissionDenied
	}

	return s.updateUser(ctx, actor, telegramID, ActionUserRoleChanged,
		fmt.Sprintf("Роль пользователя %d изменена на %s", telegramID, role),
		func(tx *sql.Tx) error { return s.users.UpdateRole(ctx, tx, telegramID, role) })
}

func (s *UserService) Block(ctx context.Context, actor *domain.User, telegramID int64) error {
	return s.setActive(ctx, actor, telegramID, false)
}

func (s *UserService) Unblock(ctx context.Context, actor *domain.User, telegramID int64) error {
	return s.setActive(ctx, actor, telegramID, true)
}

func (s *UserService) setActive(ctx context.Context, actor *domain.User, telegramID int64, active bool) error {
	if !CanManageUsers(actor) || actor.TelegramID == telegramID {
		return ErrPermissionDenied
	}

	action, details := ActionUserBlocked, fmt.Sprintf("Пользователь %d заблокирован", telegramID)
	if active {
		action, details = ActionUserUnblocked, fmt.Sprintf("Пользователь %d разблокирован", telegramID)
	}

	return s.updateUser(ctx, actor, telegramID, action, details,
		func(tx *sql.Tx) error { return s.users.SetActive(ctx, tx, telegramID, active) })
}

func (s *UserService) UpdatePhone(ctx context.Context, telegramID int64, phone string) error {
	if !ValidatePhone(phone) {
		return invalid("phone", "phone number is not valid")
	}

	err := s.users.UpdatePhone(ctx, s.db, telegramID, phone)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}

func (s *UserService) updateUser(ctx context.Context, actor *domain.User, telegramID int64, action, details string, update func(tx *sql.Tx) error) error {
	err := repository.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := update(tx); err != nil {
			return err
		}
		return s.logs.Create(ctx, tx, &domain.Log{Action: action, UserID: actorID(actor.ID), Details: details})
	})
	if errors.Is(err, repository.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return err
	}

	s.logger.Info("User updated",
		zap.String("action", action),
		zap.Int64("telegram_id", telegramID),
		zap.Int64("actor", actor.TelegramID))
	return nil
}
