package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"maxxpharm/internal/domain"
	"maxxpharm/internal/repository"
)

type CategoryService struct {
	db         *sql.DB
	categories *repository.CategoryRepository
	logs       *repository.LogRepository
}

func NewCategoryService(db *sql.DB) *CategoryService {
	return &CategoryService{
		db:         db,
		categories: repository.NewCategoryRepository(db),
		logs:       repository.NewLogRepository(db),
	}
}

func (s *CategoryService) Create(ctx context.Context, actor int64, name, description string) (*domain.Category, error) {
	name = strings.TrimSpace(name)
	if !ValidateCategoryName(name) {
		return nil, invalid("category_name", "category name must be 2 to 100 characters")
	}

	if _, err := s.categories.GetByName(ctx, name); err == nil {
		return nil, ErrCategoryExists
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	category := &domain.Category{Name: name, Description: SanitizeText(description, 500)}
	err := repository.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.categories.Create(ctx, tx, category); err != nil {
			return err
		}
		return s.logs.Create(ctx, tx, &domain.Log{
			Action:  ActionCategoryCreated,
			UserID:  actorID(actor),
			Details: fmt.Sprintf("Категория %q создана", name),
		})
	})
	if err != nil {
		return nil, err
	}
	return category, nil
}

func (s *CategoryService) Get(ctx context.Context, id int64) (*domain.Category, error) {
	category, err := s.categories.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrCategoryNotFound
	}
	return category, err
}

func (s *CategoryService) GetByName(ctx context.Context, name string) (*domain.Category, error) {
	category, err := s.categories.GetByName(ctx, strings.TrimSpace(name))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrCategoryNotFound
	}
	return category, err
}

func (s *CategoryService) List(ctx context.Context) ([]domain.Category, error) {
	return s.categories.GetActive(ctx)
}

func (s *CategoryService) Update(ctx context.Context, actor int64, id int64, name, description string) (*domain.Category, error) {
	name = strings.TrimSpace(name)
	if !ValidateCategoryName(name) {
		return nil, invalid("category_name", "category name must be 2 to 100 characters")
	}

	category, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	category.Name = name
	category.Description = SanitizeText(description, 500)

	err = repository.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.categories.Update(ctx, tx, category); err != nil {
			return err
		}
		return s.logs.Create(ctx, tx, &domain.Log{
			Action:  ActionCategoryUpdated,
			UserID:  actorID(actor),
			Details: fmt.Sprintf("Категория #%d обновлена", id),
		})
	})
	if err != nil {
		return nil, err
	}
	return category, nil
}

// Delete hides the category; its products stay in the database
func (s *CategoryService) Delete(ctx context.Context, actor int64, id int64) error {
	err := repository.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.categories.SoftDelete(ctx, tx, id); err != nil {
			return err
		}
		return s.logs.Create(ctx, tx, &domain.Log{
			Action:  ActionCategoryDeleted,
			UserID:  actorID(actor),
			Details: fmt.Sprintf("Категория #%d удалена", id),
		})
	})
	if errors.Is(err, repository.ErrNotFound) {
		return ErrCategoryNotFound
	}
	return err
}
