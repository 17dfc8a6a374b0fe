package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"maxxpharm/internal/domain"
	"maxxpharm/internal/repository"

	"github.com/shopspring/decimal"
)

const DefaultLowStockThreshold = 10

type ProductService struct {
	db         *sql.DB
	products   *repository.ProductRepository
	categories *repository.CategoryRepository
	logs       *repository.LogRepository
}

func NewProductService(db *sql.DB) *ProductService {
	return &ProductService{
		db:         db,
		products:   repository.NewProductRepository(db),
		categories: repository.NewCategoryRepository(db),
		logs:       repository.NewLogRepository(db),
	}
}

func validateProduct(p *domain.Product) error {
	if !ValidateProductName(p.Name) {
		return invalid("product_name", "product name must be 2 to 255 characters")
	}
	if !p.Price.IsPositive() {
		return invalid("price", "price must be positive")
	}
	if p.StockQuantity < 0 {
		return invalid("stock", "stock quantity cannot be negative")
	}
	return nil
}

func (s *ProductService) Create(ctx context.Context, actor int64, p *domain.Product) error {
	p.Name = strings.TrimSpace(p.Name)
	p.Description = SanitizeText(p.Description, 0)
	if err := validateProduct(p); err != nil {
		return err
	}

	return repository.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		active, err := s.categories.IsActive(ctx, tx, p.CategoryID)
		if err != nil {
			return err
		}
		if !active {
			return ErrCategoryNotFound
		}
		if err := s.products.Create(ctx, tx, p); err != nil {
			return err
		}
		return s.logs.Create(ctx, tx, &domain.Log{
			Action:  ActionProductCreated,
			UserID:  actorID(actor),
			Details: fmt.Sprintf("Товар %q создан, цена %s, остаток %d", p.Name, p.Price.StringFixed(2), p.StockQuantity),
		})
	})
}

func (s *ProductService) Get(ctx context.Context, id int64) (*domain.Product, error) {
	p, err := s.products.GetByID(ctx, s.db, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	return p, err
}

func (s *ProductService) GetByName(ctx context.Context, name string) (*domain.Product, error) {
	p, err := s.products.GetByName(ctx, strings.TrimSpace(name))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	return p, err
}

func (s *ProductService) List(ctx context.Context) ([]domain.Product, error) {
	return s.products.GetAll(ctx)
}

func (s *ProductService) ByCategory(ctx context.Context, categoryID int64) ([]domain.Product, error) {
	return s.products.GetByCategory(ctx, categoryID)
}

func (s *ProductService) Search(ctx context.Context, query string) ([]domain.Product, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, invalid("query", "search query is empty")
	}
	return s.products.SearchByName(ctx, query)
}

func (s *ProductService) AdvancedSearch(ctx context.Context, name string, categoryID int64, minPrice, maxPrice decimal.Decimal) ([]domain.Product, error) {
	return s.products.AdvancedSearch(ctx, strings.TrimSpace(name), categoryID, minPrice, maxPrice)
}

// Update applies a partial update to an active product
func (s *ProductService) Update(ctx context.Context, actor int64, id int64, update domain.ProductUpdate) (*domain.Product, error) {
	var p *domain.Product
	err := repository.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		p, err = s.products.GetByID(ctx, tx, id)
		if err != nil {
			return err
		}

		update.Apply(p)
		p.Name = strings.TrimSpace(p.Name)
		if err := validateProduct(p); err != nil {
			return err
		}
		if update.CategoryID != nil {
			active, err := s.categories.IsActive(ctx, tx, *update.CategoryID)
			if err != nil {
				return err
			}
			if !active {
				return ErrCategoryNotFound
			}
		}

		if err := s.products.Update(ctx, tx, p); err != nil {
			return err
		}
		return s.logs.Create(ctx, tx, &domain.Log{
			Action:  ActionProductUpdated,
			UserID:  actorID(actor),
			Details: fmt.Sprintf("Товар #%d обновлен", id),
		})
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Delete hides the product from the catalog
func (s *ProductService) Delete(ctx context.Context, actor int64, id int64) error {
	err := repository.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.products.SoftDelete(ctx, tx, id); err != nil {
			return err
		}
		return s.logs.Create(ctx, tx, &domain.Log{
			Action:  ActionProductDeleted,
			UserID:  actorID(actor),
			Details: fmt.Sprintf("Товар #%d удален", id),
		})
	})
	if errors.Is(err, repository.ErrNotFound) {
		return ErrProductNotFound
	}
	return err
}

func (s *ProductService) SetStock(ctx context.Context, actor int64, id int64, quantity int) error {
	if quantity < 0 {
		return invalid("stock", "stock quantity cannot be negative")
	}

	err := repository.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.products.SetStock(ctx, tx, id, quantity); err != nil {
			return err
		}
		return s.logs.Create(ctx, tx, &domain.Log{
			Action:  ActionStockUpdated,
			UserID:  actorID(actor),
			Details: fmt.Sprintf("Остаток товара #%d установлен: %d", id, quantity),
		})
	})
	if errors.Is(err, repository.ErrNotFound) {
		return ErrProductNotFound
	}
	return err
}

// Replenish adds delivered quantity to the stock and returns the updated product
func (s *ProductService) Replenish(ctx context.Context, actor int64, id int64, delta int) (*domain.Product, error) {
	if err := CheckQuantity(delta); err != nil {
		return nil, err
	}

	var p *domain.Product
	err := repository.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		if p, err = s.products.GetByID(ctx, tx, id); err != nil {
			return err
		}
		if err := s.products.AddStock(ctx, tx, id, delta); err != nil {
			return err
		}
		p.StockQuantity += delta
		return s.logs.Create(ctx, tx, &domain.Log{
			Action:  ActionStockReplenished,
			UserID:  actorID(actor),
			Details: fmt.Sprintf("Склад пополнен: %s +%d (итого %d)", p.Name, delta, p.StockQuantity),
		})
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Decrease writes off stock, refusing to go below zero
func (s *ProductService) Decrease(ctx context.Context, actor int64, id int64, quantity int) error {
	if err := CheckQuantity(quantity); err != nil {
		return err
	}

	return repository.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		taken, err := s.products.TakeStock(ctx, tx, id, quantity)
		if err != nil {
			return err
		}
		if !taken {
			return ErrInsufficientStock
		}
		return s.logs.Create(ctx, tx, &domain.Log{
			Action:  ActionStockUpdated,
			UserID:  actorID(actor),
			Details: fmt.Sprintf("Списано с товара #%d: %d", id, quantity),
		})
	})
}

// LowStock lists products at or below threshold (DefaultLowStockThreshold when threshold <= 0)
func (s *ProductService) LowStock(ctx context.Context, threshold int) ([]domain.Product, error) {
	if threshold <= 0 {
		threshold = DefaultLowStockThreshold
	}
	return s.products.LowStock(ctx, threshold)
}
