package service

import (
	"context"
	"testing"

	"maxxpharm/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	category, err := e.categories.Create(ctx, 0, "  Витамины ", "Для иммунитета")
	require.NoError(t, err)
	assert.Equal(t, "Витамины", category.Name)

	_, err = e.categories.Create(ctx, 0, "Витамины", "")
	assert.ErrorIs(t, err, ErrCategoryExists)
	_, err = e.categories.Create(ctx, 0, "В", "")
	var verr ValidationError
	assert.ErrorAs(t, err, &verr)

	updated, err := e.categories.Update(ctx, 0, category.ID, "Витамины и БАДы", "")
	require.NoError(t, err)
	assert.Equal(t, "Витамины и БАДы", updated.Name)

	require.NoError(t, e.categories.Delete(ctx, 0, category.ID))
	deleted, err := e.categories.Get(ctx, category.ID)
	require.NoError(t, err)
	assert.False(t, deleted.IsActive)
	_, err = e.categories.Get(ctx, 404)
	assert.ErrorIs(t, err, ErrCategoryNotFound)
	list, err := e.categories.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, 1, e.logCount(t, ActionCategoryDeleted))
}

func TestProductCreateValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	err := e.products.Create(ctx, 0, &domain.Product{Name: "Аспирин", Price: decimal.NewFromInt(10), CategoryID: 99})
	assert.ErrorIs(t, err, ErrCategoryNotFound)

	category, err := e.categories.Create(ctx, 0, "Лекарства", "")
	require.NoError(t, err)

	var verr ValidationError
	err = e.products.Create(ctx, 0, &domain.Product{Name: "Аспирин", Price: decimal.Zero, CategoryID: category.ID})
	assert.ErrorAs(t, err, &verr)
	err = e.products.Create(ctx, 0, &domain.Product{Name: "Аспирин", Price: decimal.NewFromInt(10), StockQuantity: -1, CategoryID: category.ID})
	assert.ErrorAs(t, err, &verr)
}

func TestProductStockOperations(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.product(t, "Парацетамол", "45", 5)

	replenished, err := e.products.Replenish(ctx, 0, p.ID, 20)
	require.NoError(t, err)
	assert.Equal(t, 25, replenished.StockQuantity)
	assert.Equal(t, 25, e.stock(t, p.ID))

	assert.ErrorIs(t, e.products.Decrease(ctx, 0, p.ID, 26), ErrInsufficientStock)
	require.NoError(t, e.products.Decrease(ctx, 0, p.ID, 25))
	assert.Equal(t, 0, e.stock(t, p.ID))

	_, err = e.products.Replenish(ctx, 0, 404, 1)
	assert.ErrorIs(t, err, ErrProductNotFound)
	assert.ErrorIs(t, e.products.SetStock(ctx, 0, 404, 1), ErrProductNotFound)

	var verr ValidationError
	assert.ErrorAs(t, e.products.SetStock(ctx, 0, p.ID, -1), &verr)
}

func TestProductSearchAndLowStock(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.product(t, "Парацетамол", "45", 50)
	e.product(t, "Парацетамол Экстра", "95", 3)
	e.product(t, "Ибупрофен", "89", 0)

	found, err := e.products.Search(ctx, "парацетамол")
	require.NoError(t, err)
	assert.Len(t, found, 2)

	_, err = e.products.Search(ctx, "  ")
	var verr ValidationError
	assert.ErrorAs(t, err, &verr)

	low, err := e.products.LowStock(ctx, 0)
	require.NoError(t, err)
	require.Len(t, low, 2)
	assert.Equal(t, "Ибупрофен", low[0].Name)
	assert.Equal(t, "Парацетамол Экстра", low[1].Name)
}

func TestProductUpdateAndDelete(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.product(t, "Анальгин", "20", 10)

	name := "Анальгин форте"
	updated, err := e.products.Update(ctx, 0, p.ID, domain.ProductUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)
	assert.True(t, decimal.NewFromInt(20).Equal(updated.Price))

	require.NoError(t, e.products.Delete(ctx, 0, p.ID))
	_, err = e.products.Get(ctx, p.ID)
	assert.ErrorIs(t, err, ErrProductNotFound)
	assert.ErrorIs(t, e.products.Delete(ctx, 0, 404), ErrProductNotFound)
}
