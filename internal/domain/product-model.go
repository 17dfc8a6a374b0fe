package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	IsActive    bool      `json:"is_active" db:"is_active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

type Product struct {
	ID            int64           `json:"id" db:"id"`
	Name          string          `json:"name" db:"name"`
	Description   string          `json:"description" db:"description"`
	Price         decimal.Decimal `json:"price" db:"price"`
	StockQuantity int             `json:"stock_quantity" db:"stock_quantity"`
	CategoryID    int64           `json:"category_id" db:"category_id"`
	CategoryName  string          `json:"category_name" db:"category_name"`
	ImagePath     string          `json:"image_path" db:"image_path"`
	IsActive      bool            `json:"is_active" db:"is_active"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// StockValue is the price of everything left on the shelf.
func (p *Product) StockValue() decimal.Decimal {
	return p.Price.Mul(decimal.NewFromInt(int64(p.StockQuantity)))
}

// ProductUpdate carries a partial product update; nil fields are left untouched.
type ProductUpdate struct {
	Name          *string          `json:"name,omitempty"`
	Price         *decimal.Decimal `json:"price,omitempty"`
	Description   *string          `json:"description,omitempty"`
	StockQuantity *int             `json:"stock_quantity,omitempty"`
	CategoryID    *int64           `json:"category_id,omitempty"`
	ImagePath     *string          `json:"image_path,omitempty"`
}

// Apply copies the set fields of the update onto p.
func (u *ProductUpdate) Apply(p *Product) {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Price != nil {
		p.Price = *u.Price
	}
	if u.Description != nil {
		p.Description = *u.Description
	}
	if u.StockQuantity != nil {
		p.StockQuantity = *u.StockQuantity
	}
	if u.CategoryID != nil {
		p.CategoryID = *u.CategoryID
	}
	if u.ImagePath != nil {
		p.ImagePath = *u.ImagePath
	}
}

// Money is persisted in minor units (kopecks) so SQL aggregates stay exact.
func MoneyFromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

func MoneyToMinor(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}
