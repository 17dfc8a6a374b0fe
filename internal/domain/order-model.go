package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusNew        OrderStatus = "NEW"
	StatusConfirmed  OrderStatus = "CONFIRMED"
	StatusInProgress OrderStatus = "IN_PROGRESS"
	StatusInDelivery OrderStatus = "IN_DELIVERY"
	StatusCompleted  OrderStatus = "COMPLETED"
	StatusCancelled  OrderStatus = "CANCELLED"
)

// OrderStatuses lists the statuses in lifecycle order.
var OrderStatuses = []OrderStatus{
	StatusNew,
	StatusConfirmed,
	StatusInProgress,
	StatusInDelivery,
	StatusCompleted,
	StatusCancelled,
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	StatusNew:        {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusInDelivery, StatusCancelled},
	StatusInDelivery: {StatusCompleted, StatusCancelled},
}

func (s OrderStatus) Valid() bool {
	for _, st := range OrderStatuses {
		if st == s {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// HoldsStock reports whether an order in this status has its items taken off the shelf.
func (s OrderStatus) HoldsStock() bool {
	switch s {
	case StatusConfirmed, StatusInProgress, StatusInDelivery:
		return true
	}
	return false
}

// Final reports whether no further transition is possible.
func (s OrderStatus) Final() bool {
	return len(orderTransitions[s]) == 0
}

type Order struct {
	ID              int64           `json:"id" db:"id"`
	UserID          int64           `json:"user_id" db:"user_id"`
	Status          OrderStatus     `json:"status" db:"status"`
	TotalAmount     decimal.Decimal `json:"total_amount" db:"total_amount"`
	DeliveryAddress string          `json:"delivery_address" db:"delivery_address"`
	Phone           string          `json:"phone" db:"phone"`
	Notes           string          `json:"notes" db:"notes"`
	Version         int             `json:"version" db:"version"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`

	// Joined for display
	CustomerName       string      `json:"customer_name,omitempty"`
	CustomerTelegramID int64       `json:"customer_telegram_id,omitempty"`
	Items              []OrderItem `json:"items,omitempty"`
}

type OrderItem struct {
	ID          int64           `json:"id" db:"id"`
	OrderID     int64           `json:"order_id" db:"order_id"`
	ProductID   int64           `json:"product_id" db:"product_id"`
	ProductName string          `json:"product_name" db:"product_name"`
	Quantity    int             `json:"quantity" db:"quantity"`
	Price       decimal.Decimal `json:"price" db:"price"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

func (i *OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// CartLine is one product in a client's cart
type CartLine struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// OrderStats maps every status to the number of orders in it.
type OrderStats map[OrderStatus]int

func (s OrderStats) Total() int {
	total := 0
	for _, count := range s {
		total += count
	}
	return total
}
