package service

import "errors"

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrProductNotFound   = errors.New("product not found")
	ErrCategoryNotFound  = errors.New("category not found")
	ErrCategoryExists    = errors.New("category already exists")
	ErrUserNotFound      = errors.New("user not found")
	ErrUserBlocked       = errors.New("user is blocked")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrInvalidRole       = errors.New("invalid role")
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrConcurrentUpdate  = errors.New("order was changed by someone else")
	ErrEmptyOrder        = errors.New("order has no items")
	ErrOrderNotEditable  = errors.New("order can no longer be edited")
	ErrNotOrderOwner     = errors.New("order belongs to another user")
)

// ValidationError describes rejected user input
type ValidationError struct {
	Type    string
	Message string
	Details map[string]interface{}
}

func (e ValidationError) Error() string {
	return e.Message
}

func invalid(kind, message string) error {
	return ValidationError{Type: kind, Message: message}
}
