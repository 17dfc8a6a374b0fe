package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"maxxpharm/internal/domain"
	"maxxpharm/internal/metrics"
	"maxxpharm/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultOrderListLimit = 50

type OrderService struct {
	db       *sql.DB
	orders   *repository.OrderRepository
	products *repository.ProductRepository
	logs     *repository.LogRepository
	metrics  *metrics.Collector
	logger   *zap.Logger
}

func NewOrderService(db *sql.DB, collector *metrics.Collector, logger *zap.Logger) *OrderService {
	return &OrderService{
		db:       db,
		orders:   repository.NewOrderRepository(db),
		products: repository.NewProductRepository(db),
		logs:     repository.NewLogRepository(db),
		metrics:  collector,
		logger:   logger,
	}
}

// TransitionRequest asks to move an order to another status.
// ActorID is the users.id of whoever acts (0 for the system).
// ExpectedVersion, when non-zero, must match the order version the caller saw.
type TransitionRequest struct {
	OrderID         int64
	To              domain.OrderStatus
	ActorID         int64
	ExpectedVersion int
}

// Transition moves an order through its lifecycle. Confirming reserves stock for every
// item and cancelling a confirmed order releases it, both in the same transaction as the
// status change, which only applies if nobody changed the order in the meantime.
func (s *OrderService) Transition(ctx context.Context, req TransitionRequest) (*domain.Order, error) {
	if !req.To.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, req.To)
	}

	var order *domain.Order
	err := repository.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		order, err = s.orders.GetByID(ctx, tx, req.OrderID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrOrderNotFound
		}
		if err != nil {
			return err
		}

		if req.ExpectedVersion != 0 && order.Version != req.ExpectedVersion {
			return ErrConcurrentUpdate
		}
		from := order.Status
		if !from.CanTransitionTo(req.To) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, req.To)
		}

		switch {
		case req.To == domain.StatusConfirmed:
			if len(order.Items) == 0 {
				return ErrEmptyOrder
			}
			if err := s.reserve(ctx, tx, order.Items); err != nil {
				return err
			}
		case req.To == domain.StatusCancelled && from.HoldsStock():
			if err := s.release(ctx, tx, order.Items); err != nil {
				return err
			}
		}

		err = s.orders.UpdateStatus(ctx, tx, order.ID, req.To, order.Version)
		if errors.Is(err, repository.ErrVersionConflict) {
			return ErrConcurrentUpdate
		}
		if err != nil {
			return err
		}

		order.Status = req.To
		order.Version++
		return s.logs.Create(ctx, tx, &domain.Log{
			Action:  transitionAction(req.To),
			UserID:  actorID(req.ActorID),
			Details: fmt.Sprintf("Заказ #%d: %s → %s", order.ID, from, req.To),
		})
	})
	if repository.IsBusy(err) {
		err = ErrConcurrentUpdate
	}
	s.metrics.ObserveTransition(string(req.To), err)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order status changed",
		zap.Int64("order_id", order.ID),
		zap.String("status", string(order.Status)),
		zap.Int64("actor", req.ActorID))
	return order, nil
}

func transitionAction(to domain.OrderStatus) string {
	switch to {
	case domain.StatusConfirmed:
		return ActionOrderConfirmed
	case domain.StatusCancelled:
		return ActionOrderCancelled
	default:
		return ActionOrderStatusChanged
	}
}

// reserve takes every item off the shelf or none of them
func (s *OrderService) reserve(ctx context.Context, tx *sql.Tx, items []domain.OrderItem) error {
	for _, item := range items {
		taken, err := s.products.TakeStock(ctx, tx, item.ProductID, item.Quantity)
		if err != nil {
			return err
		}
		if !taken {
			return fmt.Errorf("%w: %s", ErrInsufficientStock, item.ProductName)
		}
	}
	return nil
}

func (s *OrderService) release(ctx context.Context, tx *sql.Tx, items []domain.OrderItem) error {
	for _, item := range items {
		if err := s.products.AddStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
			return fmt.Errorf("error releasing stock of product %d: %w", item.ProductID, err)
		}
	}
	return nil
}

// ConfirmOrder moves a NEW order to CONFIRMED, reserving its stock
func (s *OrderService) ConfirmOrder(ctx context.Context, orderID, actor int64) (*domain.Order, error) {
	return s.Transition(ctx, TransitionRequest{OrderID: orderID, To: domain.StatusConfirmed, ActorID: actor})
}

// CancelOrder cancels an order that is not finished yet, releasing reserved stock
func (s *OrderService) CancelOrder(ctx context.Context, orderID, actor int64) (*domain.Order, error) {
	return s.Transition(ctx, TransitionRequest{OrderID: orderID, To: domain.StatusCancelled, ActorID: actor})
}

// AdvanceOrder moves a confirmed order forward: IN_PROGRESS, IN_DELIVERY, COMPLETED
func (s *OrderService) AdvanceOrder(ctx context.Context, orderID int64, to domain.OrderStatus, actor int64) (*domain.Order, error) {
	switch to {
	case domain.StatusInProgress, domain.StatusInDelivery, domain.StatusCompleted:
	default:
		return nil, fmt.Errorf("%w: cannot advance to %s", ErrInvalidTransition, to)
	}
	return s.Transition(ctx, TransitionRequest{OrderID: orderID, To: to, ActorID: actor})
}

// CreateOrder opens an empty NEW order
func (s *OrderService) CreateOrder(ctx context.Context, userID int64, address, phone, notes string) (*domain.Order, error) {
	order := &domain.Order{
		UserID:          userID,
		TotalAmount:     decimal.Zero,
		DeliveryAddress: SanitizeText(address, 500),
		Phone:           phone,
		Notes:           SanitizeText(notes, 0),
	}

	err := repository.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.orders.Create(ctx, tx, order); err != nil {
			return err
		}
		return s.logs.Create(ctx, tx, &domain.Log{
			Action:  ActionOrderCreated,
			UserID:  actorID(userID),
			Details: fmt.Sprintf("Заказ #%d создан", order.ID),
		})
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// CreateOrderFromCart turns cart lines into a NEW order with price snapshots, all at once.
// Stock is checked here but only reserved on confirmation.
func (s *OrderService) CreateOrderFromCart(ctx context.Context, userID int64, cart []domain.CartLine, address, phone, notes string) (*domain.Order, error) {
	lines := mergeCart(cart)
	if len(lines) == 0 {
		return nil, ErrEmptyOrder
	}
	for _, line := range lines {
		if err := CheckQuantity(line.Quantity); err != nil {
			return nil, err
		}
	}

	order := &domain.Order{
		UserID:          userID,
		DeliveryAddress: SanitizeText(address, 500),
		Phone:           phone,
		Notes:           SanitizeText(notes, 0),
	}

	err := repository.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		items := make([]domain.OrderItem, 0, len(lines))
		total := decimal.Zero
		for _, line := range lines {
			p, err := s.products.GetByID(ctx, tx, line.ProductID)
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%w: #%d", ErrProductNotFound, line.ProductID)
			}
			if err != nil {
				return err
			}
			if p.StockQuantity < line.Quantity {
				return fmt.Errorf("%w: %s", ErrInsufficientStock, p.Name)
			}

			item := domain.OrderItem{ProductID: p.ID, ProductName: p.Name, Quantity: line.Quantity, Price: p.Price}
			total = total.Add(item.Subtotal())
			items = append(items, item)
		}

		order.TotalAmount = total
		if err := s.orders.Create(ctx, tx, order); err != nil {
			return err
		}
		for i := range items {
			items[i].OrderID = order.ID
			if err := s.orders.UpsertItem(ctx, tx, &items[i]); err != nil {
				return err
			}
		}
		order.Items = items

		return s.logs.Create(ctx, tx, &domain.Log{
			Action:  ActionOrderCreated,
			UserID:  actorID(userID),
			Details: fmt.Sprintf("Заказ #%d создан: %d поз., сумма %s", order.ID, len(items), total.StringFixed(2)),
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", userID),
		zap.String("total", order.TotalAmount.StringFixed(2)))
	return order, nil
}

func mergeCart(cart []domain.CartLine) []domain.CartLine {
	var merged []domain.CartLine
	index := make(map[int64]int)
	for _, line := range cart {
		if i, ok := index[line.ProductID]; ok {
			merged[i].Quantity += line.Quantity
			continue
		}
		index[line.ProductID] = len(merged)
		merged = append(merged, line)
	}
	return merged
}

// AddOrderItem adds quantity of a product to a NEW order, merging with an existing line
func (s *OrderService) AddOrderItem(ctx context.Context, orderID, productID int64, quantity int) (*domain.Order, error) {
	if err := CheckQuantity(quantity); err != nil {
		return nil, err
	}

	var order *domain.Order
	err := repository.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		current, err := s.editableOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}

		p, err := s.products.GetByID(ctx, tx, productID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrProductNotFound
		}
		if err != nil {
			return err
		}

		existing, err := s.orders.ItemQuantity(ctx, tx, orderID, productID)
		if err != nil {
			return err
		}
		if p.StockQuantity < existing+quantity {
			return fmt.Errorf("%w: %s", ErrInsufficientStock, p.Name)
		}

		item := &domain.OrderItem{OrderID: orderID, ProductID: productID, Quantity: quantity, Price: p.Price}
		if err := s.orders.UpsertItem(ctx, tx, item); err != nil {
			return err
		}
		if err := s.recalculate(ctx, tx, current); err != nil {
			return err
		}
		if err := s.logs.Create(ctx, tx, &domain.Log{
			Action:  ActionOrderItemAdded,
			UserID:  actorID(current.UserID),
			Details: fmt.Sprintf("Заказ #%d: %s × %d", orderID, p.Name, quantity),
		}); err != nil {
			return err
		}

		order, err = s.orders.GetByID(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// RemoveOrderItem drops a product line from a NEW order and reports whether it was there
func (s *OrderService) RemoveOrderItem(ctx context.Context, orderID, productID int64) (bool, error) {
	var removed bool
	err := repository.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		current, err := s.editableOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}

		removed, err = s.orders.DeleteItem(ctx, tx, orderID, productID)
		if err != nil || !removed {
			return err
		}
		if err := s.recalculate(ctx, tx, current); err != nil {
			return err
		}
		return s.logs.Create(ctx, tx, &domain.Log{
			Action:  ActionOrderItemRemoved,
			UserID:  actorID(current.UserID),
			Details: fmt.Sprintf("Заказ #%d: удален товар #%d", orderID, productID),
		})
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

func (s *OrderService) editableOrder(ctx context.Context, tx *sql.Tx, orderID int64) (*domain.Order, error) {
	order, err := s.orders.GetByID(ctx, tx, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if order.Status != domain.StatusNew {
		return nil, ErrOrderNotEditable
	}
	return order, nil
}

func (s *OrderService) recalculate(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	err := s.orders.RecalculateTotal(ctx, tx, order.ID, order.Version)
	if errors.Is(err, repository.ErrVersionConflict) {
		return ErrConcurrentUpdate
	}
	return err
}

// CancelOwnOrder lets a client cancel their own order while it is still NEW
func (s *OrderService) CancelOwnOrder(ctx context.Context, orderID, userID int64) (*domain.Order, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, ErrNotOrderOwner
	}
	if order.Status != domain.StatusNew {
		return nil, ErrOrderNotEditable
	}

	return s.Transition(ctx, TransitionRequest{
		OrderID:         orderID,
		To:              domain.StatusCancelled,
		ActorID:         userID,
		ExpectedVersion: order.Version,
	})
}

// RepeatOrder copies the items of an earlier order of the user into a new NEW order at
// current prices. Products that are no longer sold are skipped.
func (s *OrderService) RepeatOrder(ctx context.Context, orderID, userID int64) (*domain.Order, error) {
	previous, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if previous.UserID != userID {
		return nil, ErrNotOrderOwner
	}

	order := &domain.Order{
		UserID:          userID,
		DeliveryAddress: previous.DeliveryAddress,
		Phone:           previous.Phone,
		Notes:           previous.Notes,
	}

	err = repository.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		var items []domain.OrderItem
		total := decimal.Zero
		for _, old := range previous.Items {
			p, err := s.products.GetByID(ctx, tx, old.ProductID)
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			item := domain.OrderItem{ProductID: p.ID, ProductName: p.Name, Quantity: old.Quantity, Price: p.Price}
			total = total.Add(item.Subtotal())
			items = append(items, item)
		}
		if len(items) == 0 {
			return ErrEmptyOrder
		}

		order.TotalAmount = total
		if err := s.orders.Create(ctx, tx, order); err != nil {
			return err
		}
		for i := range items {
			items[i].OrderID = order.ID
			if err := s.orders.UpsertItem(ctx, tx, &items[i]); err != nil {
				return err
			}
		}
		order.Items = items

		return s.logs.Create(ctx, tx, &domain.Log{
			Action:  ActionOrderCreated,
			UserID:  actorID(userID),
			Details: fmt.Sprintf("Заказ #%d создан повтором заказа #%d", order.ID, previous.ID),
		})
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	order, err := s.orders.GetByID(ctx, s.db, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	return order, err
}

// GetUserOrders returns the user's orders, newest first
func (s *OrderService) GetUserOrders(ctx context.Context, userID int64, limit int) ([]domain.Order, error) {
	return s.orders.GetByUserID(ctx, userID, listLimit(limit))
}

func (s *OrderService) GetAllOrders(ctx context.Context, limit int) ([]domain.Order, error) {
	return s.orders.GetAll(ctx, listLimit(limit))
}

func (s *OrderService) GetOrdersByStatus(ctx context.Context, status domain.OrderStatus, limit int) ([]domain.Order, error) {
	return s.orders.GetByStatus(ctx, status, listLimit(limit))
}

func listLimit(limit int) int {
	if limit <= 0 {
		return defaultOrderListLimit
	}
	return limit
}

// GetOrderStatistics counts orders per status; every status is present
func (s *OrderService) GetOrderStatistics(ctx context.Context) (domain.OrderStats, error) {
	counts, err := s.orders.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	stats := make(domain.OrderStats, len(domain.OrderStatuses))
	for _, status := range domain.OrderStatuses {
		stats[status] = counts[status]
	}
	return stats, nil
}

// CancelStaleOrders cancels NEW orders older than days and returns how many were cancelled
func (s *OrderService) CancelStaleOrders(ctx context.Context, days int) (int, error) {
	stale, err := s.orders.GetStaleNew(ctx, days)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for _, order := range stale {
		_, err := s.Transition(ctx, TransitionRequest{
			OrderID:         order.ID,
			To:              domain.StatusCancelled,
			ExpectedVersion: order.Version,
		})
		if errors.Is(err, ErrConcurrentUpdate) || errors.Is(err, ErrInvalidTransition) {
			continue
		}
		if err != nil {
			return cancelled, err
		}
		cancelled++
	}

	if cancelled > 0 {
		s.logger.Info("Stale orders cancelled", zap.Int("count", cancelled), zap.Int("days", days))
	}
	return cancelled, nil
}
