package service

import (
	"context"
	"testing"

	"maxxpharm/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirmOrderReservesStock(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.client(t, 1)
	paracetamol := e.product(t, "Парацетамол", "45", 10)
	vitamin := e.product(t, "Витамин C", "250", 5)

	order := e.order(t, user,
		domain.CartLine{ProductID: paracetamol.ID, Quantity: 3},
		domain.CartLine{ProductID: vitamin.ID, Quantity: 5})
	assert.Equal(t, domain.StatusNew, order.Status)
	assert.True(t, decimal.NewFromInt(1385).Equal(order.TotalAmount))
	assert.Equal(t, 10, e.stock(t, paracetamol.ID), "creating an order does not reserve stock")

	confirmed, err := e.orders.ConfirmOrder(ctx, order.ID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, confirmed.Status)
	assert.Equal(t, order.Version+1, confirmed.Version)
	assert.Equal(t, 7, e.stock(t, paracetamol.ID))
	assert.Equal(t, 0, e.stock(t, vitamin.ID))
	assert.Equal(t, 1, e.logCount(t, ActionOrderConfirmed))
}

func TestConfirmOrderIsAllOrNothing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.client(t, 1)
	plenty := e.product(t, "Ибупрофен", "89", 10)
	scarce := e.product(t, "Терафлю", "510", 2)

	order := e.order(t, user,
		domain.CartLine{ProductID: plenty.ID, Quantity: 4},
		domain.CartLine{ProductID: scarce.ID, Quantity: 2})

	// someone else buys the last packs before the manager confirms
	require.NoError(t, e.products.SetStock(ctx, 0, scarce.ID, 1))

	_, err := e.orders.ConfirmOrder(ctx, order.ID, 0)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 10, e.stock(t, plenty.ID), "earlier reservations are rolled back")
	assert.Equal(t, 1, e.stock(t, scarce.ID))

	got, err := e.orders.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNew, got.Status)
	assert.Equal(t, order.Version, got.Version)
	assert.Equal(t, 0, e.logCount(t, ActionOrderConfirmed))
}

func TestConfirmTwiceDoesNotReserveAgain(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.client(t, 1)
	p := e.product(t, "Аспирин", "30", 10)
	order := e.order(t, user, domain.CartLine{ProductID: p.ID, Quantity: 4})

	_, err := e.orders.ConfirmOrder(ctx, order.ID, 0)
	require.NoError(t, err)
	_, err = e.orders.ConfirmOrder(ctx, order.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 6, e.stock(t, p.ID))
}

func TestCancelReleasesReservedStock(t *testing.T) {
	for _, path := range [][]domain.OrderStatus{
		{domain.StatusConfirmed},
		{domain.StatusConfirmed, domain.StatusInProgress},
		{domain.StatusConfirmed, domain.StatusInProgress, domain.StatusInDelivery},
	} {
		last := path[len(path)-1]
		t.Run(string(last), func(t *testing.T) {
			e := newEnv(t)
			ctx := context.Background()
			user := e.client(t, 1)
			p := e.product(t, "Нурофен", "120", 10)
			order := e.order(t, user, domain.CartLine{ProductID: p.ID, Quantity: 4})

			for _, status := range path {
				_, err := e.orders.Transition(ctx, TransitionRequest{OrderID: order.ID, To: status})
				require.NoError(t, err)
			}
			require.Equal(t, 6, e.stock(t, p.ID))

			cancelled, err := e.orders.CancelOrder(ctx, order.ID, 0)
			require.NoError(t, err)
			assert.Equal(t, domain.StatusCancelled, cancelled.Status)
			assert.Equal(t, 10, e.stock(t, p.ID))

			_, err = e.orders.CancelOrder(ctx, order.ID, 0)
			assert.ErrorIs(t, err, ErrInvalidTransition)
			assert.Equal(t, 10, e.stock(t, p.ID), "a second cancel never releases twice")
		})
	}
}

func TestCancelNewOrderLeavesStock(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.client(t, 1)
	p := e.product(t, "Но-шпа", "150", 10)
	order := e.order(t, user, domain.CartLine{ProductID: p.ID, Quantity: 4})

	_, err := e.orders.CancelOrder(ctx, order.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 10, e.stock(t, p.ID))
}

func TestFullLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.client(t, 1)
	p := e.product(t, "Цитрамон", "25", 10)
	order := e.order(t, user, domain.CartLine{ProductID: p.ID, Quantity: 2})

	_, err := e.orders.AdvanceOrder(ctx, order.ID, domain.StatusInProgress, 0)
	assert.ErrorIs(t, err, ErrInvalidTransition, "a NEW order must be confirmed first")

	_, err = e.orders.ConfirmOrder(ctx, order.ID, 0)
	require.NoError(t, err)
	for _, status := range []domain.OrderStatus{domain.StatusInProgress, domain.StatusInDelivery, domain.StatusCompleted} {
		_, err = e.orders.AdvanceOrder(ctx, order.ID, status, 0)
		require.NoError(t, err)
	}

	_, err = e.orders.CancelOrder(ctx, order.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 8, e.stock(t, p.ID))

	_, err = e.orders.AdvanceOrder(ctx, order.ID, domain.StatusCancelled, 0)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err := e.orders.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Equal(t, order.Version+4, got.Version)
	assert.Equal(t, 3, e.logCount(t, ActionOrderStatusChanged))
}

func TestTransitionWithStaleVersion(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.client(t, 1)
	p := e.product(t, "Мезим", "300", 10)
	order := e.order(t, user, domain.CartLine{ProductID: p.ID, Quantity: 1})

	// a manager saw version 1, then another manager confirmed first
	_, err := e.orders.ConfirmOrder(ctx, order.ID, 0)
	require.NoError(t, err)

	_, err = e.orders.Transition(ctx, TransitionRequest{OrderID: order.ID, To: domain.StatusCancelled, ExpectedVersion: order.Version})
	assert.ErrorIs(t, err, ErrConcurrentUpdate)
	assert.Equal(t, 9, e.stock(t, p.ID))
}

func TestTransitionErrors(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.client(t, 1)

	_, err := e.orders.ConfirmOrder(ctx, 404, 0)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = e.orders.Transition(ctx, TransitionRequest{OrderID: 1, To: "LOST"})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	empty, err := e.orders.CreateOrder(ctx, user.ID, "ул. Пушкина 10", "+998901234567", "")
	require.NoError(t, err)
	assert.Equal(t, 1, empty.Version)
	_, err = e.orders.ConfirmOrder(ctx, empty.ID, 0)
	assert.ErrorIs(t, err, ErrEmptyOrder)
}

func TestCreateOrderFromCartErrors(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.client(t, 1)
	p := e.product(t, "Смекта", "40", 3)

	_, err := e.orders.CreateOrderFromCart(ctx, user.ID, nil, "ул. Пушкина 10", "", "")
	assert.ErrorIs(t, err, ErrEmptyOrder)

	_, err = e.orders.CreateOrderFromCart(ctx, user.ID, []domain.CartLine{{ProductID: 999, Quantity: 1}}, "ул. Пушкина 10", "", "")
	assert.ErrorIs(t, err, ErrProductNotFound)

	_, err = e.orders.CreateOrderFromCart(ctx, user.ID, []domain.CartLine{{ProductID: p.ID, Quantity: 2}, {ProductID: p.ID, Quantity: 2}}, "ул. Пушкина 10", "", "")
	assert.ErrorIs(t, err, ErrInsufficientStock)

	orders, err := e.orders.GetUserOrders(ctx, user.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, orders, "failed checkouts leave no orders behind")
}

func TestAddAndRemoveOrderItems(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.client(t, 1)
	p := e.product(t, "Активированный уголь", "15.50", 5)

	order, err := e.orders.CreateOrder(ctx, user.ID, "ул. Пушкина 10", "+998901234567", "")
	require.NoError(t, err)

	order, err = e.orders.AddOrderItem(ctx, order.ID, p.ID, 2)
	require.NoError(t, err)
	order, err = e.orders.AddOrderItem(ctx, order.ID, p.ID, 3)
	require.NoError(t, err)
	require.Len(t, order.Items, 1)
	assert.Equal(t, 5, order.Items[0].Quantity)
	assert.True(t, decimal.RequireFromString("77.50").Equal(order.TotalAmount))
	assert.Equal(t, 3, order.Version)

	_, err = e.orders.AddOrderItem(ctx, order.ID, p.ID, 1)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	removed, err := e.orders.RemoveOrderItem(ctx, order.ID, p.ID)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = e.orders.RemoveOrderItem(ctx, order.ID, p.ID)
	require.NoError(t, err)
	assert.False(t, removed)

	got, err := e.orders.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, got.TotalAmount.IsZero())

	_, err = e.orders.AddOrderItem(ctx, order.ID, p.ID, 1)
	require.NoError(t, err)
	_, err = e.orders.ConfirmOrder(ctx, order.ID, 0)
	require.NoError(t, err)
	_, err = e.orders.AddOrderItem(ctx, order.ID, p.ID, 1)
	assert.ErrorIs(t, err, ErrOrderNotEditable)
}

func TestCancelOwnOrder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner := e.client(t, 1)
	stranger := e.client(t, 2)
	p := e.product(t, "Лоратадин", "60", 10)
	order := e.order(t, owner, domain.CartLine{ProductID: p.ID, Quantity: 1})

	_, err := e.orders.CancelOwnOrder(ctx, order.ID, stranger.ID)
	assert.ErrorIs(t, err, ErrNotOrderOwner)

	cancelled, err := e.orders.CancelOwnOrder(ctx, order.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)

	confirmedOrder := e.order(t, owner, domain.CartLine{ProductID: p.ID, Quantity: 1})
	_, err = e.orders.ConfirmOrder(ctx, confirmedOrder.ID, 0)
	require.NoError(t, err)
	_, err = e.orders.CancelOwnOrder(ctx, confirmedOrder.ID, owner.ID)
	assert.ErrorIs(t, err, ErrOrderNotEditable)
}

func TestRepeatOrderUsesCurrentPrices(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.client(t, 1)
	kept := e.product(t, "Кагоцел", "200", 10)
	dropped := e.product(t, "Арбидол", "350", 10)
	order := e.order(t, user,
		domain.CartLine{ProductID: kept.ID, Quantity: 2},
		domain.CartLine{ProductID: dropped.ID, Quantity: 1})

	newPrice := decimal.NewFromInt(220)
	_, err := e.products.Update(ctx, 0, kept.ID, domain.ProductUpdate{Price: &newPrice})
	require.NoError(t, err)
	require.NoError(t, e.products.Delete(ctx, 0, dropped.ID))

	repeated, err := e.orders.RepeatOrder(ctx, order.ID, user.ID)
	require.NoError(t, err)
	assert.NotEqual(t, order.ID, repeated.ID)
	assert.Equal(t, domain.StatusNew, repeated.Status)
	require.Len(t, repeated.Items, 1)
	assert.True(t, decimal.NewFromInt(440).Equal(repeated.TotalAmount))

	other := e.client(t, 2)
	_, err = e.orders.RepeatOrder(ctx, order.ID, other.ID)
	assert.ErrorIs(t, err, ErrNotOrderOwner)
}

func TestOrderStatisticsHasEveryStatus(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	stats, err := e.orders.GetOrderStatistics(ctx)
	require.NoError(t, err)
	assert.Len(t, stats, len(domain.OrderStatuses))
	assert.Equal(t, 0, stats.Total())

	user := e.client(t, 1)
	p := e.product(t, "Валидол", "35", 10)
	e.order(t, user, domain.CartLine{ProductID: p.ID, Quantity: 1})
	second := e.order(t, user, domain.CartLine{ProductID: p.ID, Quantity: 1})
	_, err = e.orders.CancelOrder(ctx, second.ID, 0)
	require.NoError(t, err)

	stats, err = e.orders.GetOrderStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats[domain.StatusNew])
	assert.Equal(t, 1, stats[domain.StatusCancelled])
	assert.Equal(t, 0, stats[domain.StatusCompleted])

	byStatus, err := e.orders.GetOrdersByStatus(ctx, domain.StatusCancelled, 0)
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, second.ID, byStatus[0].ID)
}

func TestCancelStaleOrders(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.client(t, 1)
	p := e.product(t, "Корвалол", "20", 10)
	stale := e.order(t, user, domain.CartLine{ProductID: p.ID, Quantity: 1})
	fresh := e.order(t, user, domain.CartLine{ProductID: p.ID, Quantity: 1})

	_, err := e.db.Exec(`UPDATE orders SET created_at = datetime('now', '-5 days') WHERE id = ?`, stale.ID)
	require.NoError(t, err)

	cancelled, err := e.orders.CancelStaleOrders(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, cancelled)

	got, err := e.orders.GetOrder(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, got.Status)
	got, err = e.orders.GetOrder(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNew, got.Status)
	assert.Equal(t, 10, e.stock(t, p.ID))
}

func TestGetAllOrdersNewestFirst(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.product(t, "Парацетамол", "45", 10)
	first := e.order(t, e.client(t, 1), domain.CartLine{ProductID: p.ID, Quantity: 1})
	second := e.order(t, e.client(t, 2), domain.CartLine{ProductID: p.ID, Quantity: 1})
	third := e.order(t, e.client(t, 1), domain.CartLine{ProductID: p.ID, Quantity: 1})
	_, err := e.orders.CancelOrder(ctx, second.ID, 0)
	require.NoError(t, err)

	all, err := e.orders.GetAllOrders(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{third.ID, second.ID, first.ID}, []int64{all[0].ID, all[1].ID, all[2].ID})
	assert.Equal(t, domain.StatusCancelled, all[1].Status)

	limited, err := e.orders.GetAllOrders(ctx, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, third.ID, limited[0].ID)
}
