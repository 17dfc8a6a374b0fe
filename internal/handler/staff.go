package handler

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"

	"maxxpharm/internal/domain"
	"maxxpharm/internal/service"

	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

const (
	staffListLimit = 10
	allOrdersLimit = 20
)

var orderActions = map[string]domain.OrderStatus{
	"confirm":  domain.StatusConfirmed,
	"work":     domain.StatusInProgress,
	"deliver":  domain.StatusInDelivery,
	"complete": domain.StatusCompleted,
	"cancel":   domain.StatusCancelled,
}

// parseOrderAction reads "<action>_<order id>_<version>"
func parseOrderAction(raw string) (domain.OrderStatus, int64, int, bool) {
	parts := strings.Split(raw, "_")
	if len(parts) != 3 {
		return "", 0, 0, false
	}
	to, ok := orderActions[parts[0]]
	if !ok {
		return "", 0, 0, false
	}
	id, ok := parseID(parts[1])
	if !ok {
		return "", 0, 0, false
	}
	version, err := strconv.Atoi(parts[2])
	if err != nil || version <= 0 {
		return "", 0, 0, false
	}
	return to, id, version, true
}

func (h *Handler) showOrders(ctx context.Context, sess *session, empty string, statuses ...domain.OrderStatus) {
	shown := 0
	for _, status := range statuses {
		orders, err := h.orders.GetOrdersByStatus(ctx, status, staffListLimit)
		if err != nil {
			h.fail(ctx, sess, err)
			return
		}
		for i := range orders {
			h.reply(ctx, sess, service.FormatOrderInfo(&orders[i]), orderActionsKeyboard(&orders[i]))
			shown++
		}
	}
	if shown == 0 {
		h.reply(ctx, sess, empty, nil)
	}
}

func (h *Handler) showNewOrders(ctx context.Context, sess *session) {
	h.showOrders(ctx, sess, "📭 Новых заказов нет", domain.StatusNew)
}

func (h *Handler) showOrdersInWork(ctx context.Context, sess *session) {
	h.showOrders(ctx, sess, "📭 Заказов в работе нет", domain.StatusConfirmed, domain.StatusInProgress, domain.StatusInDelivery)
}

func (h *Handler) showCompletedOrders(ctx context.Context, sess *session) {
	h.showOrderSummary(ctx, sess, domain.StatusCompleted, "✔️ <b>Выполненные заказы:</b>", "📭 Выполненных заказов нет")
}

func (h *Handler) showCancelledOrders(ctx context.Context, sess *session) {
	h.showOrderSummary(ctx, sess, domain.StatusCancelled, "❌ <b>Отмененные заказы:</b>", "📭 Отмененных заказов нет")
}

// showOrderSummary lists finished orders in one message; they have no actions left
func (h *Handler) showOrderSummary(ctx context.Context, sess *session, status domain.OrderStatus, title, empty string) {
	orders, err := h.orders.GetOrdersByStatus(ctx, status, staffListLimit)
	if err != nil {
		h.fail(ctx, sess, err)
		return
	}
	h.replyOrderLines(ctx, sess, orders, title, empty)
}

func (h *Handler) showAllOrders(ctx context.Context, sess *session) {
	orders, err := h.orders.GetAllOrders(ctx, allOrdersLimit)
	if err != nil {
		h.fail(ctx, sess, err)
		return
	}
	h.replyOrderLines(ctx, sess, orders, "📋 <b>Все заказы:</b>", "📭 Заказов пока нет")
}

func (h *Handler) replyOrderLines(ctx context.Context, sess *session, orders []domain.Order, title, empty string) {
	if len(orders) == 0 {
		h.reply(ctx, sess, empty, nil)
		return
	}

	var b strings.Builder
	b.WriteString(title + "\n\n")
	for i := range orders {
		b.WriteString(service.FormatOrderLine(&orders[i]))
		b.WriteString("\n")
	}
	h.reply(ctx, sess, b.String(), nil)
}

func (h *Handler) onOrderAction(ctx context.Context, sess *session, cb callback, arg string) {
	to, orderID, version, ok := parseOrderAction(arg)
	if !ok {
		return
	}

	order, err := h.orders.Transition(ctx, service.TransitionRequest{
		OrderID:         orderID,
		To:              to,
		ActorID:         sess.user.ID,
		ExpectedVersion: version,
	})
	if err != nil {
		h.logger.Info("Order action rejected",
			zap.Int64("order_id", orderID),
			zap.String("to", string(to)),
			zap.Error(err))
		cb.answer(errorText(err), true)
		return
	}

	cb.answer("✅ "+service.FormatOrderStatus(order.Status), false)
	h.edit(ctx, sess, cb, service.FormatOrderInfo(order), orderActionsKeyboard(order))
	h.notifyClient(ctx, sess.s, order)
}

// notifyManagers sends a fresh order with its action buttons to every manager and admin
func (h *Handler) notifyManagers(ctx context.Context, s Sender, order *domain.Order) {
	full, err := h.orders.GetOrder(ctx, order.ID)
	if err != nil {
		h.logger.Warn("Failed to load order for notification", zap.Int64("order_id", order.ID), zap.Error(err))
		return
	}

	text := "🔔 <b>Новый заказ!</b>\n\n" + service.FormatOrderInfo(full)
	for _, role := range []domain.Role{domain.RoleManager, domain.RoleAdmin, domain.RoleSuperAdmin} {
		staff, err := h.users.GetByRole(ctx, role)
		if err != nil {
			h.logger.Warn("Failed to load staff", zap.String("role", string(role)), zap.Error(err))
			continue
		}
		for _, u := range staff {
			if u.IsActive {
				h.send(ctx, s, u.TelegramID, text, orderActionsKeyboard(full))
			}
		}
	}
}

func (h *Handler) deliveries(ctx context.Context, sess *session) ([]domain.Order, bool) {
	orders, err := h.orders.GetOrdersByStatus(ctx, domain.StatusInDelivery, 0)
	if err != nil {
		h.fail(ctx, sess, err)
		return nil, false
	}
	if len(orders) == 0 {
		h.reply(ctx, sess, "📭 Заказов в доставке нет", nil)
		return nil, false
	}
	return orders, true
}

func (h *Handler) showDeliveries(ctx context.Context, sess *session) {
	orders, ok := h.deliveries(ctx, sess)
	if !ok {
		return
	}
	for i := range orders {
		o := &orders[i]
		h.reply(ctx, sess, service.FormatOrderInfo(o), inline([]models.InlineKeyboardButton{
			button("✅ Доставлен", fmt.Sprintf("delivered_%d_%d", o.ID, o.Version)),
		}))
	}
}

func (h *Handler) showAddresses(ctx context.Context, sess *session) {
	orders, ok := h.deliveries(ctx, sess)
	if !ok {
		return
	}
	var b strings.Builder
	b.WriteString("🗺️ <b>Адреса доставки:</b>\n\n")
	for _, o := range orders {
		fmt.Fprintf(&b, "📦 #%d: %s\n", o.ID, html.EscapeString(service.FormatAddress(o.DeliveryAddress)))
	}
	h.reply(ctx, sess, b.String(), nil)
}

func (h *Handler) showContacts(ctx context.Context, sess *session) {
	orders, ok := h.deliveries(ctx, sess)
	if !ok {
		return
	}
	var b strings.Builder
	b.WriteString("☎️ <b>Контакты клиентов:</b>\n\n")
	for _, o := range orders {
		fmt.Fprintf(&b, "📦 #%d: %s, %s\n", o.ID, html.EscapeString(o.CustomerName), html.EscapeString(service.FormatPhone(o.Phone)))
	}
	h.reply(ctx, sess, b.String(), nil)
}

func (h *Handler) startMarkDelivered(ctx context.Context, sess *session) {
	h.setState(ctx, sess, stateMarkDelivered)
	h.reply(ctx, sess, "✅ Введите номер доставленного заказа:", cancelKeyboard())
}

func (h *Handler) onMarkDeliveredID(ctx context.Context, sess *session, text string) {
	orderID, err := service.ParseOrderID(text)
	if err != nil {
		h.reply(ctx, sess, "⚠️ Введите номер заказа цифрами", cancelKeyboard())
		return
	}
	h.resetState(ctx, sess)

	order, err := h.completeDelivery(ctx, sess, orderID, 0)
	if err != nil {
		h.showMenu(ctx, sess, errorText(err))
		return
	}
	h.showMenu(ctx, sess, fmt.Sprintf("✅ Заказ #%d отмечен как доставленный", order.ID))
}

func (h *Handler) onDelivered(ctx context.Context, sess *session, cb callback, arg string) {
	orderID, version, ok := parsePair(arg)
	if !ok {
		return
	}
	order, err := h.completeDelivery(ctx, sess, orderID, version)
	if err != nil {
		cb.answer(errorText(err), true)
		return
	}
	cb.answer("✅ Доставлен", false)
	h.edit(ctx, sess, cb, service.FormatOrderInfo(order), nil)
}

// completeDelivery finishes an order that is out for delivery
func (h *Handler) completeDelivery(ctx context.Context, sess *session, orderID int64, version int) (*domain.Order, error) {
	current, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if current.Status != domain.StatusInDelivery {
		return nil, service.ErrInvalidTransition
	}
	if version == 0 {
		version = current.Version
	}

	order, err := h.orders.Transition(ctx, service.TransitionRequest{
		OrderID:         orderID,
		To:              domain.StatusCompleted,
		ActorID:         sess.user.ID,
		ExpectedVersion: version,
	})
	if err != nil {
		return nil, err
	}
	h.notifyClient(ctx, sess.s, order)
	return order, nil
}
