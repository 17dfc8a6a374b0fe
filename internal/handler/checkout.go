package handler

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"maxxpharm/internal/domain"
	"maxxpharm/internal/service"

	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

func (h *Handler) startCheckout(ctx context.Context, sess *session, cb callback) {
	lines, _, err := h.loadCart(ctx, sess.user.TelegramID)
	if err != nil {
		h.logger.Error("Failed to load cart for checkout", zap.Error(err))
		cb.answer("❌ Корзина недоступна, попробуйте позже", true)
		return
	}
	if len(lines) == 0 {
		cb.answer("🛒 Корзина пуста", true)
		return
	}

	sess.state = &domain.UserState{State: stateCheckoutPhone}
	h.saveState(ctx, sess)

	text := "📞 Отправьте номер телефона для связи или введите его вручную:"
	if sess.user.Phone != "" {
		text += fmt.Sprintf("\n\nСохраненный номер: %s", html.EscapeString(service.FormatPhone(sess.user.Phone)))
	}
	h.reply(ctx, sess, text, phoneKeyboard())
}

func (h *Handler) onCheckoutPhone(ctx context.Context, sess *session, text string) {
	if !service.ValidatePhone(text) {
		h.reply(ctx, sess, "⚠️ Неверный номер телефона. Пример: +998 90 123 45 67", phoneKeyboard())
		return
	}
	sess.state.Phone = strings.TrimSpace(text)
	if err := h.users.UpdatePhone(ctx, sess.user.TelegramID, sess.state.Phone); err != nil {
		h.logger.Warn("Failed to save phone", zap.Int64("telegram_id", sess.user.TelegramID), zap.Error(err))
	}

	h.setState(ctx, sess, stateCheckoutAddress)
	h.reply(ctx, sess, "📍 Введите адрес доставки (улица, дом, квартира):", cancelKeyboard())
}

func (h *Handler) onCheckoutAddress(ctx context.Context, sess *session, text string) {
	if !service.ValidateAddress(text) {
		h.reply(ctx, sess, "⚠️ Адрес слишком короткий. Укажите улицу и дом:", cancelKeyboard())
		return
	}
	sess.state.Address = service.SanitizeText(text, 500)

	h.setState(ctx, sess, stateCheckoutComment)
	h.reply(ctx, sess, "📝 Добавьте комментарий к заказу или нажмите «Пропустить»:", skipKeyboard())
}

func (h *Handler) onCheckoutComment(ctx context.Context, sess *session, text string) {
	if text != btnSkip {
		sess.state.Notes = service.SanitizeText(text, 0)
	}

	lines, total, err := h.loadCart(ctx, sess.user.TelegramID)
	if err != nil {
		h.fail(ctx, sess, err)
		return
	}
	if len(lines) == 0 {
		h.resetState(ctx, sess)
		h.showMenu(ctx, sess, "🛒 Корзина пуста")
		return
	}

	h.setState(ctx, sess, stateCheckoutConfirm)

	var b strings.Builder
	b.WriteString("📋 <b>Проверьте заказ:</b>\n\n")
	for _, line := range lines {
		fmt.Fprintf(&b, "• %s - %d шт.\n", html.EscapeString(line.product.Name), line.quantity)
	}
	fmt.Fprintf(&b, "\n💰 Сумма: %s\n", service.FormatPrice(total))
	fmt.Fprintf(&b, "📞 Телефон: %s\n", html.EscapeString(service.FormatPhone(sess.state.Phone)))
	fmt.Fprintf(&b, "📍 Адрес: %s\n", html.EscapeString(sess.state.Address))
	if sess.state.Notes != "" {
		fmt.Fprintf(&b, "📝 Комментарий: %s\n", html.EscapeString(sess.state.Notes))
	}

	h.reply(ctx, sess, b.String(), inline([]models.InlineKeyboardButton{
		button("✅ Подтвердить", "checkout_confirm"),
		button("❌ Отменить", "checkout_cancel"),
	}))
}

func (h *Handler) onCheckoutConfirmText(ctx context.Context, sess *session, _ string) {
	h.reply(ctx, sess, "👆 Подтвердите или отмените заказ кнопками выше", cancelKeyboard())
}

func (h *Handler) onCheckout(ctx context.Context, sess *session, cb callback, arg string) {
	if arg == "cancel" {
		h.resetState(ctx, sess)
		h.edit(ctx, sess, cb, "❌ Оформление заказа отменено", nil)
		h.showMenu(ctx, sess, "🏠 Главное меню")
		return
	}
	if arg != "confirm" {
		return
	}
	if sess.state.State != stateCheckoutConfirm {
		cb.answer("⌛ Оформление устарело, начните заново из корзины", true)
		return
	}

	cart, err := h.redisRepo.GetCart(ctx, sess.user.TelegramID)
	if err != nil {
		h.logger.Error("Failed to read cart", zap.Error(err))
		cb.answer("❌ Корзина недоступна, попробуйте позже", true)
		return
	}

	order, err := h.orders.CreateOrderFromCart(ctx, sess.user.ID, cart, sess.state.Address, sess.state.Phone, sess.state.Notes)
	if errors.Is(err, service.ErrInsufficientStock) {
		cb.answer("❌ Некоторых товаров уже недостаточно на складе. Проверьте корзину.", true)
		return
	}
	if err != nil {
		h.logger.Error("Failed to create order", zap.Int64("user_id", sess.user.ID), zap.Error(err))
		cb.answer(errorText(err), true)
		return
	}

	if err := h.redisRepo.ClearCart(ctx, sess.user.TelegramID); err != nil {
		h.logger.Warn("Failed to clear cart after order", zap.Error(err))
	}
	h.resetState(ctx, sess)

	cb.answer("✅ Заказ оформлен", false)
	h.edit(ctx, sess, cb, fmt.Sprintf("✅ <b>Заказ #%d оформлен!</b>\n\nМенеджер свяжется с вами для подтверждения.\n\n%s",
		order.ID, service.FormatOrderInfo(order)), nil)
	h.showMenu(ctx, sess, "🏠 Главное меню")
	h.notifyManagers(ctx, sess.s, order)
}
