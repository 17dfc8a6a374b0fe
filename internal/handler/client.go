package handler

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	"maxxpharm/internal/domain"
	"maxxpharm/internal/service"

	"github.com/go-telegram/bot/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const myOrdersLimit = 10

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	return id, err == nil && id > 0
}

// parsePair reads "<id>_<n>" callback arguments
func parsePair(raw string) (int64, int, bool) {
	idPart, nPart, ok := strings.Cut(raw, "_")
	if !ok {
		return 0, 0, false
	}
	id, ok := parseID(idPart)
	if !ok {
		return 0, 0, false
	}
	n, err := strconv.Atoi(nPart)
	return id, n, err == nil
}

func (h *Handler) showCatalog(ctx context.Context, sess *session) {
	text, markup, err := h.catalogView(ctx)
	if err != nil {
		h.logger.Error("Failed to load categories", zap.Error(err))
		h.fail(ctx, sess, err)
		return
	}
	h.reply(ctx, sess, text, markup)
}

func (h *Handler) onCatalog(ctx context.Context, sess *session, cb callback, _ string) {
	text, markup, err := h.catalogView(ctx)
	if err != nil {
		h.fail(ctx, sess, err)
		return
	}
	h.edit(ctx, sess, cb, text, markup)
}

func (h *Handler) catalogView(ctx context.Context) (string, models.ReplyMarkup, error) {
	categories, err := h.categories.List(ctx)
	if err != nil {
		return "", nil, err
	}
	if len(categories) == 0 {
		return "📭 Каталог пока пуст", nil, nil
	}

	rows := make([][]models.InlineKeyboardButton, 0, len(categories))
	for _, c := range categories {
		rows = append(rows, []models.InlineKeyboardButton{button("🏷️ "+c.Name, fmt.Sprintf("browse_%d", c.ID))})
	}
	return "🛍️ <b>Каталог</b>\n\nВыберите категорию:", inline(rows...), nil
}

func productButtons(products []domain.Product) [][]models.InlineKeyboardButton {
	rows := make([][]models.InlineKeyboardButton, 0, len(products))
	for _, p := range products {
		label := fmt.Sprintf("%s - %s", p.Name, service.FormatPrice(p.Price))
		if p.StockQuantity == 0 {
			label = "❌ " + label
		}
		rows = append(rows, []models.InlineKeyboardButton{button(label, fmt.Sprintf("product_%d", p.ID))})
	}
	return rows
}

func (h *Handler) onBrowseCategory(ctx context.Context, sess *session, cb callback, arg string) {
	categoryID, ok := parseID(arg)
	if !ok {
		return
	}
	category, err := h.categories.Get(ctx, categoryID)
	if err != nil {
		h.fail(ctx, sess, err)
		return
	}
	products, err := h.products.ByCategory(ctx, categoryID)
	if err != nil {
		h.fail(ctx, sess, err)
		return
	}

	back := []models.InlineKeyboardButton{button("🔙 К категориям", "catalog")}
	if len(products) == 0 {
		h.edit(ctx, sess, cb, fmt.Sprintf("📭 В категории «%s» пока нет товаров", html.EscapeString(category.Name)), inline(back))
		return
	}
	rows := append(productButtons(products), back)
	h.edit(ctx, sess, cb, fmt.Sprintf("🏷️ <b>%s</b>\n\nВыберите товар:", html.EscapeString(category.Name)), inline(rows...))
}

func (h *Handler) onProduct(ctx context.Context, sess *session, cb callback, arg string) {
	productID, ok := parseID(arg)
	if !ok {
		return
	}
	p, err := h.products.Get(ctx, productID)
	if err != nil {
		cb.answer(errorText(err), true)
		return
	}
	h.showProductCard(ctx, sess, cb, p, 1)
}

func (h *Handler) showProductCard(ctx context.Context, sess *session, cb callback, p *domain.Product, qty int) {
	if p.StockQuantity == 0 {
		h.edit(ctx, sess, cb, service.FormatProductInfo(p),
			inline([]models.InlineKeyboardButton{button("🔙 К товарам", fmt.Sprintf("browse_%d", p.CategoryID))}))
		return
	}
	h.edit(ctx, sess, cb, service.FormatProductInfo(p), quantityKeyboard(p, qty))
}

func (h *Handler) onQuantity(ctx context.Context, sess *session, cb callback, arg string) {
	productID, qty, ok := parsePair(arg)
	if !ok {
		return
	}
	p, err := h.products.Get(ctx, productID)
	if err != nil {
		cb.answer(errorText(err), true)
		return
	}

	limit := p.StockQuantity
	if limit > service.MaxQuantity {
		limit = service.MaxQuantity
	}
	switch {
	case qty < 1:
		cb.answer("Минимум 1 шт.", false)
		return
	case qty > limit:
		cb.answer(fmt.Sprintf("В наличии только %d шт.", limit), false)
		return
	}
	h.showProductCard(ctx, sess, cb, p, qty)
}

func (h *Handler) onAddToCart(ctx context.Context, sess *session, cb callback, arg string) {
	productID, qty, ok := parsePair(arg)
	if !ok || service.CheckQuantity(qty) != nil {
		return
	}
	p, err := h.products.Get(ctx, productID)
	if err != nil {
		cb.answer(errorText(err), true)
		return
	}

	inCart := 0
	cart, err := h.redisRepo.GetCart(ctx, sess.user.TelegramID)
	if err != nil {
		h.logger.Error("Failed to read cart", zap.Error(err))
		cb.answer("❌ Корзина недоступна, попробуйте позже", true)
		return
	}
	for _, line := range cart {
		if line.ProductID == productID {
			inCart = line.Quantity
		}
	}
	if inCart+qty > service.MaxQuantity {
		cb.answer(fmt.Sprintf("❌ Не больше %d шт. одного товара, в корзине уже %d", service.MaxQuantity, inCart), true)
		return
	}
	if inCart+qty > p.StockQuantity {
		cb.answer(fmt.Sprintf("❌ В наличии только %d шт., в корзине уже %d", p.StockQuantity, inCart), true)
		return
	}

	total, err := h.redisRepo.AddToCart(ctx, sess.user.TelegramID, productID, qty)
	if err != nil {
		h.logger.Error("Failed to add to cart", zap.Error(err))
		cb.answer("❌ Корзина недоступна, попробуйте позже", true)
		return
	}
	cb.answer(fmt.Sprintf("✅ %s добавлен в корзину (%d шт.)", p.Name, total), false)
}

// cartLine is a cart entry joined with the current product data
type cartLine struct {
	product  *domain.Product
	quantity int
}

// loadCart drops cart entries for products that are no longer sold
func (h *Handler) loadCart(ctx context.Context, telegramID int64) ([]cartLine, decimal.Decimal, error) {
	cart, err := h.redisRepo.GetCart(ctx, telegramID)
	if err != nil {
		return nil, decimal.Zero, err
	}

	var lines []cartLine
	total := decimal.Zero
	for _, line := range cart {
		p, err := h.products.Get(ctx, line.ProductID)
		if errors.Is(err, service.ErrProductNotFound) {
			if err := h.redisRepo.RemoveFromCart(ctx, telegramID, line.ProductID); err != nil {
				h.logger.Warn("Failed to drop unavailable product from cart", zap.Error(err))
			}
			continue
		}
		if err != nil {
			return nil, decimal.Zero, err
		}
		lines = append(lines, cartLine{product: p, quantity: line.Quantity})
		total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return lines, total, nil
}

func (h *Handler) cartView(ctx context.Context, sess *session) (string, models.ReplyMarkup, error) {
	lines, total, err := h.loadCart(ctx, sess.user.TelegramID)
	if err != nil {
		return "", nil, err
	}
	if len(lines) == 0 {
		return "🛒 Ваша корзина пуста", nil, nil
	}

	var b strings.Builder
	b.WriteString("🛒 <b>Ваша корзина:</b>\n\n")
	rows := make([][]models.InlineKeyboardButton, 0, len(lines)+1)
	for _, line := range lines {
		subtotal := line.product.Price.Mul(decimal.NewFromInt(int64(line.quantity)))
		fmt.Fprintf(&b, "• %s - %d шт. × %s = %s\n",
			html.EscapeString(line.product.Name), line.quantity, service.FormatPrice(line.product.Price), service.FormatPrice(subtotal))
		rows = append(rows, []models.InlineKeyboardButton{
			button("❌ "+line.product.Name, fmt.Sprintf("cart_remove_%d", line.product.ID)),
		})
	}
	fmt.Fprintf(&b, "\n💰 <b>Итого: %s</b>", service.FormatPrice(total))
	rows = append(rows, []models.InlineKeyboardButton{
		button("🗑️ Очистить", "cart_clear"),
		button("✅ Оформить заказ", "cart_checkout"),
	})
	return b.String(), inline(rows...), nil
}

func (h *Handler) showCart(ctx context.Context, sess *session) {
	text, markup, err := h.cartView(ctx, sess)
	if err != nil {
		h.logger.Error("Failed to show cart", zap.Error(err))
		h.fail(ctx, sess, err)
		return
	}
	h.reply(ctx, sess, text, markup)
}

func (h *Handler) onCart(ctx context.Context, sess *session, cb callback, arg string) {
	switch {
	case arg == "clear":
		if err := h.redisRepo.ClearCart(ctx, sess.user.TelegramID); err != nil {
			h.logger.Error("Failed to clear cart", zap.Error(err))
			cb.answer("❌ Ошибка", true)
			return
		}
		h.edit(ctx, sess, cb, "🗑️ Корзина очищена", nil)
	case arg == "checkout":
		h.startCheckout(ctx, sess, cb)
	case strings.HasPrefix(arg, "remove_"):
		productID, ok := parseID(strings.TrimPrefix(arg, "remove_"))
		if !ok {
			return
		}
		if err := h.redisRepo.RemoveFromCart(ctx, sess.user.TelegramID, productID); err != nil {
			h.logger.Error("Failed to remove cart item", zap.Error(err))
			cb.answer("❌ Ошибка", true)
			return
		}
		text, markup, err := h.cartView(ctx, sess)
		if err != nil {
			h.fail(ctx, sess, err)
			return
		}
		h.edit(ctx, sess, cb, text, markup)
	}
}

func (h *Handler) startSearch(ctx context.Context, sess *session) {
	h.setState(ctx, sess, stateSearch)
	h.reply(ctx, sess, "🔍 Введите название лекарства:", cancelKeyboard())
}

func (h *Handler) onSearchQuery(ctx context.Context, sess *session, text string) {
	products, err := h.products.Search(ctx, text)
	var verr service.ValidationError
	if errors.As(err, &verr) {
		h.reply(ctx, sess, "🔍 Введите название лекарства:", cancelKeyboard())
		return
	}
	h.resetState(ctx, sess)
	if err != nil {
		h.fail(ctx, sess, err)
		return
	}
	if len(products) == 0 {
		h.showMenu(ctx, sess, fmt.Sprintf("🔍 По запросу «%s» ничего не найдено", html.EscapeString(text)))
		return
	}
	h.showMenu(ctx, sess, fmt.Sprintf("🔍 Найдено товаров: %d", len(products)))
	h.reply(ctx, sess, "Выберите товар:", inline(productButtons(products)...))
}

func (h *Handler) showMyOrders(ctx context.Context, sess *session) {
	orders, err := h.orders.GetUserOrders(ctx, sess.user.ID, myOrdersLimit)
	if err != nil {
		h.fail(ctx, sess, err)
		return
	}
	if len(orders) == 0 {
		h.reply(ctx, sess, "📭 У вас пока нет заказов", nil)
		return
	}

	var b strings.Builder
	b.WriteString("📦 <b>Ваши заказы:</b>\n\n")
	rows := make([][]models.InlineKeyboardButton, 0, len(orders))
	for i := range orders {
		o := &orders[i]
		fmt.Fprintf(&b, "%s #%d - %s (%s)\n", service.StatusEmoji(o.Status), o.ID,
			service.FormatPrice(o.TotalAmount), service.FormatDate(o.CreatedAt, "short"))
		rows = append(rows, []models.InlineKeyboardButton{button(fmt.Sprintf("Заказ #%d", o.ID), fmt.Sprintf("myorder_%d", o.ID))})
	}
	h.reply(ctx, sess, b.String(), inline(rows...))
}

// ownOrder loads an order and checks it belongs to the session user
func (h *Handler) ownOrder(ctx context.Context, sess *session, arg string) (*domain.Order, error) {
	orderID, ok := parseID(arg)
	if !ok {
		return nil, service.ErrOrderNotFound
	}
	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != sess.user.ID && !service.IsManager(sess.user) {
		return nil, service.ErrNotOrderOwner
	}
	return order, nil
}

func clientOrderKeyboard(o *domain.Order) models.ReplyMarkup {
	row := []models.InlineKeyboardButton{button("🔁 Повторить", fmt.Sprintf("repeat_%d", o.ID))}
	if o.Status == domain.StatusNew {
		row = append([]models.InlineKeyboardButton{button("❌ Отменить", fmt.Sprintf("mycancel_%d", o.ID))}, row...)
	}
	return inline(row)
}

func (h *Handler) onMyOrder(ctx context.Context, sess *session, cb callback, arg string) {
	order, err := h.ownOrder(ctx, sess, arg)
	if err != nil {
		cb.answer(errorText(err), true)
		return
	}
	h.edit(ctx, sess, cb, service.FormatOrderInfo(order), clientOrderKeyboard(order))
}

func (h *Handler) onCancelMyOrder(ctx context.Context, sess *session, cb callback, arg string) {
	orderID, ok := parseID(arg)
	if !ok {
		return
	}
	order, err := h.orders.CancelOwnOrder(ctx, orderID, sess.user.ID)
	if err != nil {
		cb.answer(errorText(err), true)
		return
	}
	cb.answer("✅ Заказ отменен", false)
	h.edit(ctx, sess, cb, service.FormatOrderInfo(order), clientOrderKeyboard(order))
}

func (h *Handler) onRepeatOrder(ctx context.Context, sess *session, cb callback, arg string) {
	orderID, ok := parseID(arg)
	if !ok {
		return
	}
	h.repeatOrder(ctx, sess, orderID)
}

func (h *Handler) repeatLastOrder(ctx context.Context, sess *session) {
	orders, err := h.orders.GetUserOrders(ctx, sess.user.ID, 1)
	if err != nil {
		h.fail(ctx, sess, err)
		return
	}
	if len(orders) == 0 {
		h.reply(ctx, sess, "📭 У вас пока нет заказов для повтора", nil)
		return
	}
	h.repeatOrder(ctx, sess, orders[0].ID)
}

func (h *Handler) repeatOrder(ctx context.Context, sess *session, orderID int64) {
	order, err := h.orders.RepeatOrder(ctx, orderID, sess.user.ID)
	if errors.Is(err, service.ErrEmptyOrder) {
		h.reply(ctx, sess, "😔 Товаров из этого заказа больше нет в продаже", nil)
		return
	}
	if err != nil {
		h.fail(ctx, sess, err)
		return
	}
	h.reply(ctx, sess, "🔁 Заказ повторен!\n\n"+service.FormatOrderInfo(order), clientOrderKeyboard(order))
	h.notifyManagers(ctx, sess.s, order)
}

func (h *Handler) startTrackOrder(ctx context.Context, sess *session) {
	h.setState(ctx, sess, stateTrackOrder)
	h.reply(ctx, sess, "📍 Введите номер заказа:", cancelKeyboard())
}

func (h *Handler) onTrackOrderID(ctx context.Context, sess *session, text string) {
	if !service.ValidateOrderID(text) {
		h.reply(ctx, sess, "⚠️ Введите номер заказа цифрами, например 15", cancelKeyboard())
		return
	}
	h.resetState(ctx, sess)

	order, err := h.ownOrder(ctx, sess, strings.TrimPrefix(strings.TrimSpace(text), "#"))
	if err != nil {
		h.showMenu(ctx, sess, errorText(err))
		return
	}
	h.showMenu(ctx, sess, service.FormatOrderInfo(order))
}

func (h *Handler) showAbout(ctx context.Context, sess *session) {
	h.reply(ctx, sess, "💊 <b>Maxxpharm</b>\n\n"+
		"Аптека с доставкой лекарств на дом.\n"+
		"✅ Только сертифицированные препараты\n"+
		"🚚 Доставка в день заказа\n"+
		"🕘 Работаем ежедневно с 9:00 до 21:00", nil)
}

func (h *Handler) showSupport(ctx context.Context, sess *session) {
	h.reply(ctx, sess, "📞 <b>Поддержка</b>\n\n"+
		"Если у вас возникли вопросы по заказу, напишите нам в этот чат или позвоните оператору.\n"+
		"Укажите номер заказа, чтобы мы быстрее помогли.", nil)
}
