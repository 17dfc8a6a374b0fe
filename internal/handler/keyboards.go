package handler

import (
	"context"
	"fmt"

	"maxxpharm/internal/domain"

	"github.com/go-telegram/bot/models"
)

// Reply keyboard labels; each one is unique across all menus
const (
	btnCatalog  = "🛍️ Каталог"
	btnSearch   = "🔍 Поиск"
	btnCart     = "🛒 Корзина"
	btnMyOrders = "📦 Мои заказы"
	btnRepeat   = "🔁 Повторить заказ"
	btnTrack    = "📍 Отследить заказ"
	btnAbout    = "ℹ️ О нас"
	btnSupport  = "📞 Поддержка"

	btnDeliveries = "🚚 Мои доставки"
	btnAddresses  = "🗺️ Адреса доставки"
	btnContacts   = "☎️ Контакты клиентов"
	btnDelivered  = "✅ Отметить доставленным"

	btnNewOrders = "🆕 Новые заказы"
	btnInWork    = "⏳ В работе"
	btnCompleted = "✔️ Выполненные"
	btnCancelled = "❌ Отмененные"

	btnAllOrders  = "📋 Все заказы"
	btnStats      = "📊 Статистика"
	btnWarehouse  = "🏪 Склад"
	btnProducts   = "💊 Товары"
	btnCategories = "🏷️ Категории"
	btnLogs       = "📝 Логи"
	btnUsers      = "👥 Пользователи"

	btnCancel = "❌ Отмена"
	btnBack   = "🔙 Назад"
	btnPhone  = "📱 Отправить номер"
	btnSkip   = "⏭️ Пропустить"
)

type menuRoute struct {
	role   domain.Role
	handle func(h *Handler, ctx context.Context, sess *session)
}

type callbackRoute struct {
	prefix string
	role   domain.Role
	handle func(h *Handler, ctx context.Context, sess *session, cb callback, arg string)
}

var (
	menuRoutes     map[string]menuRoute
	callbackRoutes []callbackRoute
)

func init() {
	menuRoutes = map[string]menuRoute{
		btnCatalog:  {domain.RoleClient, (*Handler).showCatalog},
		btnSearch:   {domain.RoleClient, (*Handler).startSearch},
		btnCart:     {domain.RoleClient, (*Handler).showCart},
		btnMyOrders: {domain.RoleClient, (*Handler).showMyOrders},
		btnRepeat:   {domain.RoleClient, (*Handler).repeatLastOrder},
		btnTrack:    {domain.RoleClient, (*Handler).startTrackOrder},
		btnAbout:    {domain.RoleClient, (*Handler).showAbout},
		btnSupport:  {domain.RoleClient, (*Handler).showSupport},

		btnDeliveries: {domain.RoleCourier, (*Handler).showDeliveries},
		btnAddresses:  {domain.RoleCourier, (*Handler).showAddresses},
		btnContacts:   {domain.RoleCourier, (*Handler).showContacts},
		btnDelivered:  {domain.RoleCourier, (*Handler).startMarkDelivered},

		btnNewOrders: {domain.RoleManager, (*Handler).showNewOrders},
		btnInWork:    {domain.RoleManager, (*Handler).showOrdersInWork},
		btnCompleted: {domain.RoleManager, (*Handler).showCompletedOrders},
		btnCancelled: {domain.RoleManager, (*Handler).showCancelledOrders},

		btnAllOrders:  {domain.RoleAdmin, (*Handler).showAllOrders},
		btnStats:      {domain.RoleAdmin, (*Handler).showStatsMenu},
		btnWarehouse:  {domain.RoleAdmin, (*Handler).showWarehouseMenu},
		btnProducts:   {domain.RoleAdmin, (*Handler).showProductsMenu},
		btnCategories: {domain.RoleAdmin, (*Handler).showCategoriesMenu},
		btnLogs:       {domain.RoleAdmin, (*Handler).showLogsMenu},
		btnUsers:      {domain.RoleSuperAdmin, (*Handler).showUsersMenu},
	}

	// Longer prefixes first where two could match
	callbackRoutes = []callbackRoute{
		{"catalog", domain.RoleClient, (*Handler).onCatalog},
		{"browse_", domain.RoleClient, (*Handler).onBrowseCategory},
		{"product_", domain.RoleClient, (*Handler).onProduct},
		{"qty_", domain.RoleClient, (*Handler).onQuantity},
		{"addcart_", domain.RoleClient, (*Handler).onAddToCart},
		{"cart_", domain.RoleClient, (*Handler).onCart},
		{"myorder_", domain.RoleClient, (*Handler).onMyOrder},
		{"mycancel_", domain.RoleClient, (*Handler).onCancelMyOrder},
		{"repeat_", domain.RoleClient, (*Handler).onRepeatOrder},
		{"checkout_", domain.RoleClient, (*Handler).onCheckout},

		{"delivered_", domain.RoleCourier, (*Handler).onDelivered},
		{"order_", domain.RoleManager, (*Handler).onOrderAction},

		{"stats_", domain.RoleAdmin, (*Handler).onStats},
		{"wh_", domain.RoleAdmin, (*Handler).onWarehouse},
		{"admprod_", domain.RoleAdmin, (*Handler).onAdminProducts},
		{"admcat_", domain.RoleAdmin, (*Handler).onAdminCategories},
		{"logs_", domain.RoleAdmin, (*Handler).onLogs},
		{"users_", domain.RoleSuperAdmin, (*Handler).onUsers},
	}
}

func replyKeyboard(rows ...[]string) *models.ReplyKeyboardMarkup {
	keyboard := make([][]models.KeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]models.KeyboardButton, 0, len(row))
		for _, label := range row {
			buttons = append(buttons, models.KeyboardButton{Text: label})
		}
		keyboard = append(keyboard, buttons)
	}
	return &models.ReplyKeyboardMarkup{Keyboard: keyboard, ResizeKeyboard: true}
}

// menuKeyboard shows the buttons of the user's role
func menuKeyboard(user *domain.User) *models.ReplyKeyboardMarkup {
	switch {
	case user.Role.Level() >= domain.RoleAdmin.Level():
		rows := [][]string{
			{btnStats, btnWarehouse},
			{btnProducts, btnCategories},
			{btnNewOrders, btnInWork},
			{btnCompleted, btnCancelled},
			{btnAllOrders, btnLogs},
		}
		if user.Role == domain.RoleSuperAdmin {
			rows[len(rows)-1] = append(rows[len(rows)-1], btnUsers)
		}
		return replyKeyboard(rows...)
	case user.Role == domain.RoleManager:
		return replyKeyboard(
			[]string{btnNewOrders, btnInWork},
			[]string{btnCompleted, btnCancelled},
		)
	case user.Role == domain.RoleCourier:
		return replyKeyboard(
			[]string{btnDeliveries, btnAddresses},
			[]string{btnContacts, btnDelivered},
		)
	default:
		return replyKeyboard(
			[]string{btnCatalog, btnSearch},
			[]string{btnCart, btnMyOrders},
			[]string{btnRepeat, btnTrack},
			[]string{btnAbout, btnSupport},
		)
	}
}

func cancelKeyboard() *models.ReplyKeyboardMarkup {
	return replyKeyboard([]string{btnCancel})
}

func skipKeyboard() *models.ReplyKeyboardMarkup {
	return replyKeyboard([]string{btnSkip}, []string{btnCancel})
}

func phoneKeyboard() *models.ReplyKeyboardMarkup {
	return &models.ReplyKeyboardMarkup{
		Keyboard: [][]models.KeyboardButton{
			{{Text: btnPhone, RequestContact: true}},
			{{Text: btnCancel}},
		},
		ResizeKeyboard: true,
	}
}

func button(text, data string) models.InlineKeyboardButton {
	return models.InlineKeyboardButton{Text: text, CallbackData: data}
}

func inline(rows ...[]models.InlineKeyboardButton) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// quantityKeyboard is the -/+ selector under a product card
func quantityKeyboard(p *domain.Product, qty int) *models.InlineKeyboardMarkup {
	return inline(
		[]models.InlineKeyboardButton{
			button("➖", fmt.Sprintf("qty_%d_%d", p.ID, qty-1)),
			button(fmt.Sprintf("%d шт.", qty), fmt.Sprintf("qty_%d_%d", p.ID, qty)),
			button("➕", fmt.Sprintf("qty_%d_%d", p.ID, qty+1)),
		},
		[]models.InlineKeyboardButton{button(fmt.Sprintf("🛒 В корзину (%d)", qty), fmt.Sprintf("addcart_%d_%d", p.ID, qty))},
		[]models.InlineKeyboardButton{button("🔙 К товарам", fmt.Sprintf("browse_%d", p.CategoryID))},
	)
}

// orderActionsKeyboard lists what staff can do with the order in its current status.
// The version travels in the button so a stale button cannot act on a changed order.
func orderActionsKeyboard(o *domain.Order) models.ReplyMarkup {
	if o.Status.Final() {
		return nil
	}
	action := func(text, name string) models.InlineKeyboardButton {
		return button(text, fmt.Sprintf("order_%s_%d_%d", name, o.ID, o.Version))
	}

	var rows [][]models.InlineKeyboardButton
	switch o.Status {
	case domain.StatusNew:
		rows = append(rows, []models.InlineKeyboardButton{action("✅ Подтвердить", "confirm"), action("❌ Отменить", "cancel")})
	case domain.StatusConfirmed:
		rows = append(rows, []models.InlineKeyboardButton{action("⏳ В работу", "work"), action("❌ Отменить", "cancel")})
	case domain.StatusInProgress:
		rows = append(rows, []models.InlineKeyboardButton{action("🚚 В доставку", "deliver"), action("❌ Отменить", "cancel")})
	case domain.StatusInDelivery:
		rows = append(rows, []models.InlineKeyboardButton{action("✔️ Завершить", "complete"), action("❌ Отменить", "cancel")})
	}
	return inline(rows...)
}
