package handler

import (
	"context"
	"fmt"
	"html"

	"maxxpharm/internal/domain"
	"maxxpharm/internal/service"
)

// Conversation states kept in Redis
const (
	stateStart = "start"

	stateCheckoutPhone   = "checkout_phone"
	stateCheckoutAddress = "checkout_address"
	stateCheckoutComment = "checkout_comment"
	stateCheckoutConfirm = "checkout_confirm"

	stateSearch        = "search_products"
	stateTrackOrder    = "track_order"
	stateMarkDelivered = "mark_delivered"

	stateAddCategoryName        = "add_category_name"
	stateAddCategoryDescription = "add_category_description"
	stateAddProductName         = "add_product_name"
	stateAddProductPrice        = "add_product_price"
	stateAddProductStock        = "add_product_stock"
	stateAddProductCategory     = "add_product_category"
	stateAddProductDescription  = "add_product_description"
	stateReplenishProduct       = "replenish_product"
	stateReplenishQuantity      = "replenish_quantity"
	stateChangeRoleUser         = "change_role_user"
	stateChangeRoleRole         = "change_role_role"
	stateBlockUser              = "block_user"
	stateUnblockUser            = "unblock_user"
)

type stateHandler func(h *Handler, ctx context.Context, sess *session, text string)

var stateHandlers map[string]stateHandler

func init() {
	stateHandlers = map[string]stateHandler{
		stateCheckoutPhone:   (*Handler).onCheckoutPhone,
		stateCheckoutAddress: (*Handler).onCheckoutAddress,
		stateCheckoutComment: (*Handler).onCheckoutComment,
		stateCheckoutConfirm: (*Handler).onCheckoutConfirmText,

		stateSearch:        (*Handler).onSearchQuery,
		stateTrackOrder:    (*Handler).onTrackOrderID,
		stateMarkDelivered: (*Handler).onMarkDeliveredID,

		stateAddCategoryName:        (*Handler).onCategoryName,
		stateAddCategoryDescription: (*Handler).onCategoryDescription,
		stateAddProductName:         (*Handler).onProductName,
		stateAddProductPrice:        (*Handler).onProductPrice,
		stateAddProductStock:        (*Handler).onProductStock,
		stateAddProductCategory:     (*Handler).onProductCategory,
		stateAddProductDescription:  (*Handler).onProductDescription,
		stateReplenishProduct:       (*Handler).onReplenishProduct,
		stateReplenishQuantity:      (*Handler).onReplenishQuantity,
		stateChangeRoleUser:         (*Handler).onChangeRoleUser,
		stateChangeRoleRole:         (*Handler).onChangeRoleRole,
		stateBlockUser:              (*Handler).onBlockUser,
		stateUnblockUser:            (*Handler).onUnblockUser,
	}
}

// stateRoles guards the forms of staff members
var stateRoles = map[string]domain.Role{
	stateMarkDelivered:          domain.RoleCourier,
	stateAddCategoryName:        domain.RoleAdmin,
	stateAddCategoryDescription: domain.RoleAdmin,
	stateAddProductName:         domain.RoleAdmin,
	stateAddProductPrice:        domain.RoleAdmin,
	stateAddProductStock:        domain.RoleAdmin,
	stateAddProductCategory:     domain.RoleAdmin,
	stateAddProductDescription:  domain.RoleAdmin,
	stateReplenishProduct:       domain.RoleAdmin,
	stateReplenishQuantity:      domain.RoleAdmin,
	stateChangeRoleUser:         domain.RoleSuperAdmin,
	stateChangeRoleRole:         domain.RoleSuperAdmin,
	stateBlockUser:              domain.RoleSuperAdmin,
	stateUnblockUser:            domain.RoleSuperAdmin,
}

func (h *Handler) handleStateInput(ctx context.Context, sess *session, text, contactPhone string) {
	state := sess.state.State
	handle, ok := stateHandlers[state]
	if !ok || !service.CheckPermission(sess.user, stateRoles[state]) {
		h.resetState(ctx, sess)
		h.showMenu(ctx, sess, "🏠 Главное меню")
		return
	}
	if state == stateCheckoutPhone && contactPhone != "" {
		text = contactPhone
	}
	handle(h, ctx, sess, text)
}

func (h *Handler) handleStart(ctx context.Context, sess *session) {
	h.resetState(ctx, sess)

	greeting := fmt.Sprintf("👋 Здравствуйте, <b>%s</b>!\n\n", html.EscapeString(sess.user.FullName))
	switch {
	case service.IsAdmin(sess.user):
		greeting += "Вы вошли как " + service.FormatUserRole(sess.user.Role) + ".\nВыберите раздел управления:"
	case service.IsManager(sess.user):
		greeting += "Вы вошли как менеджер. Новые заказы ждут обработки:"
	case service.IsCourier(sess.user):
		greeting += "Вы вошли как курьер. Ваши доставки в меню ниже:"
	default:
		greeting += "💊 Добро пожаловать в <b>Maxxpharm</b>!\nЗакажите лекарства с доставкой, не выходя из дома."
	}
	h.reply(ctx, sess, greeting, menuKeyboard(sess.user))
}

func (h *Handler) handleHelp(ctx context.Context, sess *session) {
	text := "ℹ️ <b>Помощь</b>\n\n" +
		"/start - главное меню\n" +
		"/cancel - отменить текущее действие\n" +
		"/help - эта справка\n\n"
	switch {
	case service.IsAdmin(sess.user):
		text += "Статистика, склад, товары, категории и логи доступны из меню."
	case service.IsManager(sess.user):
		text += "Обрабатывайте заказы кнопками под каждым заказом."
	case service.IsCourier(sess.user):
		text += "Отмечайте доставленные заказы кнопкой ✅ или через меню."
	default:
		text += "Выберите товары в каталоге, добавьте их в корзину и оформите заказ."
	}
	h.reply(ctx, sess, text, menuKeyboard(sess.user))
}

func (h *Handler) showMenu(ctx context.Context, sess *session, text string) {
	h.reply(ctx, sess, text, menuKeyboard(sess.user))
}
