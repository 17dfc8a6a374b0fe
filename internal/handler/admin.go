package handler

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"maxxpharm/internal/domain"
	"maxxpharm/internal/service"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

const activityReportDays = 30

func statsKeyboard() *models.InlineKeyboardMarkup {
	return inline(
		[]models.InlineKeyboardButton{button("📈 Общая", "stats_general"), button("📦 Заказы", "stats_orders")},
		[]models.InlineKeyboardButton{button("💰 Финансы", "stats_finance"), button("👥 Пользователи", "stats_users")},
		[]models.InlineKeyboardButton{button("🛍️ Товары", "stats_products"), button("🔥 Активность", "stats_activity")},
	)
}

func warehouseKeyboard() *models.InlineKeyboardMarkup {
	return inline(
		[]models.InlineKeyboardButton{button("📦 Текущие остатки", "wh_current"), button("⚠️ Мало товара", "wh_low")},
		[]models.InlineKeyboardButton{button("➕ Пополнить", "wh_replenish"), button("📈 Отчет", "wh_report")},
		[]models.InlineKeyboardButton{button("📥 Выгрузить в Excel", "wh_export")},
	)
}

func (h *Handler) showStatsMenu(ctx context.Context, sess *session) {
	h.reply(ctx, sess, "📊 <b>Статистика</b>\n\nВыберите отчет:", statsKeyboard())
}

func (h *Handler) onStats(ctx context.Context, sess *session, cb callback, arg string) {
	var (
		text string
		err  error
	)
	switch arg {
	case "general":
		text, err = h.reports.GeneralStatistics(ctx)
	case "orders":
		text, err = h.reports.OrderStatistics(ctx)
	case "finance":
		text, err = h.reports.FinancialStatistics(ctx)
	case "users":
		text, err = h.reports.UserStatistics(ctx)
	case "products":
		text, err = h.reports.ProductStatistics(ctx)
	case "activity":
		text, err = h.reports.ActivityReport(ctx, activityReportDays)
	default:
		return
	}
	if err != nil {
		h.logger.Error("Failed to build report", zap.String("report", arg), zap.Error(err))
		cb.answer(errorText(err), true)
		return
	}
	h.edit(ctx, sess, cb, text, statsKeyboard())
}

func (h *Handler) showWarehouseMenu(ctx context.Context, sess *session) {
	h.reply(ctx, sess, "🏪 <b>Склад</b>\n\nВыберите действие:", warehouseKeyboard())
}

func (h *Handler) onWarehouse(ctx context.Context, sess *session, cb callback, arg string) {
	var (
		text string
		err  error
	)
	switch arg {
	case "current":
		text, err = h.reports.CurrentStock(ctx)
	case "low":
		text, err = h.reports.LowStock(ctx)
	case "report":
		text, err = h.reports.StockReport(ctx)
	case "replenish":
		sess.state = &domain.UserState{State: stateReplenishProduct}
		h.saveState(ctx, sess)
		h.reply(ctx, sess, "➕ Введите ID товара для пополнения:", cancelKeyboard())
		return
	case "export":
		h.exportStock(ctx, sess, cb)
		return
	default:
		return
	}
	if err != nil {
		h.logger.Error("Failed to build stock report", zap.String("report", arg), zap.Error(err))
		cb.answer(errorText(err), true)
		return
	}
	h.edit(ctx, sess, cb, text, warehouseKeyboard())
}

func (h *Handler) exportStock(ctx context.Context, sess *session, cb callback) {
	data, err := h.reports.ExportStockXLSX(ctx)
	if err != nil {
		h.logger.Error("Failed to export stock", zap.Error(err))
		cb.answer(errorText(err), true)
		return
	}

	filename := fmt.Sprintf("stock_%s.xlsx", time.Now().Format("20060102"))
	_, err = sess.s.SendDocument(ctx, &bot.SendDocumentParams{
		ChatID:   sess.chatID,
		Document: &models.InputFileUpload{Filename: filename, Data: bytes.NewReader(data)},
		Caption:  "📥 Остатки на складе",
	})
	if err != nil {
		h.logger.Error("Failed to send stock export", zap.Error(err))
		cb.answer("❌ Не удалось отправить файл", true)
		return
	}
	cb.answer("📥 Файл отправлен", false)
}

func (h *Handler) onReplenishProduct(ctx context.Context, sess *session, text string) {
	productID, ok := parseID(strings.TrimPrefix(strings.TrimSpace(text), "#"))
	if !ok {
		h.reply(ctx, sess, "⚠️ Введите ID товара цифрами", cancelKeyboard())
		return
	}
	p, err := h.products.Get(ctx, productID)
	if err != nil {
		h.reply(ctx, sess, errorText(err)+". Введите другой ID:", cancelKeyboard())
		return
	}

	sess.state.ProductID = p.ID
	h.setState(ctx, sess, stateReplenishQuantity)
	h.reply(ctx, sess, fmt.Sprintf("📦 %s\nТекущий остаток: %d шт.\n\nВведите количество для пополнения:",
		html.EscapeString(p.Name), p.StockQuantity), cancelKeyboard())
}

func (h *Handler) onReplenishQuantity(ctx context.Context, sess *session, text string) {
	qty, err := service.ParseQuantity(text)
	if err != nil {
		h.reply(ctx, sess, fmt.Sprintf("⚠️ Введите число от 1 до %d", service.MaxQuantity), cancelKeyboard())
		return
	}

	productID := sess.state.ProductID
	h.resetState(ctx, sess)
	p, err := h.products.Replenish(ctx, sess.user.ID, productID, qty)
	if err != nil {
		h.showMenu(ctx, sess, errorText(err))
		return
	}
	h.showMenu(ctx, sess, fmt.Sprintf("✅ Склад пополнен: %s +%d шт.\nНовый остаток: %d шт.",
		html.EscapeString(p.Name), qty, p.StockQuantity))
}

func (h *Handler) showProductsMenu(ctx context.Context, sess *session) {
	h.reply(ctx, sess, "💊 <b>Товары</b>", inline(
		[]models.InlineKeyboardButton{button("📋 Список", "admprod_list"), button("➕ Добавить", "admprod_add")},
	))
}

func (h *Handler) productListView(ctx context.Context) (string, models.ReplyMarkup, error) {
	products, err := h.products.List(ctx)
	if err != nil {
		return "", nil, err
	}
	if len(products) == 0 {
		return "📭 Товары отсутствуют", nil, nil
	}

	var b strings.Builder
	b.WriteString("💊 <b>Товары:</b>\n\n")
	rows := make([][]models.InlineKeyboardButton, 0, len(products))
	for _, p := range products {
		fmt.Fprintf(&b, "#%d %s - %s, %d шт.\n", p.ID, html.EscapeString(p.Name), service.FormatPrice(p.Price), p.StockQuantity)
		rows = append(rows, []models.InlineKeyboardButton{button("🗑️ "+p.Name, fmt.Sprintf("admprod_del_%d", p.ID))})
	}
	return b.String(), inline(rows...), nil
}

func (h *Handler) onAdminProducts(ctx context.Context, sess *session, cb callback, arg string) {
	switch {
	case arg == "add":
		sess.state = &domain.UserState{State: stateAddProductName}
		h.saveState(ctx, sess)
		h.reply(ctx, sess, "➕ Введите название товара:", cancelKeyboard())
		return
	case strings.HasPrefix(arg, "del_"):
		productID, ok := parseID(strings.TrimPrefix(arg, "del_"))
		if !ok {
			return
		}
		if err := h.products.Delete(ctx, sess.user.ID, productID); err != nil {
			cb.answer(errorText(err), true)
			return
		}
		cb.answer("🗑️ Товар удален", false)
	case arg != "list":
		return
	}

	text, markup, err := h.productListView(ctx)
	if err != nil {
		h.fail(ctx, sess, err)
		return
	}
	h.edit(ctx, sess, cb, text, markup)
}

func (h *Handler) onProductName(ctx context.Context, sess *session, text string) {
	if !service.ValidateProductName(text) {
		h.reply(ctx, sess, "⚠️ Название должно быть от 2 до 255 символов", cancelKeyboard())
		return
	}
	sess.state.Name = strings.TrimSpace(text)
	h.setState(ctx, sess, stateAddProductPrice)
	h.reply(ctx, sess, "💰 Введите цену (например 12500 или 99,90):", cancelKeyboard())
}

func (h *Handler) onProductPrice(ctx context.Context, sess *session, text string) {
	price, err := service.ParsePrice(text)
	if err != nil {
		h.reply(ctx, sess, "⚠️ Цена должна быть положительным числом", cancelKeyboard())
		return
	}
	sess.state.Price = price.String()
	h.setState(ctx, sess, stateAddProductStock)
	h.reply(ctx, sess, "📦 Введите начальный остаток (шт.):", cancelKeyboard())
}

func (h *Handler) onProductStock(ctx context.Context, sess *session, text string) {
	var stock int
	if _, err := fmt.Sscan(strings.TrimSpace(text), &stock); err != nil || stock < 0 {
		h.reply(ctx, sess, "⚠️ Остаток должен быть целым числом не меньше 0", cancelKeyboard())
		return
	}
	sess.state.Quantity = stock

	categories, err := h.categories.List(ctx)
	if err != nil {
		h.fail(ctx, sess, err)
		return
	}
	if len(categories) == 0 {
		h.resetState(ctx, sess)
		h.showMenu(ctx, sess, "⚠️ Сначала создайте хотя бы одну категорию")
		return
	}

	var b strings.Builder
	b.WriteString("🏷️ Введите ID категории:\n\n")
	for _, c := range categories {
		fmt.Fprintf(&b, "%d - %s\n", c.ID, html.EscapeString(c.Name))
	}
	h.setState(ctx, sess, stateAddProductCategory)
	h.reply(ctx, sess, b.String(), cancelKeyboard())
}

func (h *Handler) onProductCategory(ctx context.Context, sess *session, text string) {
	categoryID, ok := parseID(strings.TrimSpace(text))
	if !ok {
		h.reply(ctx, sess, "⚠️ Введите ID категории цифрами", cancelKeyboard())
		return
	}
	if _, err := h.categories.Get(ctx, categoryID); err != nil {
		h.reply(ctx, sess, errorText(err), cancelKeyboard())
		return
	}
	sess.state.CategoryID = categoryID
	h.setState(ctx, sess, stateAddProductDescription)
	h.reply(ctx, sess, "📝 Введите описание или нажмите «Пропустить»:", skipKeyboard())
}

func (h *Handler) onProductDescription(ctx context.Context, sess *session, text string) {
	description := ""
	if text != btnSkip {
		description = text
	}

	price, err := service.ParsePrice(sess.state.Price)
	if err != nil {
		h.resetState(ctx, sess)
		h.showMenu(ctx, sess, errorText(err))
		return
	}
	p := &domain.Product{
		Name:          sess.state.Name,
		Description:   description,
		Price:         price,
		StockQuantity: sess.state.Quantity,
		CategoryID:    sess.state.CategoryID,
	}

	h.resetState(ctx, sess)
	if err := h.products.Create(ctx, sess.user.ID, p); err != nil {
		h.showMenu(ctx, sess, errorText(err))
		return
	}
	h.showMenu(ctx, sess, fmt.Sprintf("✅ Товар #%d «%s» добавлен", p.ID, html.EscapeString(p.Name)))
}

func (h *Handler) showCategoriesMenu(ctx context.Context, sess *session) {
	h.reply(ctx, sess, "🏷️ <b>Категории</b>", inline(
		[]models.InlineKeyboardButton{button("📋 Список", "admcat_list"), button("➕ Добавить", "admcat_add")},
	))
}

func (h *Handler) onAdminCategories(ctx context.Context, sess *session, cb callback, arg string) {
	switch {
	case arg == "add":
		sess.state = &domain.UserState{State: stateAddCategoryName}
		h.saveState(ctx, sess)
		h.reply(ctx, sess, "➕ Введите название категории:", cancelKeyboard())
		return
	case strings.HasPrefix(arg, "del_"):
		categoryID, ok := parseID(strings.TrimPrefix(arg, "del_"))
		if !ok {
			return
		}
		if err := h.categories.Delete(ctx, sess.user.ID, categoryID); err != nil {
			cb.answer(errorText(err), true)
			return
		}
		cb.answer("🗑️ Категория удалена", false)
	case arg != "list":
		return
	}

	categories, err := h.categories.List(ctx)
	if err != nil {
		h.fail(ctx, sess, err)
		return
	}
	if len(categories) == 0 {
		h.edit(ctx, sess, cb, "📭 Категорий нет", nil)
		return
	}
	var b strings.Builder
	b.WriteString("🏷️ <b>Категории:</b>\n\n")
	rows := make([][]models.InlineKeyboardButton, 0, len(categories))
	for _, c := range categories {
		fmt.Fprintf(&b, "#%d %s\n", c.ID, html.EscapeString(c.Name))
		rows = append(rows, []models.InlineKeyboardButton{button("🗑️ "+c.Name, fmt.Sprintf("admcat_del_%d", c.ID))})
	}
	h.edit(ctx, sess, cb, b.String(), inline(rows...))
}

func (h *Handler) onCategoryName(ctx context.Context, sess *session, text string) {
	if !service.ValidateCategoryName(text) {
		h.reply(ctx, sess, "⚠️ Название должно быть от 2 до 100 символов", cancelKeyboard())
		return
	}
	sess.state.Name = strings.TrimSpace(text)
	h.setState(ctx, sess, stateAddCategoryDescription)
	h.reply(ctx, sess, "📝 Введите описание категории или нажмите «Пропустить»:", skipKeyboard())
}

func (h *Handler) onCategoryDescription(ctx context.Context, sess *session, text string) {
	description := ""
	if text != btnSkip {
		description = text
	}
	name := sess.state.Name
	h.resetState(ctx, sess)

	category, err := h.categories.Create(ctx, sess.user.ID, name, description)
	if err != nil {
		h.showMenu(ctx, sess, errorText(err))
		return
	}
	h.showMenu(ctx, sess, fmt.Sprintf("✅ Категория #%d «%s» создана", category.ID, html.EscapeString(category.Name)))
}

func (h *Handler) showLogsMenu(ctx context.Context, sess *session) {
	h.reply(ctx, sess, "📝 <b>Логи</b>", inline(
		[]models.InlineKeyboardButton{button("📝 Последние действия", "logs_recent")},
		[]models.InlineKeyboardButton{button("🧹 Очистить старые", "logs_clear")},
	))
}

func (h *Handler) onLogs(ctx context.Context, sess *session, cb callback, arg string) {
	switch arg {
	case "recent":
		text, err := h.reports.LogReport(ctx)
		if err != nil {
			cb.answer(errorText(err), true)
			return
		}
		h.reply(ctx, sess, text, nil)
	case "clear":
		removed, err := h.logs.Cleanup(ctx, h.cfg.LogRetentionDays)
		if err != nil {
			cb.answer(errorText(err), true)
			return
		}
		if err := h.logs.Record(ctx, service.ActionLogsCleared, sess.user.ID, fmt.Sprintf("Удалено записей: %d", removed)); err != nil {
			h.logger.Warn("Failed to record log cleanup", zap.Error(err))
		}
		cb.answer(fmt.Sprintf("🧹 Удалено записей: %d", removed), true)
	}
}

func (h *Handler) showUsersMenu(ctx context.Context, sess *session) {
	h.reply(ctx, sess, "👥 <b>Пользователи</b>", inline(
		[]models.InlineKeyboardButton{button("📋 Список", "users_list"), button("🎭 Сменить роль", "users_role")},
		[]models.InlineKeyboardButton{button("🚫 Заблокировать", "users_block"), button("✅ Разблокировать", "users_unblock")},
	))
}

func (h *Handler) onUsers(ctx context.Context, sess *session, cb callback, arg string) {
	switch arg {
	case "list":
		users, err := h.users.GetAll(ctx)
		if err != nil {
			cb.answer(errorText(err), true)
			return
		}
		var b strings.Builder
		b.WriteString("👥 <b>Пользователи:</b>\n\n")
		for _, u := range users {
			status := "✅"
			if !u.IsActive {
				status = "🚫"
			}
			fmt.Fprintf(&b, "%s %s (%d) - %s\n", status, html.EscapeString(u.FullName), u.TelegramID, service.FormatUserRole(u.Role))
		}
		h.reply(ctx, sess, b.String(), nil)
	case "role":
		h.startUserForm(ctx, sess, stateChangeRoleUser, "🎭 Введите Telegram ID пользователя:")
	case "block":
		h.startUserForm(ctx, sess, stateBlockUser, "🚫 Введите Telegram ID пользователя для блокировки:")
	case "unblock":
		h.startUserForm(ctx, sess, stateUnblockUser, "✅ Введите Telegram ID пользователя для разблокировки:")
	}
}

func (h *Handler) startUserForm(ctx context.Context, sess *session, state, prompt string) {
	sess.state = &domain.UserState{State: state}
	h.saveState(ctx, sess)
	h.reply(ctx, sess, prompt, cancelKeyboard())
}

// targetUser reads a Telegram ID typed by an admin
func (h *Handler) targetUser(ctx context.Context, sess *session, text string) (*domain.User, bool) {
	telegramID, ok := parseID(strings.TrimSpace(text))
	if !ok {
		h.reply(ctx, sess, "⚠️ Введите Telegram ID цифрами", cancelKeyboard())
		return nil, false
	}
	user, err := h.users.GetByTelegramID(ctx, telegramID)
	if err != nil {
		h.reply(ctx, sess, errorText(err)+". Введите другой ID:", cancelKeyboard())
		return nil, false
	}
	return user, true
}

func (h *Handler) onChangeRoleUser(ctx context.Context, sess *session, text string) {
	target, ok := h.targetUser(ctx, sess, text)
	if !ok {
		return
	}
	sess.state.TargetID = target.TelegramID
	h.setState(ctx, sess, stateChangeRoleRole)

	roles := make([]string, 0, len(domain.Roles))
	for _, r := range domain.Roles {
		roles = append(roles, string(r))
	}
	h.reply(ctx, sess, fmt.Sprintf("👤 %s, текущая роль: %s\n\nВыберите новую роль:",
		html.EscapeString(target.FullName), service.FormatUserRole(target.Role)),
		replyKeyboard(roles[:3], roles[3:], []string{btnCancel}))
}

func (h *Handler) onChangeRoleRole(ctx context.Context, sess *session, text string) {
	role := domain.Role(strings.ToUpper(strings.TrimSpace(text)))
	if !role.Valid() {
		h.reply(ctx, sess, "⚠️ Неизвестная роль, выберите из списка", nil)
		return
	}
	targetID := sess.state.TargetID
	h.resetState(ctx, sess)

	if err := h.users.ChangeRole(ctx, sess.user, targetID, role); err != nil {
		h.showMenu(ctx, sess, errorText(err))
		return
	}
	h.showMenu(ctx, sess, fmt.Sprintf("✅ Роль пользователя %d изменена на %s", targetID, service.FormatUserRole(role)))
	h.send(ctx, sess.s, targetID, fmt.Sprintf("🎭 Ваша роль изменена на %s. Нажмите /start", service.FormatUserRole(role)), nil)
}

func (h *Handler) onBlockUser(ctx context.Context, sess *session, text string) {
	h.setUserActive(ctx, sess, text, false)
}

func (h *Handler) onUnblockUser(ctx context.Context, sess *session, text string) {
	h.setUserActive(ctx, sess, text, true)
}

func (h *Handler) setUserActive(ctx context.Context, sess *session, text string, active bool) {
	target, ok := h.targetUser(ctx, sess, text)
	if !ok {
		return
	}
	h.resetState(ctx, sess)

	var err error
	if active {
		err = h.users.Unblock(ctx, sess.user, target.TelegramID)
	} else {
		err = h.users.Block(ctx, sess.user, target.TelegramID)
	}
	if err != nil {
		h.showMenu(ctx, sess, errorText(err))
		return
	}

	verb := "заблокирован"
	if active {
		verb = "разблокирован"
	}
	h.showMenu(ctx, sess, fmt.Sprintf("✅ Пользователь %s %s", html.EscapeString(target.FullName), verb))
}
