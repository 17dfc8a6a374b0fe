package handler

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"maxxpharm/config"
	"maxxpharm/internal/domain"
	"maxxpharm/internal/metrics"
	"maxxpharm/internal/service"
	"maxxpharm/traits/database"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	adminID  int64 = 1
	clientID int64 = 100
)

type fakeSender struct {
	messages  []*bot.SendMessageParams
	edits     []*bot.EditMessageTextParams
	answers   []*bot.AnswerCallbackQueryParams
	documents []*bot.SendDocumentParams
}

func (f *fakeSender) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	f.messages = append(f.messages, params)
	return &models.Message{ID: len(f.messages)}, nil
}

func (f *fakeSender) EditMessageText(_ context.Context, params *bot.EditMessageTextParams) (*models.Message, error) {
	f.edits = append(f.edits, params)
	return &models.Message{ID: params.MessageID}, nil
}

func (f *fakeSender) AnswerCallbackQuery(_ context.Context, params *bot.AnswerCallbackQueryParams) (bool, error) {
	f.answers = append(f.answers, params)
	return true, nil
}

func (f *fakeSender) SendDocument(_ context.Context, params *bot.SendDocumentParams) (*models.Message, error) {
	f.documents = append(f.documents, params)
	return &models.Message{}, nil
}

func (f *fakeSender) lastMessage(t *testing.T) *bot.SendMessageParams {
	t.Helper()
	require.NotEmpty(t, f.messages)
	return f.messages[len(f.messages)-1]
}

func (f *fakeSender) lastAnswer(t *testing.T) *bot.AnswerCallbackQueryParams {
	t.Helper()
	require.NotEmpty(t, f.answers)
	return f.answers[len(f.answers)-1]
}

func (f *fakeSender) messagesTo(chatID int64) []string {
	var texts []string
	for _, m := range f.messages {
		if m.ChatID == chatID {
			texts = append(texts, m.Text)
		}
	}
	return texts
}

type testEnv struct {
	h        *Handler
	sender   *fakeSender
	registry *prometheus.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Prepare(db))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := &config.Config{
		Port:               ":0",
		PhotoDir:           t.TempDir(),
		AdminTelegramID:    adminID,
		AdminAPIToken:      "secret",
		LowStockThreshold:  5,
		LogRetentionDays:   90,
		StaleOrderDays:     3,
		RateLimitPerSecond: 100,
	}
	registry := prometheus.NewRegistry()
	h := NewHandler(cfg, zap.NewNop(), db, rdb, metrics.NewCollectorWithRegistry(registry))
	sender := &fakeSender{}
	h.SetBot(sender)
	return &testEnv{h: h, sender: sender, registry: registry}
}

func (e *testEnv) message(telegramID int64, text string) {
	e.h.HandleUpdate(context.Background(), e.sender, &models.Update{Message: &models.Message{
		ID:   1,
		From: &models.User{ID: telegramID, FirstName: "Тест"},
		Chat: models.Chat{ID: telegramID},
		Text: text,
	}})
}

func (e *testEnv) press(telegramID int64, data string) {
	e.h.HandleUpdate(context.Background(), e.sender, &models.Update{CallbackQuery: &models.CallbackQuery{
		ID:   "cb",
		From: models.User{ID: telegramID, FirstName: "Тест"},
		Data: data,
		Message: models.MaybeInaccessibleMessage{
			Message: &models.Message{ID: 42, Chat: models.Chat{ID: telegramID}},
		},
	}})
}

func (e *testEnv) user(t *testing.T, telegramID int64) *domain.User {
	t.Helper()
	u, err := e.h.users.GetByTelegramID(context.Background(), telegramID)
	require.NoError(t, err)
	return u
}

func (e *testEnv) state(t *testing.T, telegramID int64) string {
	t.Helper()
	s, err := e.h.redisRepo.GetUserState(context.Background(), telegramID)
	require.NoError(t, err)
	if s == nil {
		return stateStart
	}
	return s.State
}

func (e *testEnv) product(t *testing.T, name, price string, stock int) *domain.Product {
	t.Helper()
	ctx := context.Background()
	category, err := e.h.categories.GetByName(ctx, "Лекарства")
	if err != nil {
		category, err = e.h.categories.Create(ctx, 0, "Лекарства", "")
		require.NoError(t, err)
	}
	p := &domain.Product{
		Name:          name,
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
		CategoryID:    category.ID,
	}
	require.NoError(t, e.h.products.Create(ctx, 0, p))
	return p
}

func (e *testEnv) order(t *testing.T, telegramID int64, lines ...domain.CartLine) *domain.Order {
	t.Helper()
	order, err := e.h.orders.CreateOrderFromCart(context.Background(), e.user(t, telegramID).ID, lines,
		"г. Ташкент, ул. Навои 1", "+998901234567", "")
	require.NoError(t, err)
	return order
}

func TestStartRegistersClient(t *testing.T) {
	e := newTestEnv(t)

	e.message(clientID, "/start")

	u := e.user(t, clientID)
	assert.Equal(t, domain.RoleClient, u.Role)
	last := e.sender.lastMessage(t)
	assert.Contains(t, last.Text, "Maxxpharm")
	assert.Equal(t, models.ParseModeHTML, last.ParseMode)
	assert.IsType(t, &models.ReplyKeyboardMarkup{}, last.ReplyMarkup)
}

func TestStartPromotesConfiguredAdmin(t *testing.T) {
	e := newTestEnv(t)

	e.message(adminID, "/start")

	assert.Equal(t, domain.RoleSuperAdmin, e.user(t, adminID).Role)
}

func TestClientCannotOpenAdminMenu(t *testing.T) {
	e := newTestEnv(t)
	e.message(clientID, "/start")

	e.message(clientID, btnStats)
	assert.Equal(t, "⛔ Недостаточно прав", e.sender.lastMessage(t).Text)

	e.press(clientID, "wh_export")
	assert.Equal(t, "⛔ Недостаточно прав", e.sender.lastAnswer(t).Text)
	assert.Empty(t, e.sender.documents)
}

func TestBlockedUserIsRejected(t *testing.T) {
	e := newTestEnv(t)
	e.message(adminID, "/start")
	e.message(clientID, "/start")
	require.NoError(t, e.h.users.Block(context.Background(), e.user(t, adminID), clientID))

	e.message(clientID, btnCatalog)

	assert.Contains(t, e.sender.lastMessage(t).Text, "заблокирован")
}

func TestCatalogShowsCategories(t *testing.T) {
	e := newTestEnv(t)
	e.product(t, "Парацетамол", "25.50", 10)
	e.message(clientID, "/start")

	e.press(clientID, "catalog")

	require.NotEmpty(t, e.sender.edits)
	edit := e.sender.edits[len(e.sender.edits)-1]
	assert.Contains(t, edit.Text, "Каталог")
	markup, ok := edit.ReplyMarkup.(*models.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, markup.InlineKeyboard, 1)
	assert.True(t, strings.HasPrefix(markup.InlineKeyboard[0][0].CallbackData, "browse_"))
}

func TestAddToCartRespectsStock(t *testing.T) {
	e := newTestEnv(t)
	p := e.product(t, "Парацетамол", "25.50", 3)
	e.message(clientID, "/start")

	e.press(clientID, fmt.Sprintf("addcart_%d_2", p.ID))
	e.press(clientID, fmt.Sprintf("addcart_%d_2", p.ID))

	assert.Contains(t, e.sender.lastAnswer(t).Text, "В наличии только 3 шт.")
	cart, err := e.h.redisRepo.GetCart(context.Background(), clientID)
	require.NoError(t, err)
	assert.Equal(t, []domain.CartLine{{ProductID: p.ID, Quantity: 2}}, cart)
}

func TestAddToCartCapsQuantity(t *testing.T) {
	e := newTestEnv(t)
	p := e.product(t, "Бинт", "3", 5000)
	e.message(clientID, "/start")

	e.press(clientID, fmt.Sprintf("addcart_%d_%d", p.ID, service.MaxQuantity))
	e.press(clientID, fmt.Sprintf("addcart_%d_1", p.ID))

	assert.Contains(t, e.sender.lastAnswer(t).Text, fmt.Sprintf("Не больше %d шт.", service.MaxQuantity))
	cart, err := e.h.redisRepo.GetCart(context.Background(), clientID)
	require.NoError(t, err)
	assert.Equal(t, []domain.CartLine{{ProductID: p.ID, Quantity: service.MaxQuantity}}, cart)
}

func TestCheckoutCreatesOrder(t *testing.T) {
	e := newTestEnv(t)
	p := e.product(t, "Парацетамол", "25.50", 10)
	e.message(adminID, "/start")
	e.message(clientID, "/start")

	e.press(clientID, fmt.Sprintf("addcart_%d_2", p.ID))
	e.press(clientID, "cart_checkout")
	assert.Equal(t, stateCheckoutPhone, e.state(t, clientID))

	e.message(clientID, "+998 90 123 45 67")
	assert.Equal(t, stateCheckoutAddress, e.state(t, clientID))
	e.message(clientID, "г. Ташкент, ул. Навои 1")
	assert.Equal(t, stateCheckoutComment, e.state(t, clientID))
	e.message(clientID, btnSkip)
	assert.Equal(t, stateCheckoutConfirm, e.state(t, clientID))

	e.press(clientID, "checkout_confirm")

	client := e.user(t, clientID)
	assert.Equal(t, "+998 90 123 45 67", client.Phone)
	orders, err := e.h.orders.GetUserOrders(context.Background(), client.ID, 0)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, domain.StatusNew, orders[0].Status)
	assert.Equal(t, "51", orders[0].TotalAmount.String())
	assert.Equal(t, "г. Ташкент, ул. Навои 1", orders[0].DeliveryAddress)

	cart, err := e.h.redisRepo.GetCart(context.Background(), clientID)
	require.NoError(t, err)
	assert.Empty(t, cart)
	assert.Equal(t, stateStart, e.state(t, clientID))

	adminTexts := e.sender.messagesTo(adminID)
	require.NotEmpty(t, adminTexts)
	assert.Contains(t, adminTexts[len(adminTexts)-1], "Новый заказ")
}

func TestCheckoutWithEmptyCart(t *testing.T) {
	e := newTestEnv(t)
	e.message(clientID, "/start")

	e.press(clientID, "cart_checkout")

	assert.Equal(t, "🛒 Корзина пуста", e.sender.lastAnswer(t).Text)
	assert.Equal(t, stateStart, e.state(t, clientID))
}

func TestCancelCommandResetsForm(t *testing.T) {
	e := newTestEnv(t)
	e.message(clientID, "/start")
	e.message(clientID, btnSearch)
	assert.Equal(t, stateSearch, e.state(t, clientID))

	e.message(clientID, "/cancel")

	assert.Equal(t, stateStart, e.state(t, clientID))
}

func TestManagerOrderActions(t *testing.T) {
	e := newTestEnv(t)
	p := e.product(t, "Парацетамол", "25.50", 10)
	e.message(adminID, "/start")
	e.message(clientID, "/start")
	order := e.order(t, clientID, domain.CartLine{ProductID: p.ID, Quantity: 4})

	e.press(adminID, fmt.Sprintf("order_confirm_%d_%d", order.ID, order.Version))

	confirmed, err := e.h.orders.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, confirmed.Status)
	stored, err := e.h.products.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, stored.StockQuantity)
	assert.NotEmpty(t, e.sender.messagesTo(clientID), "client is notified")

	// same button pressed again with the version it was rendered with
	e.press(adminID, fmt.Sprintf("order_work_%d_%d", order.ID, order.Version))

	answer := e.sender.lastAnswer(t)
	assert.Equal(t, errorText(service.ErrConcurrentUpdate), answer.Text)
	assert.True(t, answer.ShowAlert)
	unchanged, err := e.h.orders.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, unchanged.Status)
}

func TestClientCannotRunOrderActions(t *testing.T) {
	e := newTestEnv(t)
	p := e.product(t, "Парацетамол", "25.50", 10)
	e.message(clientID, "/start")
	order := e.order(t, clientID, domain.CartLine{ProductID: p.ID, Quantity: 1})

	e.press(clientID, fmt.Sprintf("order_confirm_%d_%d", order.ID, order.Version))

	assert.Equal(t, "⛔ Недостаточно прав", e.sender.lastAnswer(t).Text)
	stored, err := e.h.orders.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNew, stored.Status)
}

func TestAdminCreatesCategory(t *testing.T) {
	e := newTestEnv(t)
	e.message(adminID, "/start")

	e.press(adminID, "admcat_add")
	assert.Equal(t, stateAddCategoryName, e.state(t, adminID))
	e.message(adminID, "Витамины")
	e.message(adminID, btnSkip)

	category, err := e.h.categories.GetByName(context.Background(), "Витамины")
	require.NoError(t, err)
	assert.True(t, category.IsActive)
	assert.Contains(t, e.sender.lastMessage(t).Text, "создана")
}

func TestAdminCreatesProduct(t *testing.T) {
	e := newTestEnv(t)
	existing := e.product(t, "Аспирин", "10", 1)
	e.message(adminID, "/start")

	e.press(adminID, "admprod_add")
	e.message(adminID, "Ибупрофен")
	e.message(adminID, "99,90")
	e.message(adminID, "15")
	e.message(adminID, fmt.Sprint(existing.CategoryID))
	e.message(adminID, "Обезболивающее")

	p, err := e.h.products.GetByName(context.Background(), "Ибупрофен")
	require.NoError(t, err)
	assert.Equal(t, "99.9", p.Price.String())
	assert.Equal(t, 15, p.StockQuantity)
	assert.Equal(t, "Обезболивающее", p.Description)
	assert.Equal(t, stateStart, e.state(t, adminID))
}

func TestAdminReplenishesStock(t *testing.T) {
	e := newTestEnv(t)
	p := e.product(t, "Аспирин", "10", 1)
	e.message(adminID, "/start")

	e.press(adminID, "wh_replenish")
	e.message(adminID, fmt.Sprint(p.ID))
	e.message(adminID, "abc")
	assert.Equal(t, stateReplenishQuantity, e.state(t, adminID))
	e.message(adminID, "20")

	stored, err := e.h.products.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 21, stored.StockQuantity)
}

func TestSuperAdminChangesRole(t *testing.T) {
	e := newTestEnv(t)
	e.message(adminID, "/start")
	e.message(clientID, "/start")

	e.press(adminID, "users_role")
	e.message(adminID, fmt.Sprint(clientID))
	e.message(adminID, "courier")

	assert.Equal(t, domain.RoleCourier, e.user(t, clientID).Role)
	texts := e.sender.messagesTo(clientID)
	assert.Contains(t, texts[len(texts)-1], "Ваша роль изменена")
}

func TestExportStockSendsDocument(t *testing.T) {
	e := newTestEnv(t)
	e.product(t, "Аспирин", "10", 1)
	e.message(adminID, "/start")

	e.press(adminID, "wh_export")

	require.Len(t, e.sender.documents, 1)
	upload, ok := e.sender.documents[0].Document.(*models.InputFileUpload)
	require.True(t, ok)
	assert.True(t, strings.HasSuffix(upload.Filename, ".xlsx"))
	assert.Equal(t, adminID, e.sender.documents[0].ChatID)
}

func TestMaintenanceAlertsAboutLowStock(t *testing.T) {
	e := newTestEnv(t)
	e.product(t, "Аспирин", "10", 2)
	e.product(t, "Парацетамол", "25.50", 50)
	e.message(adminID, "/start")

	require.NoError(t, e.h.Maintenance(context.Background()))

	expected := `
# HELP low_stock_products Number of active products at or below the low stock threshold
# TYPE low_stock_products gauge
low_stock_products 1
`
	assert.NoError(t, testutil.GatherAndCompare(e.registry, strings.NewReader(expected), "low_stock_products"))
	texts := e.sender.messagesTo(adminID)
	require.NotEmpty(t, texts)
	assert.Contains(t, texts[len(texts)-1], "Аспирин")
	assert.NotContains(t, texts[len(texts)-1], "Парацетамол")
}

func TestAdminSeesAllOrders(t *testing.T) {
	e := newTestEnv(t)
	p := e.product(t, "Парацетамол", "25.50", 10)
	e.message(adminID, "/start")
	e.message(clientID, "/start")

	e.message(adminID, btnAllOrders)
	assert.Equal(t, "📭 Заказов пока нет", e.sender.lastMessage(t).Text)

	first := e.order(t, clientID, domain.CartLine{ProductID: p.ID, Quantity: 1})
	second := e.order(t, clientID, domain.CartLine{ProductID: p.ID, Quantity: 2})
	_, err := e.h.orders.ConfirmOrder(context.Background(), first.ID, 0)
	require.NoError(t, err)

	e.message(adminID, btnAllOrders)

	text := e.sender.lastMessage(t).Text
	assert.Contains(t, text, "Все заказы")
	firstAt := strings.Index(text, fmt.Sprintf("Заказ #%d\n", first.ID))
	secondAt := strings.Index(text, fmt.Sprintf("Заказ #%d\n", second.ID))
	require.NotEqual(t, -1, firstAt)
	require.NotEqual(t, -1, secondAt)
	assert.Less(t, secondAt, firstAt, "newest order first")

	e.message(clientID, btnAllOrders)
	assert.Equal(t, "⛔ Недостаточно прав", e.sender.lastMessage(t).Text)
}
