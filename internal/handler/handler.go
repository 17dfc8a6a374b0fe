package handler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"maxxpharm/config"
	"maxxpharm/internal/domain"
	"maxxpharm/internal/metrics"
	"maxxpharm/internal/repository"
	"maxxpharm/internal/service"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Sender is the part of the Telegram API the handlers talk to. *bot.Bot implements it.
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
	SendDocument(ctx context.Context, params *bot.SendDocumentParams) (*models.Message, error)
}

type Handler struct {
	cfg        *config.Config
	logger     *zap.Logger
	db         *sql.DB
	bot        Sender
	auth       *service.AuthService
	users      *service.UserService
	categories *service.CategoryService
	products   *service.ProductService
	orders     *service.OrderService
	logs       *service.LogService
	reports    *service.ReportService
	redisRepo  *repository.RedisRepository
	metrics    *metrics.Collector
	throttle   *throttle
}

func NewHandler(cfg *config.Config, zapLogger *zap.Logger, db *sql.DB, rdb *redis.Client, collector *metrics.Collector) *Handler {
	return &Handler{
		cfg:        cfg,
		logger:     zapLogger,
		db:         db,
		auth:       service.NewAuthService(db, cfg.AdminTelegramID, zapLogger),
		users:      service.NewUserService(db, zapLogger),
		categories: service.NewCategoryService(db),
		products:   service.NewProductService(db),
		orders:     service.NewOrderService(db, collector, zapLogger),
		logs:       service.NewLogService(db, zapLogger),
		reports:    service.NewReportService(db, cfg.LowStockThreshold),
		redisRepo:  repository.NewRedisRepository(rdb),
		metrics:    collector,
		throttle:   newThrottle(cfg.RateLimitPerSecond, collector),
	}
}

// SetBot sets the sender used outside of update handling (notifications, alerts)
func (h *Handler) SetBot(s Sender) {
	h.bot = s
}

func (h *Handler) DefaultHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.HandleUpdate(ctx, b, update)
}

// session is everything a handler needs to answer one user
type session struct {
	s      Sender
	chatID int64
	user   *domain.User
	state  *domain.UserState
}

func (h *Handler) HandleUpdate(ctx context.Context, s Sender, update *models.Update) {
	kind := "other"
	switch {
	case update.Message != nil:
		kind = "message"
	case update.CallbackQuery != nil:
		kind = "callback"
	}
	start := time.Now()
	h.metrics.IncUpdate(kind)
	defer func() { h.metrics.ObserveUpdate(kind, time.Since(start)) }()

	switch kind {
	case "message":
		h.handleMessage(ctx, s, update.Message)
	case "callback":
		h.handleCallback(ctx, s, update.CallbackQuery)
	}
}

func displayName(u *models.User) string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// currentUser loads the Telegram user, registering them on first contact.
// A full login is recorded only for /start.
func (h *Handler) currentUser(ctx context.Context, from *models.User, login bool) (*domain.User, error) {
	if !login {
		user, err := h.users.GetByTelegramID(ctx, from.ID)
		if err == nil {
			if !user.IsActive {
				return nil, service.ErrUserBlocked
			}
			return user, nil
		}
		if !errors.Is(err, service.ErrUserNotFound) {
			return nil, err
		}
	}
	return h.auth.Authenticate(ctx, from.ID, displayName(from), from.Username)
}

func (h *Handler) handleMessage(ctx context.Context, s Sender, msg *models.Message) {
	if msg.From == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)

	user, err := h.currentUser(ctx, msg.From, text == "/start")
	if errors.Is(err, service.ErrUserBlocked) {
		h.send(ctx, s, msg.Chat.ID, "🚫 Ваш аккаунт заблокирован. Обратитесь в поддержку.", nil)
		return
	}
	if err != nil {
		h.logger.Error("Failed to load user", zap.Int64("telegram_id", msg.From.ID), zap.Error(err))
		h.send(ctx, s, msg.Chat.ID, "❌ Произошла ошибка. Попробуйте позже.", nil)
		return
	}

	sess := &session{s: s, chatID: msg.Chat.ID, user: user, state: h.getOrCreateUserState(ctx, user.TelegramID)}

	switch text {
	case "/start":
		h.handleStart(ctx, sess)
		return
	case "/help":
		h.handleHelp(ctx, sess)
		return
	case "/cancel", btnCancel, btnBack:
		h.resetState(ctx, sess)
		h.showMenu(ctx, sess, "🏠 Главное меню")
		return
	}

	if sess.state.State != stateStart {
		phone := ""
		if msg.Contact != nil {
			phone = msg.Contact.PhoneNumber
		}
		h.handleStateInput(ctx, sess, text, phone)
		return
	}

	if route, ok := menuRoutes[text]; ok {
		if !service.CheckPermission(user, route.role) {
			h.send(ctx, s, sess.chatID, "⛔ Недостаточно прав", nil)
			return
		}
		route.handle(h, ctx, sess)
		return
	}

	h.send(ctx, s, sess.chatID, "🤔 Не понимаю команду. Воспользуйтесь меню или /help", menuKeyboard(user))
}

func (h *Handler) handleCallback(ctx context.Context, s Sender, cq *models.CallbackQuery) {
	answered := false
	answer := func(text string, alert bool) {
		if answered {
			return
		}
		answered = true
		if _, err := s.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
			CallbackQueryID: cq.ID,
			Text:            text,
			ShowAlert:       alert,
		}); err != nil {
			h.logger.Warn("Failed to answer callback", zap.Error(err))
		}
	}
	defer answer("", false)

	if cq.Message.Message == nil {
		answer("⌛ Сообщение устарело", false)
		return
	}
	chatID := cq.Message.Message.Chat.ID

	user, err := h.currentUser(ctx, &cq.From, false)
	if errors.Is(err, service.ErrUserBlocked) {
		answer("🚫 Ваш аккаунт заблокирован", true)
		return
	}
	if err != nil {
		h.logger.Error("Failed to load user", zap.Int64("telegram_id", cq.From.ID), zap.Error(err))
		answer("❌ Ошибка", true)
		return
	}

	sess := &session{s: s, chatID: chatID, user: user, state: h.getOrCreateUserState(ctx, user.TelegramID)}
	cb := callback{data: cq.Data, messageID: cq.Message.Message.ID, answer: answer}
	h.routeCallback(ctx, sess, cb)
}

// callback carries one inline button press
type callback struct {
	data      string
	messageID int
	answer    func(text string, alert bool)
}

func (h *Handler) routeCallback(ctx context.Context, sess *session, cb callback) {
	for _, route := range callbackRoutes {
		if !strings.HasPrefix(cb.data, route.prefix) {
			continue
		}
		if !service.CheckPermission(sess.user, route.role) {
			cb.answer("⛔ Недостаточно прав", true)
			return
		}
		route.handle(h, ctx, sess, cb, strings.TrimPrefix(cb.data, route.prefix))
		return
	}
	h.logger.Warn("Unknown callback", zap.String("data", cb.data))
}

// getOrCreateUserState falls back to a fresh state when Redis is unavailable
func (h *Handler) getOrCreateUserState(ctx context.Context, userID int64) *domain.UserState {
	state, err := h.redisRepo.GetUserState(ctx, userID)
	if err != nil {
		h.logger.Warn("Failed to get user state, starting over", zap.Int64("user_id", userID), zap.Error(err))
	}
	if state == nil || state.State == "" {
		state = &domain.UserState{State: stateStart}
	}
	return state
}

func (h *Handler) saveState(ctx context.Context, sess *session) {
	if err := h.redisRepo.SaveUserState(ctx, sess.user.TelegramID, sess.state); err != nil {
		h.logger.Error("Failed to save user state", zap.Int64("user_id", sess.user.TelegramID), zap.Error(err))
	}
}

func (h *Handler) setState(ctx context.Context, sess *session, state string) {
	sess.state.State = state
	h.saveState(ctx, sess)
}

func (h *Handler) resetState(ctx context.Context, sess *session) {
	sess.state = &domain.UserState{State: stateStart}
	if err := h.redisRepo.DeleteUserState(ctx, sess.user.TelegramID); err != nil {
		h.logger.Warn("Failed to delete user state", zap.Int64("user_id", sess.user.TelegramID), zap.Error(err))
	}
}

func (h *Handler) send(ctx context.Context, s Sender, chatID int64, text string, markup models.ReplyMarkup) {
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}
	if markup != nil {
		params.ReplyMarkup = markup
	}
	if _, err := s.SendMessage(ctx, params); err != nil {
		h.logger.Error("Failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (h *Handler) reply(ctx context.Context, sess *session, text string, markup models.ReplyMarkup) {
	h.send(ctx, sess.s, sess.chatID, text, markup)
}

// edit replaces the text of the message the button belongs to
func (h *Handler) edit(ctx context.Context, sess *session, cb callback, text string, markup models.ReplyMarkup) {
	params := &bot.EditMessageTextParams{
		ChatID:    sess.chatID,
		MessageID: cb.messageID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}
	if markup != nil {
		params.ReplyMarkup = markup
	}
	if _, err := sess.s.EditMessageText(ctx, params); err != nil {
		h.logger.Warn("Failed to edit message", zap.Int64("chat_id", sess.chatID), zap.Error(err))
	}
}

// fail reports a service error to the user in plain words
func (h *Handler) fail(ctx context.Context, sess *session, err error) {
	h.reply(ctx, sess, errorText(err), nil)
}

func errorText(err error) string {
	var verr service.ValidationError
	switch {
	case errors.As(err, &verr):
		return "⚠️ Неверные данные: " + verr.Message
	case errors.Is(err, service.ErrInsufficientStock):
		return "❌ Недостаточно товара на складе"
	case errors.Is(err, service.ErrConcurrentUpdate):
		return "🔄 Заказ уже изменен другим сотрудником. Обновите список."
	case errors.Is(err, service.ErrInvalidTransition):
		return "⛔ Это действие недоступно для текущего статуса заказа"
	case errors.Is(err, service.ErrOrderNotFound):
		return "❌ Заказ не найден"
	case errors.Is(err, service.ErrProductNotFound):
		return "❌ Товар не найден"
	case errors.Is(err, service.ErrCategoryNotFound):
		return "❌ Категория не найдена"
	case errors.Is(err, service.ErrCategoryExists):
		return "⚠️ Такая категория уже существует"
	case errors.Is(err, service.ErrUserNotFound):
		return "❌ Пользователь не найден"
	case errors.Is(err, service.ErrEmptyOrder):
		return "🛒 Заказ пуст"
	case errors.Is(err, service.ErrOrderNotEditable):
		return "⛔ Заказ уже нельзя изменить"
	case errors.Is(err, service.ErrNotOrderOwner):
		return "⛔ Это не ваш заказ"
	case errors.Is(err, service.ErrPermissionDenied):
		return "⛔ Недостаточно прав"
	case errors.Is(err, service.ErrInvalidRole):
		return "⚠️ Неизвестная роль"
	default:
		return "❌ Произошла ошибка. Попробуйте позже."
	}
}

// notifyClient tells the customer about a change of their order
func (h *Handler) notifyClient(ctx context.Context, s Sender, order *domain.Order) {
	if order.CustomerTelegramID == 0 {
		return
	}
	text := fmt.Sprintf("📦 Статус вашего заказа #%d изменен:\n%s", order.ID, service.FormatOrderStatus(order.Status))
	h.send(ctx, s, order.CustomerTelegramID, text, nil)
}
