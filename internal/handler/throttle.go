package handler

import (
	"context"
	"sync"
	"time"

	"maxxpharm/internal/metrics"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"golang.org/x/time/rate"
)

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// throttle keeps one token bucket per Telegram user
type throttle struct {
	mu       sync.Mutex
	limiters map[int64]*userLimiter
	limit    rate.Limit
	burst    int
	metrics  *metrics.Collector
}

func newThrottle(perSecond float64, collector *metrics.Collector) *throttle {
	if perSecond <= 0 {
		perSecond = 2
	}
	burst := int(perSecond * 3)
	if burst < 3 {
		burst = 3
	}
	return &throttle{
		limiters: make(map[int64]*userLimiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		metrics:  collector,
	}
}

func (t *throttle) allow(userID int64) bool {
	t.mu.Lock()
	entry, ok := t.limiters[userID]
	if !ok {
		entry = &userLimiter{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.limiters[userID] = entry
	}
	entry.lastSeen = time.Now()
	limiter := entry.limiter
	t.mu.Unlock()

	if limiter.Allow() {
		return true
	}
	t.metrics.IncThrottled()
	return false
}

// prune forgets users silent for longer than idle. A forgotten user starts again with a full bucket.
func (t *throttle) prune(idle time.Duration) int {
	cutoff := time.Now().Add(-idle)

	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for userID, entry := range t.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(t.limiters, userID)
			removed++
		}
	}
	return removed
}

func updateSender(update *models.Update) int64 {
	switch {
	case update.Message != nil && update.Message.From != nil:
		return update.Message.From.ID
	case update.CallbackQuery != nil:
		return update.CallbackQuery.From.ID
	}
	return 0
}

// Throttle drops updates of users who send faster than the configured rate
func (h *Handler) Throttle(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		if userID := updateSender(update); userID != 0 && !h.throttle.allow(userID) {
			h.logger.Debug("Update throttled")
			return
		}
		next(ctx, b, update)
	}
}
