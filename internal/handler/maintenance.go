package handler

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"maxxpharm/internal/domain"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const limiterIdleTTL = time.Hour

// Maintenance trims old logs, cancels forgotten orders and refreshes the low stock gauge.
// Admins get a reminder when something is about to run out.
func (h *Handler) Maintenance(ctx context.Context) error {
	var errs error

	pruned := h.throttle.prune(limiterIdleTTL)

	removed, err := h.logs.Cleanup(ctx, h.cfg.LogRetentionDays)
	errs = multierr.Append(errs, err)

	cancelled, err := h.orders.CancelStaleOrders(ctx, h.cfg.StaleOrderDays)
	errs = multierr.Append(errs, err)

	low, err := h.products.LowStock(ctx, h.reports.LowStockThreshold())
	if err != nil {
		errs = multierr.Append(errs, err)
	} else {
		h.metrics.SetLowStock(len(low))
		if len(low) > 0 {
			h.alertLowStock(ctx, low)
		}
	}

	h.logger.Info("Maintenance finished",
		zap.Int64("logs_removed", removed),
		zap.Int("orders_cancelled", cancelled),
		zap.Int("low_stock", len(low)),
		zap.Int("limiters_pruned", pruned),
		zap.Error(errs))
	return errs
}

func (h *Handler) alertLowStock(ctx context.Context, low []domain.Product) {
	if h.bot == nil {
		return
	}

	var b strings.Builder
	b.WriteString("⚠️ <b>Заканчиваются товары:</b>\n\n")
	for _, p := range low {
		fmt.Fprintf(&b, "• %s - %d шт.\n", html.EscapeString(p.Name), p.StockQuantity)
	}
	text := b.String()

	for _, role := range []domain.Role{domain.RoleAdmin, domain.RoleSuperAdmin} {
		admins, err := h.users.GetByRole(ctx, role)
		if err != nil {
			h.logger.Warn("Failed to load admins", zap.String("role", string(role)), zap.Error(err))
			continue
		}
		for _, u := range admins {
			if u.IsActive {
				h.send(ctx, h.bot, u.TelegramID, text, nil)
			}
		}
	}
}
