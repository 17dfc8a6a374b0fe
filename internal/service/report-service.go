package service

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"html"
	"sort"
	"strings"

	"maxxpharm/internal/domain"
	"maxxpharm/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	topStockValueCount = 10
	topPricedCount     = 5
	reportListLimit    = 20
)

// ReportService builds the admin statistics screens as Telegram HTML
type ReportService struct {
	products          *repository.ProductRepository
	orders            *repository.OrderRepository
	logs              *repository.LogRepository
	stats             *repository.StatsRepository
	lowStockThreshold int
}

func NewReportService(db *sql.DB, lowStockThreshold int) *ReportService {
	if lowStockThreshold <= 0 {
		lowStockThreshold = DefaultLowStockThreshold
	}
	return &ReportService{
		products:          repository.NewProductRepository(db),
		orders:            repository.NewOrderRepository(db),
		logs:              repository.NewLogRepository(db),
		stats:             repository.NewStatsRepository(db),
		lowStockThreshold: lowStockThreshold,
	}
}

func (s *ReportService) LowStockThreshold() int {
	return s.lowStockThreshold
}

func (s *ReportService) OrderStatistics(ctx context.Context) (string, error) {
	counts, err := s.orders.CountByStatus(ctx)
	if err != nil {
		return "", err
	}

	stats := make(domain.OrderStats, len(domain.OrderStatuses))
	for _, status := range domain.OrderStatuses {
		stats[status] = counts[status]
	}

	var b strings.Builder
	b.WriteString("📊 <b>Статистика заказов:</b>\n\n")
	fmt.Fprintf(&b, "📦 Всего заказов: %d\n\n", stats.Total())
	for _, status := range domain.OrderStatuses {
		fmt.Fprintf(&b, "%s: %d\n", FormatOrderStatus(status), stats[status])
	}
	return b.String(), nil
}

func (s *ReportService) CurrentStock(ctx context.Context) (string, error) {
	products, err := s.products.GetAll(ctx)
	if err != nil {
		return "", err
	}
	if len(products) == 0 {
		return "📭 Товары отсутствуют", nil
	}

	totalStock := 0
	var low []domain.Product
	outOfStock := 0
	for _, p := range products {
		totalStock += p.StockQuantity
		if p.StockQuantity <= s.lowStockThreshold {
			low = append(low, p)
		}
		if p.StockQuantity == 0 {
			outOfStock++
		}
	}

	var b strings.Builder
	b.WriteString("📦 <b>Текущие остатки на складе:</b>\n\n")
	fmt.Fprintf(&b, "📊 Всего товаров: %d\n", len(products))
	fmt.Fprintf(&b, "📦 Общий остаток: %d шт.\n", totalStock)
	fmt.Fprintf(&b, "⚠️ Мало товара: %d\n", len(low))
	fmt.Fprintf(&b, "❌ Нет в наличии: %d\n", outOfStock)

	if len(low) > 0 {
		b.WriteString("\n📦 <b>Товары с низким остатком:</b>\n")
		for i, p := range low {
			if i == topStockValueCount {
				break
			}
			fmt.Fprintf(&b, "• %s: %d шт.\n", html.EscapeString(p.Name), p.StockQuantity)
		}
	}
	return b.String(), nil
}

func (s *ReportService) LowStock(ctx context.Context) (string, error) {
	products, err := s.products.LowStock(ctx, s.lowStockThreshold)
	if err != nil {
		return "", err
	}
	if len(products) == 0 {
		return "✅ Все товары в наличии", nil
	}

	var b strings.Builder
	b.WriteString("⚠️ <b>Товары с низким остатком:</b>\n\n")
	for _, p := range products {
		mark := "⚠️"
		if p.StockQuantity == 0 {
			mark = "❌"
		}
		fmt.Fprintf(&b, "%s %s (#%d)\n", mark, html.EscapeString(p.Name), p.ID)
		fmt.Fprintf(&b, "   📦 Остаток: %d шт.\n", p.StockQuantity)
		fmt.Fprintf(&b, "   💰 Цена: %s\n\n", FormatPrice(p.Price))
	}
	return b.String(), nil
}

// StockReport values the warehouse and lists the most valuable positions
func (s *ReportService) StockReport(ctx context.Context) (string, error) {
	products, err := s.products.GetAll(ctx)
	if err != nil {
		return "", err
	}
	if len(products) == 0 {
		return "📭 Товары отсутствуют", nil
	}

	totalValue := decimal.Zero
	totalStock := 0
	for _, p := range products {
		totalValue = totalValue.Add(p.StockValue())
		totalStock += p.StockQuantity
	}
	average := decimal.Zero
	if totalStock > 0 {
		average = totalValue.Div(decimal.NewFromInt(int64(totalStock)))
	}

	sorted := append([]domain.Product(nil), products...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StockValue().GreaterThan(sorted[j].StockValue())
	})
	if len(sorted) > topStockValueCount {
		sorted = sorted[:topStockValueCount]
	}

	var b strings.Builder
	b.WriteString("📈 <b>Отчет по складу:</b>\n\n")
	fmt.Fprintf(&b, "📊 Всего товаров: %d\n", len(products))
	fmt.Fprintf(&b, "📦 Общий остаток: %d шт.\n", totalStock)
	fmt.Fprintf(&b, "💰 Общая стоимость: %s\n", FormatAmount(totalValue))
	fmt.Fprintf(&b, "💸 Средняя цена за единицу: %s\n\n", FormatAmount(average))
	b.WriteString("💰 <b>Топ-10 товаров по стоимости:</b>\n")
	for i, p := range sorted {
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, html.EscapeString(p.Name), FormatAmount(p.StockValue()))
	}
	return b.String(), nil
}

func (s *ReportService) GeneralStatistics(ctx context.Context) (string, error) {
	totals, err := s.stats.Totals(ctx)
	if err != nil {
		return "", err
	}
	roles, err := s.stats.UsersByRole(ctx)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("📊 <b>Общая статистика:</b>\n\n")
	fmt.Fprintf(&b, "👥 Всего пользователей: %d\n", totals.Users)
	fmt.Fprintf(&b, "🧾 Всего товаров: %d\n", totals.Products)
	fmt.Fprintf(&b, "🏷 Всего категорий: %d\n", totals.Categories)
	fmt.Fprintf(&b, "📦 Всего заказов: %d\n\n", totals.Orders)
	b.WriteString("👥 <b>Пользователи по ролям:</b>\n")
	for _, rc := range roles {
		fmt.Fprintf(&b, "• %s: %d\n", FormatUserRole(rc.Role), rc.Count)
	}
	return b.String(), nil
}

// FinancialStatistics reports revenue of completed orders and the completion rate
func (s *ReportService) FinancialStatistics(ctx context.Context) (string, error) {
	totals, err := s.stats.Totals(ctx)
	if err != nil {
		return "", err
	}
	if totals.Orders == 0 {
		return "📭 Заказов пока нет", nil
	}
	revenue, err := s.stats.Revenue(ctx)
	if err != nil {
		return "", err
	}

	total := domain.MoneyFromMinor(revenue.TotalMinor)
	average := decimal.Zero
	if revenue.CompletedOrders > 0 {
		average = total.Div(decimal.NewFromInt(int64(revenue.CompletedOrders)))
	}
	conversion := float64(revenue.CompletedOrders) / float64(totals.Orders) * 100

	var b strings.Builder
	b.WriteString("💰 <b>Финансовая статистика:</b>\n\n")
	fmt.Fprintf(&b, "💰 Общая выручка: %s\n", FormatAmount(total))
	fmt.Fprintf(&b, "📦 Выполненных заказов: %d\n", revenue.CompletedOrders)
	fmt.Fprintf(&b, "💸 Средний чек: %s\n", FormatAmount(average))
	fmt.Fprintf(&b, "📊 Конверсия: %.1f%%\n", conversion)
	return b.String(), nil
}

func (s *ReportService) UserStatistics(ctx context.Context) (string, error) {
	totals, err := s.stats.Totals(ctx)
	if err != nil {
		return "", err
	}
	if totals.Users == 0 {
		return "📭 Пользователей пока нет", nil
	}
	withOrders, err := s.stats.UsersWithOrders(ctx)
	if err != nil {
		return "", err
	}
	roles, err := s.stats.UsersByRole(ctx)
	if err != nil {
		return "", err
	}

	users := float64(totals.Users)
	var b strings.Builder
	b.WriteString("👥 <b>Статистика пользователей:</b>\n\n")
	fmt.Fprintf(&b, "👥 Всего пользователей: %d\n\n", totals.Users)
	fmt.Fprintf(&b, "✅ Активных пользователей: %d\n", withOrders)
	fmt.Fprintf(&b, "📊 Активность: %.1f%%\n\n", float64(withOrders)/users*100)
	b.WriteString("👤 <b>Распределение по ролям:</b>\n")
	for _, rc := range roles {
		fmt.Fprintf(&b, "• %s: %d (%.1f%%)\n", FormatUserRole(rc.Role), rc.Count, float64(rc.Count)/users*100)
	}
	return b.String(), nil
}

func (s *ReportService) ProductStatistics(ctx context.Context) (string, error) {
	products, err := s.products.GetAll(ctx)
	if err != nil {
		return "", err
	}

	inStock, outOfStock, low := 0, 0, 0
	for _, p := range products {
		switch {
		case p.StockQuantity == 0:
			outOfStock++
		case p.StockQuantity <= s.lowStockThreshold:
			low++
			inStock++
		default:
			inStock++
		}
	}

	expensive := append([]domain.Product(nil), products...)
	sort.SliceStable(expensive, func(i, j int) bool { return expensive[i].Price.GreaterThan(expensive[j].Price) })
	if len(expensive) > topPricedCount {
		expensive = expensive[:topPricedCount]
	}

	var b strings.Builder
	b.WriteString("🛍️ <b>Статистика товаров:</b>\n\n")
	fmt.Fprintf(&b, "🧾 Всего товаров: %d\n", len(products))
	fmt.Fprintf(&b, "✅ В наличии: %d\n", inStock)
	fmt.Fprintf(&b, "❌ Нет в наличии: %d\n", outOfStock)
	fmt.Fprintf(&b, "⚠️ Мало товара: %d\n\n", low)
	b.WriteString("💰 <b>Самые дорогие товары:</b>\n")
	for _, p := range expensive {
		fmt.Fprintf(&b, "• %s: %s\n", html.EscapeString(p.Name), FormatPrice(p.Price))
	}
	return b.String(), nil
}

// ActivityReport lists the ten most active users over the last days
func (s *ReportService) ActivityReport(ctx context.Context, days int) (string, error) {
	activity, err := s.logs.UserActivity(ctx, days)
	if err != nil {
		return "", err
	}
	if len(activity) == 0 {
		return fmt.Sprintf("📈 За последние %d дней активности не было", days), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📈 <b>Активность пользователей (%d дней):</b>\n\n", days)
	for i, a := range activity {
		username := "N/A"
		if a.Username.Valid && a.Username.String != "" {
			username = a.Username.String
		}
		fmt.Fprintf(&b, "%d. %s (@%s)\n", i+1, html.EscapeString(a.FullName), html.EscapeString(username))
		fmt.Fprintf(&b, "   📊 Действий: %d\n\n", a.ActionCount)
	}
	return b.String(), nil
}

// LogReport combines weekly action statistics with the last day of entries
func (s *ReportService) LogReport(ctx context.Context) (string, error) {
	stats, err := s.logs.ActionStats(ctx, 7)
	if err != nil {
		return "", err
	}
	recent, err := s.logs.Since(ctx, 24)
	if err != nil {
		return "", err
	}
	if len(stats) == 0 && len(recent) == 0 {
		return "📝 За последние 24 часа действий не было", nil
	}

	var b strings.Builder
	b.WriteString("📝 <b>Статистика действий (7 дней):</b>\n")
	for _, st := range stats {
		fmt.Fprintf(&b, "• %s: %d\n", html.EscapeString(st.Action), st.Count)
	}

	b.WriteString("\n📝 <b>Последние действия (24ч):</b>\n\n")
	for i, entry := range recent {
		if i == reportListLimit {
			break
		}
		who := " (система)"
		if entry.UserName.Valid {
			who = " от " + html.EscapeString(entry.UserName.String)
		}
		fmt.Fprintf(&b, "📅 %s\n🔸 %s%s\n", FormatDate(entry.CreatedAt, "full"), html.EscapeString(entry.Action), who)
		if entry.Details != "" {
			fmt.Fprintf(&b, "📝 %s\n", html.EscapeString(entry.Details))
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

// ExportStockXLSX renders the active catalog with stock and value as an Excel workbook
func (s *ReportService) ExportStockXLSX(ctx context.Context) ([]byte, error) {
	products, err := s.products.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Склад"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	header := []interface{}{"ID", "Название", "Категория", "Цена", "Остаток", "Стоимость"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to create style: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", "F1", bold); err != nil {
		return nil, fmt.Errorf("failed to style header: %w", err)
	}

	totalValue := decimal.Zero
	for i, p := range products {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		price, _ := p.Price.Float64()
		value, _ := p.StockValue().Float64()
		row := []interface{}{p.ID, p.Name, p.CategoryName, price, p.StockQuantity, value}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write product %d: %w", p.ID, err)
		}
		totalValue = totalValue.Add(p.StockValue())
	}

	totalCell, err := excelize.CoordinatesToCellName(5, len(products)+2)
	if err != nil {
		return nil, err
	}
	total, _ := totalValue.Float64()
	footer := []interface{}{"Итого", total}
	if err := f.SetSheetRow(sheet, totalCell, &footer); err != nil {
		return nil, fmt.Errorf("failed to write total: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
