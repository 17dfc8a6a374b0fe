package service

import (
	"fmt"
	"html"
	"strings"
	"time"

	"maxxpharm/internal/domain"

	"github.com/shopspring/decimal"
)

const notSpecified = "Не указан"

// FormatPrice renders whole currency units with thousands separators, e.g. "1,234 ₽"
func FormatPrice(price decimal.Decimal) string {
	return groupThousands(price.Round(0).StringFixed(0)) + " ₽"
}

// FormatAmount keeps kopecks, e.g. "1,234.50 ₽"
func FormatAmount(amount decimal.Decimal) string {
	fixed := amount.StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")
	return groupThousands(whole) + "." + frac + " ₽"
}

func groupThousands(digits string) string {
	sign := ""
	if strings.HasPrefix(digits, "-") {
		sign, digits = "-", digits[1:]
	}

	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + b.String()
}

// FormatDate supports the "full", "date", "time" and "short" layouts
func FormatDate(t time.Time, kind string) string {
	switch kind {
	case "date":
		return t.Format("02.01.2006")
	case "time":
		return t.Format("15:04")
	case "short":
		return t.Format("02.01 15:04")
	default:
		return t.Format("02.01.2006 15:04")
	}
}

var statusLabels = map[domain.OrderStatus]string{
	domain.StatusNew:        "🆕 Новый",
	domain.StatusConfirmed:  "✅ Подтвержден",
	domain.StatusInProgress: "⏳ В обработке",
	domain.StatusInDelivery: "🚚 В доставке",
	domain.StatusCompleted:  "✔️ Завершен",
	domain.StatusCancelled:  "❌ Отменен",
}

var statusEmoji = map[domain.OrderStatus]string{
	domain.StatusNew:        "🆕",
	domain.StatusConfirmed:  "✅",
	domain.StatusInProgress: "⏳",
	domain.StatusInDelivery: "🚚",
	domain.StatusCompleted:  "✔️",
	domain.StatusCancelled:  "❌",
}

func FormatOrderStatus(status domain.OrderStatus) string {
	if label, ok := statusLabels[status]; ok {
		return label
	}
	return string(status)
}

func StatusEmoji(status domain.OrderStatus) string {
	if emoji, ok := statusEmoji[status]; ok {
		return emoji
	}
	return "❓"
}

var roleLabels = map[domain.Role]string{
	domain.RoleClient:     "👤 Клиент",
	domain.RoleCourier:    "🚚 Курьер",
	domain.RoleManager:    "📦 Менеджер",
	domain.RoleAdmin:      "👑 Администратор",
	domain.RoleSuperAdmin: "🔥 Супер-администратор",
}

func FormatUserRole(role domain.Role) string {
	if label, ok := roleLabels[role]; ok {
		return label
	}
	return string(role)
}

// FormatPhone pretty-prints Uzbek and Russian numbers and leaves others as typed
func FormatPhone(phone string) string {
	if phone == "" {
		return notSpecified
	}

	digits := nonDigits.ReplaceAllString(phone, "")
	switch {
	case len(digits) == 12 && strings.HasPrefix(digits, "998"):
		return fmt.Sprintf("+%s %s %s %s %s", digits[:3], digits[3:5], digits[5:8], digits[8:10], digits[10:])
	case len(digits) == 11 && strings.HasPrefix(digits, "7"):
		return fmt.Sprintf("+%s %s %s %s %s", digits[:1], digits[1:4], digits[4:7], digits[7:9], digits[9:])
	default:
		return phone
	}
}

func FormatAddress(address string) string {
	address = strings.TrimSpace(address)
	if address == "" {
		return notSpecified
	}
	return address
}

// FormatProductInfo renders a product card as Telegram HTML
func FormatProductInfo(p *domain.Product) string {
	stockStatus := "✅ В наличии"
	if p.StockQuantity <= 0 {
		stockStatus = "❌ Нет в наличии"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🛍️ <b>%s</b>\n\n", html.EscapeString(p.Name))
	fmt.Fprintf(&b, "💰 Цена: %s\n", FormatPrice(p.Price))
	fmt.Fprintf(&b, "📦 В наличии: %d шт. %s\n", p.StockQuantity, stockStatus)
	if p.CategoryName != "" {
		fmt.Fprintf(&b, "🏷️ Категория: %s\n", html.EscapeString(p.CategoryName))
	}
	if p.Description != "" {
		fmt.Fprintf(&b, "\n📝 Описание: %s\n", html.EscapeString(p.Description))
	}
	return b.String()
}

// FormatOrderInfo renders an order card with its items as Telegram HTML
func FormatOrderInfo(o *domain.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📦 <b>Заказ #%d</b>\n\n", o.ID)
	if o.CustomerName != "" {
		fmt.Fprintf(&b, "👤 Клиент: %s\n", html.EscapeString(o.CustomerName))
	}
	fmt.Fprintf(&b, "📊 Статус: %s\n", FormatOrderStatus(o.Status))
	fmt.Fprintf(&b, "💰 Сумма: %s\n", FormatPrice(o.TotalAmount))
	fmt.Fprintf(&b, "📅 Создан: %s\n", FormatDate(o.CreatedAt, "full"))
	if o.Phone != "" {
		fmt.Fprintf(&b, "📞 Телефон: %s\n", html.EscapeString(FormatPhone(o.Phone)))
	}
	if o.DeliveryAddress != "" {
		fmt.Fprintf(&b, "📍 Адрес: %s\n", html.EscapeString(FormatAddress(o.DeliveryAddress)))
	}
	if o.Notes != "" {
		fmt.Fprintf(&b, "📝 Примечание: %s\n", html.EscapeString(o.Notes))
	}

	if len(o.Items) > 0 {
		b.WriteString("\n🛍️ <b>Товары в заказе:</b>\n")
		for _, item := range o.Items {
			fmt.Fprintf(&b, "• %s - %d шт. × %s = %s\n",
				html.EscapeString(item.ProductName), item.Quantity, FormatPrice(item.Price), FormatPrice(item.Subtotal()))
		}
	}
	return b.String()
}

// FormatOrderLine is the one-order summary used in lists
func FormatOrderLine(o *domain.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s Заказ #%d\n", StatusEmoji(o.Status), o.ID)
	if o.CustomerName != "" {
		fmt.Fprintf(&b, "   👤 Клиент: %s\n", html.EscapeString(o.CustomerName))
	}
	fmt.Fprintf(&b, "   💰 Сумма: %s\n", FormatPrice(o.TotalAmount))
	fmt.Fprintf(&b, "   📅 %s\n", FormatDate(o.CreatedAt, "full"))
	return b.String()
}
