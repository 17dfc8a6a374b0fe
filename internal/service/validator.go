package service

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	MaxQuantity     = 1000
	maxSanitizedLen = 1000
)

var (
	nonDigits        = regexp.MustCompile(`\D+`)
	emailPattern     = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	namePattern      = regexp.MustCompile(`^[a-zA-Zа-яА-ЯёЁ\s\-.]+$`)
	usernamePattern  = regexp.MustCompile(`^[a-zA-Z0-9_]{5,32}$`)
	unsafeCharacters = regexp.MustCompile(`[<>"']`)
)

// ValidatePhone accepts numbers with 10 to 15 digits in any formatting
func ValidatePhone(phone string) bool {
	digits := nonDigits.ReplaceAllString(phone, "")
	return len(digits) >= 10 && len(digits) <= 15
}

func ValidateEmail(email string) bool {
	return emailPattern.MatchString(email)
}

func ValidateName(name string) bool {
	name = strings.TrimSpace(name)
	return utf8.RuneCountInString(name) >= 2 && namePattern.MatchString(name)
}

func ValidateAddress(address string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(address)) >= 5
}

func ValidateProductName(name string) bool {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	return n >= 2 && n <= 255
}

func ValidateCategoryName(name string) bool {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	return n >= 2 && n <= 100
}

// ValidateTelegramUsername allows an empty username; a leading @ is ignored
func ValidateTelegramUsername(username string) bool {
	if username == "" {
		return true
	}
	return usernamePattern.MatchString(strings.TrimPrefix(username, "@"))
}

// ParsePrice reads a positive price, accepting a comma as decimal separator
func ParsePrice(raw string) (decimal.Decimal, error) {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", ".")
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, invalid("price", fmt.Sprintf("price %q is not a number", raw))
	}
	if !price.IsPositive() {
		return decimal.Zero, invalid("price", "price must be positive")
	}
	return price.Round(2), nil
}

func ValidatePrice(raw string) bool {
	_, err := ParsePrice(raw)
	return err == nil
}

// ParseQuantity reads an item quantity between 1 and MaxQuantity
func ParseQuantity(raw string) (int, error) {
	qty, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, invalid("quantity", fmt.Sprintf("quantity %q is not a number", raw))
	}
	if err := CheckQuantity(qty); err != nil {
		return 0, err
	}
	return qty, nil
}

func CheckQuantity(qty int) error {
	if qty <= 0 || qty > MaxQuantity {
		return invalid("quantity", fmt.Sprintf("quantity must be between 1 and %d", MaxQuantity))
	}
	return nil
}

func ValidateQuantity(raw string) bool {
	_, err := ParseQuantity(raw)
	return err == nil
}

// ParseOrderID reads a positive order number, tolerating a leading #
func ParseOrderID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(raw), "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, invalid("order_id", fmt.Sprintf("order id %q is not valid", raw))
	}
	return id, nil
}

func ValidateOrderID(raw string) bool {
	_, err := ParseOrderID(raw)
	return err == nil
}

// SanitizeText strips markup characters and limits the length (in runes)
func SanitizeText(text string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = maxSanitizedLen
	}
	sanitized := unsafeCharacters.ReplaceAllString(text, "")
	runes := []rune(sanitized)
	if len(runes) > maxLength {
		runes = runes[:maxLength]
	}
	return strings.TrimSpace(string(runes))
}
