package domain

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Validation constants
const (
	MaxCurrencyLength = 16
	MaxAmount         = "1000000000000" // 1 trillion
	MaxPageSize       = 100
	DefaultPageSize   = 20
	// MaxAmountScale matches the NUMERIC(38, 18) money columns.
	MaxAmountScale = 18
)

var currencyRegex = regexp.MustCompile(`^[A-Z0-9]+$`)

var maxAmount = decimal.RequireFromString(MaxAmount)

// NormalizeCurrency trims and upper-cases a currency code.
func NormalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}

// ValidateCurrency validates a normalized currency code.
func ValidateCurrency(currency string) error {
	if currency == "" {
		return fmt.Errorf("%w: currency must be specified", ErrInvalidArgument)
	}

	if len(currency) > MaxCurrencyLength {
		return fmt.Errorf("%w: currency exceeds %d characters", ErrInvalidArgument, MaxCurrencyLength)
	}

	if !currencyRegex.MatchString(currency) {
		return fmt.Errorf("%w: currency %q must be alphanumeric", ErrInvalidArgument, currency)
	}

	return nil
}

// ValidateAmount validates a deposit or withdrawal amount.
func ValidateAmount(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: amount must be greater than 0", ErrInvalidArgument)
	}

	if amount.GreaterThan(maxAmount) {
		return fmt.Errorf("%w: maximum amount is %s", ErrInvalidArgument, MaxAmount)
	}

	if !amount.Equal(amount.Truncate(MaxAmountScale)) {
		return fmt.Errorf("%w: amount has more than %d decimal places", ErrInvalidArgument, MaxAmountScale)
	}

	return nil
}

// ValidateAccountID rejects blank identifiers.
func ValidateAccountID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: balance id is required", ErrInvalidArgument)
	}
	return nil
}

// ValidatePagination clamps pagination parameters.
func ValidatePagination(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}

	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	if offset < 0 {
		offset = 0
	}

	return limit, offset
}
