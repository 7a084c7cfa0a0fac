package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Validation errors
var (
	ErrInvalidAccountName    = errors.New("invalid account name")
	ErrInvalidCurrency       = errors.New("invalid currency code")
	ErrAmountTooLarge        = errors.New("amount exceeds maximum allowed")
	ErrAmountPrecision       = errors.New("amount has more than two decimal places")
	ErrMetadataTooLarge      = errors.New("metadata size exceeds limit")
	ErrInvalidPercentage     = errors.New("percentage must be between 0 and 100")
	ErrInvalidIdempotencyKey = errors.New("invalid idempotency key")
	ErrReasonTooLong         = errors.New("reason exceeds maximum length")
)

// Validation constants
const (
	MaxAccountNameLength    = 255
	MinAccountNameLength    = 1
	MaxMetadataSize         = 10240           // 10KB
	MaxTransactionAmount    = "1000000000000" // 1 trillion
	MaxIdempotencyKeyLength = 255
	MaxReasonLength         = 2000
)

// Valid currency codes (ISO 4217)
var validCurrencies = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "JPY": true,
	"CNY": true, "AUD": true, "CAD": true, "CHF": true,
	"SEK": true, "NZD": true, "KRW": true, "SGD": true,
	"NOK": true, "MXN": true, "INR": true, "BRL": true,
	"ZAR": true, "RUB": true, "TRY": true, "HKD": true,
}

// ValidateAccountName validates account name
func ValidateAccountName(name string) error {
	name = strings.TrimSpace(name)

	if len(name) < MinAccountNameLength {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidAccountName)
	}

	if len(name) > MaxAccountNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidAccountName, MaxAccountNameLength)
	}

	return nil
}

// NormalizeCurrency upper-cases and trims a currency code.
func NormalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}

// ValidateCurrency validates currency code
func ValidateCurrency(currency string) error {
	currency = NormalizeCurrency(currency)

	if !validCurrencies[currency] {
		return fmt.Errorf("%w: %s is not a valid ISO 4217 currency code", ErrInvalidCurrency, currency)
	}

	return nil
}

// ValidateAmount validates a money amount: positive, whole cents, below the maximum.
func ValidateAmount(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}

	if !hasCentPrecision(amount) {
		return fmt.Errorf("%w: %s", ErrAmountPrecision, amount.String())
	}

	maxAmount, _ := decimal.NewFromString(MaxTransactionAmount)
	if amount.GreaterThan(maxAmount) {
		return fmt.Errorf("%w: maximum amount is %s", ErrAmountTooLarge, MaxTransactionAmount)
	}

	return nil
}

// ValidatePercentage validates a refund percentage in [0, 100].
func ValidatePercentage(pct decimal.Decimal) error {
	if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%w: got %s", ErrInvalidPercentage, pct.String())
	}
	return nil
}

// ValidateIdempotencyKey validates a caller supplied idempotency key.
func ValidateIdempotencyKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: key cannot be empty", ErrInvalidIdempotencyKey)
	}

	if len(key) > MaxIdempotencyKeyLength {
		return fmt.Errorf("%w: key exceeds %d characters", ErrInvalidIdempotencyKey, MaxIdempotencyKeyLength)
	}

	return nil
}

// ValidateReason bounds free-text reasons and notes.
func ValidateReason(reason string) error {
	if len(reason) > MaxReasonLength {
		return fmt.Errorf("%w: %d characters allowed", ErrReasonTooLong, MaxReasonLength)
	}
	return nil
}

// ValidateMetadata validates metadata size
func ValidateMetadata(metadata map[string]any) error {
	if metadata == nil {
		return nil
	}

	// Estimate size (rough approximation)
	size := 0
	for k, v := range metadata {
		size += len(k)
		size += len(fmt.Sprintf("%v", v))
	}

	if size > MaxMetadataSize {
		return fmt.Errorf("%w: metadata size %d bytes exceeds limit of %d bytes", ErrMetadataTooLarge, size, MaxMetadataSize)
	}

	return nil
}

// ValidatePagination validates and limits pagination parameters
func ValidatePagination(limit, offset int) (int, int, error) {
	const MaxPageSize = 1000
	const DefaultPageSize = 50

	if limit <= 0 {
		limit = DefaultPageSize
	}

	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	if offset < 0 {
		offset = 0
	}

	return limit, offset, nil
}
