package dto

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var errAmountNotString = errors.New("amounts must be decimal strings")

// Amount is a decimal carried on the wire as a string with two decimals,
// e.g. "5000.00". JSON numbers are rejected so that no amount passes
// through a float.
type Amount struct {
	decimal.Decimal
}

// NewAmount wraps d.
func NewAmount(d decimal.Decimal) Amount {
	return Amount{Decimal: d}
}

// MarshalJSON renders the amount with exactly two decimals.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.StringFixed(2) + `"`), nil
}

// UnmarshalJSON parses a quoted decimal. null leaves the amount at zero.
func (a *Amount) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return errAmountNotString
	}

	d, err := decimal.NewFromString(string(data[1 : len(data)-1]))
	if err != nil {
		return fmt.Errorf("invalid amount %s: %w", data, err)
	}

	a.Decimal = d
	return nil
}

// Money is an amount with its ISO 4217 currency.
type Money struct {
	Amount   Amount `json:"amount"`
	Currency string `json:"currency"`
}
