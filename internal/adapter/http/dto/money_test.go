package dto

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestAmountMarshalUsesTwoDecimals(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"5000", `"5000.00"`},
		{"0.5", `"0.50"`},
		{"1234.56", `"1234.56"`},
		{"0", `"0.00"`},
	}

	for _, tt := range tests {
		got, err := json.Marshal(NewAmount(decimal.RequireFromString(tt.in)))
		if err != nil {
			t.Fatalf("marshal %s: %v", tt.in, err)
		}
		if string(got) != tt.want {
			t.Fatalf("marshal %s = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestAmountUnmarshal(t *testing.T) {
	var m Money
	if err := json.Unmarshal([]byte(`{"amount":"2000.00","currency":"USD"}`), &m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !m.Amount.Equal(decimal.NewFromInt(2000)) || m.Currency != "USD" {
		t.Fatalf("unexpected money %+v", m)
	}
}

func TestAmountUnmarshalRejectsNumbers(t *testing.T) {
	var a Amount
	err := json.Unmarshal([]byte(`12.5`), &a)
	if !errors.Is(err, errAmountNotString) {
		t.Fatalf("expected errAmountNotString, got %v", err)
	}
}

func TestAmountUnmarshalRejectsGarbage(t *testing.T) {
	var a Amount
	if err := json.Unmarshal([]byte(`"twelve"`), &a); err == nil {
		t.Fatalf("expected error for non-decimal string")
	}
}

func TestAmountUnmarshalNullIsZero(t *testing.T) {
	var req RefundRequest
	if err := json.Unmarshal([]byte(`{"amount":null,"reason":"duplicate"}`), &req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !req.Amount.IsZero() {
		t.Fatalf("expected zero amount, got %s", req.Amount)
	}
}
