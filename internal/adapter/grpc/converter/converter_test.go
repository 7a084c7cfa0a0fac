package converter

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/iho/goescrow/internal/domain"
)

func TestDecimal(t *testing.T) {
	s, err := structpb.NewStruct(map[string]any{
		"amount": "123.45",
		"float":  12.5,
		"bad":    "abc",
		"null":   nil,
	})
	if err != nil {
		t.Fatalf("build struct: %v", err)
	}

	val, err := Decimal(s, "amount")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !val.Equal(decimal.RequireFromString("123.45")) {
		t.Fatalf("expected parsed decimal to match, got %s", val)
	}

	if _, err := Decimal(s, "float"); !errors.Is(err, ErrFieldType) {
		t.Fatalf("expected floats to be rejected, got %v", err)
	}
	if _, err := Decimal(s, "bad"); !errors.Is(err, ErrFieldType) {
		t.Fatalf("expected parse failure, got %v", err)
	}

	for _, key := range []string{"null", "missing"} {
		val, err := Decimal(s, key)
		if err != nil || !val.IsZero() {
			t.Fatalf("expected zero for %s, got %s (%v)", key, val, err)
		}
	}
}

func TestMetadata(t *testing.T) {
	s, err := structpb.NewStruct(map[string]any{
		"metadata": map[string]any{"source": "grpc"},
		"reason":   "text",
	})
	if err != nil {
		t.Fatalf("build struct: %v", err)
	}

	got, err := Metadata(s, "metadata")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["source"] != "grpc" {
		t.Fatalf("expected metadata to be copied, got %v", got)
	}

	if _, err := Metadata(s, "reason"); !errors.Is(err, ErrFieldType) {
		t.Fatalf("expected type error, got %v", err)
	}

	if got, err := Metadata(nil, "metadata"); err != nil || got != nil {
		t.Fatalf("expected nil metadata for nil struct, got %v (%v)", got, err)
	}
}

func TestTransactionToStruct(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	txn := &domain.Transaction{
		ID:            "txn-1",
		Type:          domain.TransactionTypePayment,
		FromAccountID: domain.StringRef("escrow-1"),
		ToAccountID:   domain.StringRef("vendor-1"),
		Amount:        decimal.RequireFromString("5000"),
		Currency:      "USD",
		Status:        domain.TransactionStatusCompleted,
		MilestoneID:   domain.StringRef("ms-1"),
		Metadata:      map[string]any{"nested": map[string]any{"k": "v"}},
		CreatedAt:     now,
		CompletedAt:   &now,
	}

	s, err := ToStruct(map[string]any{"transaction": TransactionToStruct(txn)})
	if err != nil {
		t.Fatalf("to struct: %v", err)
	}

	got := s.GetFields()["transaction"].GetStructValue().AsMap()
	if got["amount"] != "5000.00" {
		t.Fatalf("expected two-decimal amount, got %v", got["amount"])
	}
	if got["from_account_id"] != "escrow-1" || got["milestone_id"] != "ms-1" {
		t.Fatalf("expected optional ids to be set, got %v", got)
	}
	if _, ok := got["reverses_id"]; ok {
		t.Fatalf("expected reverses_id to be omitted")
	}
	if got["completed_at"] != "2026-03-01T12:00:00Z" {
		t.Fatalf("unexpected completed_at %v", got["completed_at"])
	}

	if TransactionToStruct(nil) != nil {
		t.Fatal("expected nil transaction to return nil")
	}
}

func TestDisputeToStruct(t *testing.T) {
	d := &domain.Dispute{
		ID:           "d-1",
		MilestoneID:  "ms-1",
		EscrowAmount: decimal.NewFromInt(5000),
		Currency:     "USD",
		Status:       domain.DisputeStatusResolved,
		Resolution: &domain.Resolution{
			Type:         domain.ResolutionSplitCustom,
			ClientAmount: decimal.NewFromInt(2000),
			VendorAmount: decimal.NewFromInt(3000),
			ResolvedBy:   "operator-1",
		},
	}

	s, err := ToStruct(DisputeToStruct(d))
	if err != nil {
		t.Fatalf("to struct: %v", err)
	}

	resolution := s.GetFields()["resolution"].GetStructValue().AsMap()
	if resolution["client_amount"] != "2000.00" || resolution["vendor_amount"] != "3000.00" {
		t.Fatalf("unexpected resolution %v", resolution)
	}
}

func TestMilestoneToStruct(t *testing.T) {
	m := &domain.Milestone{
		ID:       "ms-1",
		Amount:   decimal.NewFromInt(5000),
		Released: decimal.NewFromInt(1000),
		Currency: "USD",
		Status:   domain.MilestoneStatusInProgress,
		Version:  3,
	}

	s, err := ToStruct(MilestoneToStruct(m))
	if err != nil {
		t.Fatalf("to struct: %v", err)
	}

	got := s.AsMap()
	if got["released"] != "1000.00" || got["version"] != float64(3) {
		t.Fatalf("unexpected milestone %v", got)
	}
}
