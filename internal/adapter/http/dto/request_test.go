package dto

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/iho/goescrow/internal/domain"
)

func TestCreateAccountRequest_ToUseCaseInput(t *testing.T) {
	req := &CreateAccountRequest{Kind: "CLIENT", OwnerID: "user-1", Name: "Client wallet", Currency: "USD"}

	got := req.ToUseCaseInput()
	if got.Kind != domain.AccountKindClient || got.OwnerID != "user-1" || got.Name != "Client wallet" || got.Currency != "USD" {
		t.Fatalf("ToUseCaseInput() = %+v", got)
	}
}

func TestRecordTransactionRequest_ToUseCaseInput(t *testing.T) {
	var req RecordTransactionRequest
	body := `{
		"type": "DEPOSIT",
		"to_account_id": "acc-1",
		"amount": "150.25",
		"idempotency_key": "dep-1",
		"metadata": {"source": "wire"}
	}`
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("decode: %v", err)
	}

	got := req.ToUseCaseInput()
	if got.Type != domain.TransactionTypeDeposit {
		t.Fatalf("expected DEPOSIT, got %s", got.Type)
	}
	if !got.Amount.Equal(decimal.RequireFromString("150.25")) {
		t.Fatalf("expected 150.25, got %s", got.Amount)
	}
	if got.ToAccountID != "acc-1" || got.FromAccountID != "" || got.IdempotencyKey != "dep-1" {
		t.Fatalf("unexpected input %+v", got)
	}
	if got.Metadata["source"] != "wire" {
		t.Fatalf("expected metadata to be carried, got %v", got.Metadata)
	}
}

func TestCancelMilestoneRequest_ToUseCaseInput(t *testing.T) {
	var req CancelMilestoneRequest
	if err := json.Unmarshal([]byte(`{"refund_percentage": 40, "reason": "scope cut"}`), &req); err != nil {
		t.Fatalf("decode: %v", err)
	}

	got := req.ToUseCaseInput("m-1")
	if got.MilestoneID != "m-1" || !got.RefundPercentage.Equal(decimal.NewFromInt(40)) || got.Reason != "scope cut" {
		t.Fatalf("unexpected input %+v", got)
	}
}

func TestResolveDisputeRequest_ToUseCaseInput(t *testing.T) {
	var req ResolveDisputeRequest
	body := `{"resolution_type":"SPLIT_CUSTOM","client_amount":"2000.00","vendor_amount":"3000.00","note":"partial delivery"}`
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("decode: %v", err)
	}

	got := req.ToUseCaseInput("d-1")
	if got.DisputeID != "d-1" || got.Type != domain.ResolutionSplitCustom {
		t.Fatalf("unexpected input %+v", got)
	}
	if !got.ClientAmount.Equal(decimal.NewFromInt(2000)) || !got.VendorAmount.Equal(decimal.NewFromInt(3000)) {
		t.Fatalf("unexpected shares %s / %s", got.ClientAmount, got.VendorAmount)
	}
}

func TestRefundRequest_ToUseCaseInputWithoutAmount(t *testing.T) {
	req := &RefundRequest{Reason: "charged twice"}

	got := req.ToUseCaseInput("txn-1")
	if got.TransactionID != "txn-1" || !got.Amount.IsZero() || got.IdempotencyKey != "" {
		t.Fatalf("unexpected input %+v", got)
	}
}

func TestOpenDisputeRequest_ToUseCaseInput(t *testing.T) {
	req := &OpenDisputeRequest{Reason: "not delivered", PlaintiffID: "client-1"}

	got := req.ToUseCaseInput("m-1")
	if got.MilestoneID != "m-1" || got.PlaintiffID != "client-1" || got.Reason != "not delivered" {
		t.Fatalf("unexpected input %+v", got)
	}
}
