package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestTransaction_Validate(t *testing.T) {
	escrow := "acc-escrow"
	vendor := "acc-vendor"
	original := "txn-1"

	tests := []struct {
		name    string
		txn     Transaction
		wantErr error
	}{
		{
			name: "payment between accounts",
			txn:  Transaction{Type: TransactionTypePayment, FromAccountID: &escrow, ToAccountID: &vendor, Amount: decimal.NewFromInt(10)},
		},
		{
			name: "deposit mints",
			txn:  Transaction{Type: TransactionTypeDeposit, ToAccountID: &escrow, Amount: decimal.NewFromInt(10)},
		},
		{
			name:    "deposit with source",
			txn:     Transaction{Type: TransactionTypeDeposit, FromAccountID: &vendor, ToAccountID: &escrow, Amount: decimal.NewFromInt(10)},
			wantErr: ErrInvalidTransaction,
		},
		{
			name: "withdrawal burns",
			txn:  Transaction{Type: TransactionTypeWithdrawal, FromAccountID: &vendor, Amount: decimal.NewFromInt(10)},
		},
		{
			name:    "payment without destination",
			txn:     Transaction{Type: TransactionTypePayment, FromAccountID: &escrow, Amount: decimal.NewFromInt(10)},
			wantErr: ErrInvalidTransaction,
		},
		{
			name: "reversal of deposit burns",
			txn:  Transaction{Type: TransactionTypeRefund, FromAccountID: &escrow, ReversesID: &original, Amount: decimal.NewFromInt(10)},
		},
		{
			name:    "refund without destination",
			txn:     Transaction{Type: TransactionTypeRefund, FromAccountID: &escrow, Amount: decimal.NewFromInt(10)},
			wantErr: ErrInvalidTransaction,
		},
		{
			name:    "same account",
			txn:     Transaction{Type: TransactionTypePayment, FromAccountID: &escrow, ToAccountID: &escrow, Amount: decimal.NewFromInt(10)},
			wantErr: ErrSameAccount,
		},
		{
			name:    "zero amount",
			txn:     Transaction{Type: TransactionTypePayment, FromAccountID: &escrow, ToAccountID: &vendor},
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "unknown type",
			txn:     Transaction{Type: "GIFT", FromAccountID: &escrow, ToAccountID: &vendor, Amount: decimal.NewFromInt(10)},
			wantErr: ErrInvalidTransaction,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.txn.Validate()
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestTransaction_IsSettlement(t *testing.T) {
	ms := "ms-1"
	original := "txn-0"

	payment := Transaction{Type: TransactionTypePayment, Status: TransactionStatusCompleted, MilestoneID: &ms}
	if !payment.IsSettlement() {
		t.Fatal("expected completed milestone payment to be a settlement")
	}

	deposit := Transaction{Type: TransactionTypeDeposit, Status: TransactionStatusCompleted, MilestoneID: &ms}
	if deposit.IsSettlement() {
		t.Fatal("deposit must not count as settlement")
	}

	reversal := Transaction{Type: TransactionTypeRefund, Status: TransactionStatusCompleted, MilestoneID: &ms, ReversesID: &original}
	if reversal.IsSettlement() {
		t.Fatal("reversal must not count as settlement")
	}

	failed := Transaction{Type: TransactionTypePayment, Status: TransactionStatusFailed, MilestoneID: &ms}
	if failed.IsSettlement() {
		t.Fatal("failed payment must not count as settlement")
	}
}

func TestTransaction_SameOperation(t *testing.T) {
	from := "a"
	to := "b"
	other := "c"

	base := &Transaction{Type: TransactionTypePayment, FromAccountID: &from, ToAccountID: &to, Amount: decimal.RequireFromString("10.00")}

	same := &Transaction{Type: TransactionTypePayment, FromAccountID: StringRef("a"), ToAccountID: StringRef("b"), Amount: decimal.NewFromInt(10)}
	if !base.SameOperation(same) {
		t.Fatal("expected equal operations to match")
	}

	different := &Transaction{Type: TransactionTypePayment, FromAccountID: &from, ToAccountID: &other, Amount: decimal.NewFromInt(10)}
	if base.SameOperation(different) {
		t.Fatal("expected different destination to mismatch")
	}
}
