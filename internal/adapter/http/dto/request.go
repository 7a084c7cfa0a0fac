package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/goescrow/internal/domain"
	"github.com/iho/goescrow/internal/usecase"
)

// CreateAccountRequest represents a request to create an account.
type CreateAccountRequest struct {
	Kind     string `json:"kind"`
	OwnerID  string `json:"owner_id"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
}

// ToUseCaseInput converts to use case input.
func (r *CreateAccountRequest) ToUseCaseInput() usecase.CreateAccountInput {
	return usecase.CreateAccountInput{
		Kind:     domain.AccountKind(r.Kind),
		OwnerID:  r.OwnerID,
		Name:     r.Name,
		Currency: r.Currency,
	}
}

// RecordTransactionRequest represents a request to post a transaction.
type RecordTransactionRequest struct {
	Type           string         `json:"type"`
	FromAccountID  string         `json:"from_account_id,omitempty"`
	ToAccountID    string         `json:"to_account_id,omitempty"`
	Amount         Amount         `json:"amount"`
	IdempotencyKey string         `json:"idempotency_key"`
	MilestoneID    string         `json:"milestone_id,omitempty"`
	Reason         string         `json:"reason,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *RecordTransactionRequest) ToUseCaseInput() usecase.RecordTransactionInput {
	return usecase.RecordTransactionInput{
		Type:           domain.TransactionType(r.Type),
		FromAccountID:  r.FromAccountID,
		ToAccountID:    r.ToAccountID,
		Amount:         r.Amount.Decimal,
		IdempotencyKey: r.IdempotencyKey,
		MilestoneID:    r.MilestoneID,
		Reason:         r.Reason,
		Metadata:       r.Metadata,
	}
}

// RefundRequest reverses a transaction. A missing amount refunds whatever
// has not been reversed yet.
type RefundRequest struct {
	Amount         Amount `json:"amount"`
	Reason         string `json:"reason"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *RefundRequest) ToUseCaseInput(transactionID string) usecase.ReverseInput {
	return usecase.ReverseInput{
		TransactionID:  transactionID,
		Amount:         r.Amount.Decimal,
		Reason:         r.Reason,
		IdempotencyKey: r.IdempotencyKey,
	}
}

// ReasonRequest carries the free-text reason of a decision.
type ReasonRequest struct {
	Reason string `json:"reason"`
}

// CreateMilestoneRequest represents a request to create a milestone.
type CreateMilestoneRequest struct {
	Title    string     `json:"title"`
	ClientID string     `json:"client_id"`
	VendorID string     `json:"vendor_id"`
	Amount   Amount     `json:"amount"`
	Currency string     `json:"currency"`
	DueDate  *time.Time `json:"due_date,omitempty"`
	Fund     bool       `json:"fund"`
}

// ToUseCaseInput converts to use case input.
func (r *CreateMilestoneRequest) ToUseCaseInput(projectID string) usecase.CreateMilestoneInput {
	return usecase.CreateMilestoneInput{
		ProjectID: projectID,
		Title:     r.Title,
		ClientID:  r.ClientID,
		VendorID:  r.VendorID,
		Amount:    r.Amount.Decimal,
		Currency:  r.Currency,
		DueDate:   r.DueDate,
		Fund:      r.Fund,
	}
}

// CancelMilestoneRequest cancels a milestone, refunding RefundPercentage
// (0 to 100) of the held amount to the client.
type CancelMilestoneRequest struct {
	RefundPercentage decimal.Decimal `json:"refund_percentage"`
	Reason           string          `json:"reason"`
}

// ToUseCaseInput converts to use case input.
func (r *CancelMilestoneRequest) ToUseCaseInput(milestoneID string) usecase.CancelMilestoneInput {
	return usecase.CancelMilestoneInput{
		MilestoneID:      milestoneID,
		RefundPercentage: r.RefundPercentage,
		Reason:           r.Reason,
	}
}

// FilePaymentRequestRequest files a vendor payment request. A missing
// amount claims the whole held amount.
type FilePaymentRequestRequest struct {
	Amount Amount `json:"amount"`
	Note   string `json:"note,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *FilePaymentRequestRequest) ToUseCaseInput(milestoneID string) usecase.FileRequestInput {
	return usecase.FileRequestInput{
		MilestoneID: milestoneID,
		Amount:      r.Amount.Decimal,
		Note:        r.Note,
	}
}

// OpenDisputeRequest opens a dispute on a milestone. PlaintiffID is only
// honoured when an operator files on behalf of a party.
type OpenDisputeRequest struct {
	Reason      string `json:"reason"`
	PlaintiffID string `json:"plaintiff_id,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *OpenDisputeRequest) ToUseCaseInput(milestoneID string) usecase.OpenDisputeInput {
	return usecase.OpenDisputeInput{
		MilestoneID: milestoneID,
		PlaintiffID: r.PlaintiffID,
		Reason:      r.Reason,
	}
}

// ResolveDisputeRequest closes a dispute with a resolution.
type ResolveDisputeRequest struct {
	ResolutionType string `json:"resolution_type"`
	ClientAmount   Amount `json:"client_amount"`
	VendorAmount   Amount `json:"vendor_amount"`
	Note           string `json:"note,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *ResolveDisputeRequest) ToUseCaseInput(disputeID string) usecase.ResolveDisputeInput {
	return usecase.ResolveDisputeInput{
		DisputeID:    disputeID,
		Type:         domain.ResolutionType(r.ResolutionType),
		ClientAmount: r.ClientAmount.Decimal,
		VendorAmount: r.VendorAmount.Decimal,
		Note:         r.Note,
	}
}
