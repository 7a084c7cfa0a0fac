package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentRequestStatus is the lifecycle state of a vendor payment request.
type PaymentRequestStatus string

const (
	PaymentRequestStatusPending   PaymentRequestStatus = "PENDING"
	PaymentRequestStatusApproved  PaymentRequestStatus = "APPROVED"
	PaymentRequestStatusRejected  PaymentRequestStatus = "REJECTED"
	PaymentRequestStatusCompleted PaymentRequestStatus = "COMPLETED"
)

// IsValid reports whether s is a known request status.
func (s PaymentRequestStatus) IsValid() bool {
	switch s {
	case PaymentRequestStatusPending, PaymentRequestStatusApproved,
		PaymentRequestStatusRejected, PaymentRequestStatusCompleted:
		return true
	}
	return false
}

// PaymentRequest is a vendor claim to release escrowed milestone funds.
type PaymentRequest struct {
	ID              string
	MilestoneID     string
	VendorAccountID string
	Amount          decimal.Decimal
	Currency        string
	Status          PaymentRequestStatus
	Note            string
	DecisionNote    string
	RequestedBy     string
	DecidedBy       string
	TransactionID   *string
	RequestedAt     time.Time
	DecidedAt       *time.Time
	CompletedAt     *time.Time
	UpdatedAt       time.Time
}

// IsOpen reports whether the request still blocks new requests on its milestone.
func (p *PaymentRequest) IsOpen() bool {
	return p.Status == PaymentRequestStatusPending || p.Status == PaymentRequestStatusApproved
}

// Approve moves a PENDING request to APPROVED.
func (p *PaymentRequest) Approve(actorID, note string, now time.Time) error {
	if p.Status != PaymentRequestStatusPending {
		return fmt.Errorf("%w: payment request %s is %s", ErrInvalidState, p.ID, p.Status)
	}

	p.Status = PaymentRequestStatusApproved
	p.DecidedBy = actorID
	p.DecisionNote = note
	p.DecidedAt = &now
	p.UpdatedAt = now

	return nil
}

// Reject closes an open request without moving money.
func (p *PaymentRequest) Reject(actorID, reason string, now time.Time) error {
	if p.Status != PaymentRequestStatusPending {
		return fmt.Errorf("%w: payment request %s is %s", ErrInvalidState, p.ID, p.Status)
	}

	p.supersede(actorID, reason, now)

	return nil
}

// Supersede rejects an open request whose milestone was settled another way.
func (p *PaymentRequest) Supersede(reason string, now time.Time) {
	if p.IsOpen() {
		p.supersede(SystemActorID, reason, now)
	}
}

// Complete records the payment transaction of an APPROVED request.
func (p *PaymentRequest) Complete(transactionID string, now time.Time) error {
	if p.Status != PaymentRequestStatusApproved {
		return fmt.Errorf("%w: payment request %s is %s", ErrInvalidState, p.ID, p.Status)
	}

	p.Status = PaymentRequestStatusCompleted
	p.TransactionID = &transactionID
	p.CompletedAt = &now
	p.UpdatedAt = now

	return nil
}

func (p *PaymentRequest) supersede(actorID, reason string, now time.Time) {
	p.Status = PaymentRequestStatusRejected
	p.DecidedBy = actorID
	p.DecisionNote = reason
	p.DecidedAt = &now
	p.UpdatedAt = now
}

// PaymentRequestFilter narrows payment request listings.
type PaymentRequestFilter struct {
	Status      PaymentRequestStatus
	MilestoneID string
	Limit       int
	Offset      int
}
