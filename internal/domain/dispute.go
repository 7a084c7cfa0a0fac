package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DisputeStatus is the lifecycle state of an arbitration case.
type DisputeStatus string

const (
	DisputeStatusOpen          DisputeStatus = "OPEN"
	DisputeStatusInvestigating DisputeStatus = "INVESTIGATING"
	DisputeStatusResolved      DisputeStatus = "RESOLVED"
	DisputeStatusCancelled     DisputeStatus = "CANCELLED"
)

// IsValid reports whether s is a known dispute status.
func (s DisputeStatus) IsValid() bool {
	switch s {
	case DisputeStatusOpen, DisputeStatusInvestigating, DisputeStatusResolved, DisputeStatusCancelled:
		return true
	}
	return false
}

// IsActive reports whether the dispute still freezes its milestone.
func (s DisputeStatus) IsActive() bool {
	return s == DisputeStatusOpen || s == DisputeStatusInvestigating
}

// Dispute is an arbitration case over a milestone's escrow. EscrowAmount is
// the held amount captured when the dispute was opened.
type Dispute struct {
	ID           string
	MilestoneID  string
	ProjectID    string
	PlaintiffID  string
	DefendantID  string
	Reason       string
	EscrowAmount decimal.Decimal
	Currency     string
	Status       DisputeStatus
	Resolution   *Resolution
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ResolvedAt   *time.Time
}

// IsParty reports whether userID filed or answers the dispute.
func (d *Dispute) IsParty(userID string) bool {
	return userID != "" && (userID == d.PlaintiffID || userID == d.DefendantID)
}

// StartInvestigation moves an OPEN dispute to INVESTIGATING.
func (d *Dispute) StartInvestigation(now time.Time) error {
	if d.Status != DisputeStatusOpen {
		return fmt.Errorf("%w: dispute %s is %s", ErrInvalidState, d.ID, d.Status)
	}

	d.Status = DisputeStatusInvestigating
	d.UpdatedAt = now

	return nil
}

// Withdraw cancels an active dispute on behalf of its plaintiff.
func (d *Dispute) Withdraw(actorID string, now time.Time) error {
	if err := d.checkActive(); err != nil {
		return err
	}
	if actorID != d.PlaintiffID {
		return fmt.Errorf("%w: only the plaintiff may withdraw dispute %s", ErrForbidden, d.ID)
	}

	d.Status = DisputeStatusCancelled
	d.UpdatedAt = now

	return nil
}

// Resolve attaches a validated resolution and closes the dispute.
func (d *Dispute) Resolve(resolution Resolution, now time.Time) error {
	if err := d.checkActive(); err != nil {
		return err
	}

	d.Resolution = &resolution
	d.Status = DisputeStatusResolved
	d.ResolvedAt = &now
	d.UpdatedAt = now

	return nil
}

// CheckResolvable runs the pure split validation against this dispute.
func (d *Dispute) CheckResolvable(resolutionType ResolutionType, clientAmount, vendorAmount decimal.Decimal) error {
	if err := d.checkActive(); err != nil {
		return err
	}
	return ValidateResolution(resolutionType, d.EscrowAmount, clientAmount, vendorAmount)
}

func (d *Dispute) checkActive() error {
	switch d.Status {
	case DisputeStatusResolved:
		return fmt.Errorf("%w: dispute %s is already resolved", ErrAlreadySettled, d.ID)
	case DisputeStatusCancelled:
		return fmt.Errorf("%w: dispute %s was withdrawn", ErrInvalidState, d.ID)
	}
	return nil
}

// DisputeFilter narrows dispute listings. PartyID keeps the disputes a user
// filed or answers.
type DisputeFilter struct {
	Status      DisputeStatus
	MilestoneID string
	PartyID     string
	Limit       int
	Offset      int
}
