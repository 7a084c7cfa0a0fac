package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MilestoneStatus is the lifecycle state of a milestone.
type MilestoneStatus string

const (
	MilestoneStatusPending    MilestoneStatus = "PENDING"
	MilestoneStatusInProgress MilestoneStatus = "IN_PROGRESS"
	MilestoneStatusCompleted  MilestoneStatus = "COMPLETED"
	MilestoneStatusPaid       MilestoneStatus = "PAID"
	MilestoneStatusCancelled  MilestoneStatus = "CANCELLED"
)

// IsTerminal reports whether the status can no longer change.
func (s MilestoneStatus) IsTerminal() bool {
	return s == MilestoneStatusPaid || s == MilestoneStatusCancelled
}

// IsValid reports whether s is a known milestone status.
func (s MilestoneStatus) IsValid() bool {
	switch s {
	case MilestoneStatusPending, MilestoneStatusInProgress, MilestoneStatusCompleted,
		MilestoneStatusPaid, MilestoneStatusCancelled:
		return true
	}
	return false
}

// Manual transitions. PAID is only reached through settlement and
// CANCELLED through Cancel.
var milestoneTransitions = map[MilestoneStatus]MilestoneStatus{
	MilestoneStatusPending:    MilestoneStatusInProgress,
	MilestoneStatusInProgress: MilestoneStatusCompleted,
}

// PendingCancellation is a cancellation requested while the milestone was
// frozen. It runs if the freezing dispute is withdrawn.
type PendingCancellation struct {
	RefundPercentage decimal.Decimal `json:"refund_percentage"`
	Reason           string          `json:"reason"`
	RequestedBy      string          `json:"requested_by"`
	RequestedAt      time.Time       `json:"requested_at"`
}

// Milestone is a priced unit of project work whose amount is held in the
// client's escrow account until it is released, refunded or split.
type Milestone struct {
	ID                  string
	ProjectID           string
	Title               string
	ClientID            string
	VendorID            string
	ClientAccountID     string
	VendorAccountID     string
	EscrowAccountID     string
	Amount              decimal.Decimal
	Released            decimal.Decimal
	Refunded            decimal.Decimal
	Currency            string
	Status              MilestoneStatus
	IsPaid              bool
	FrozenBy            *string
	PendingCancellation *PendingCancellation
	DueDate             *time.Time
	FundedAt            *time.Time
	PaidAt              *time.Time
	Version             int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsFunded reports whether the escrow deposit has been recorded.
func (m *Milestone) IsFunded() bool {
	return m.FundedAt != nil
}

// Held returns the amount still in escrow for this milestone.
func (m *Milestone) Held() decimal.Decimal {
	if !m.IsFunded() {
		return decimal.Zero
	}
	return m.Amount.Sub(m.Released).Sub(m.Refunded)
}

// Settled returns the total discharged from escrow so far.
func (m *Milestone) Settled() decimal.Decimal {
	return m.Released.Add(m.Refunded)
}

// IsFrozen reports whether an active dispute blocks money movement.
func (m *Milestone) IsFrozen() bool {
	return m.FrozenBy != nil
}

// IsParty reports whether userID is the client or vendor of the milestone.
func (m *Milestone) IsParty(userID string) bool {
	return userID != "" && (userID == m.ClientID || userID == m.VendorID)
}

// Transition moves the milestone one step along PENDING -> IN_PROGRESS -> COMPLETED.
func (m *Milestone) Transition(next MilestoneStatus, now time.Time) error {
	if allowed, ok := milestoneTransitions[m.Status]; !ok || allowed != next {
		return fmt.Errorf("%w: milestone %s cannot move from %s to %s", ErrInvalidState, m.ID, m.Status, next)
	}

	m.Status = next
	m.UpdatedAt = now

	return nil
}

// MarkFunded records the escrow deposit.
func (m *Milestone) MarkFunded(now time.Time) error {
	if m.Status.IsTerminal() {
		return fmt.Errorf("%w: milestone %s is %s", ErrInvalidState, m.ID, m.Status)
	}
	if m.IsFunded() {
		return fmt.Errorf("%w: milestone %s is already funded", ErrInvalidState, m.ID)
	}

	m.FundedAt = &now
	m.UpdatedAt = now

	return nil
}

// CheckSettleable verifies that money may leave escrow for this milestone.
func (m *Milestone) CheckSettleable() error {
	if m.IsPaid || m.Status == MilestoneStatusPaid {
		return fmt.Errorf("%w: milestone %s", ErrAlreadySettled, m.ID)
	}
	if m.Status == MilestoneStatusCancelled {
		return fmt.Errorf("%w: milestone %s is cancelled", ErrInvalidState, m.ID)
	}
	if m.IsFrozen() {
		return fmt.Errorf("%w: milestone %s frozen by dispute %s", ErrMilestoneFrozen, m.ID, *m.FrozenBy)
	}
	return nil
}

// CheckPayable verifies that a vendor claim of amount may be filed or paid.
func (m *Milestone) CheckPayable(amount decimal.Decimal) error {
	if err := m.CheckSettleable(); err != nil {
		return err
	}
	if m.Status != MilestoneStatusCompleted {
		return fmt.Errorf("%w: milestone %s is %s, payment requires COMPLETED", ErrInvalidState, m.ID, m.Status)
	}
	held := m.Held()
	if amount.GreaterThan(held) {
		return fmt.Errorf("%w: requested %s exceeds held escrow %s", ErrInsufficientFunds, amount.StringFixed(2), held.StringFixed(2))
	}
	return nil
}

// ApplyRelease records a vendor release. The milestone becomes PAID on the
// release that empties escrow; the return value reports that flip.
func (m *Milestone) ApplyRelease(amount decimal.Decimal, now time.Time) bool {
	m.Released = m.Released.Add(amount)
	m.UpdatedAt = now

	if m.Held().IsZero() {
		m.markPaid(now)
		return true
	}

	return false
}

// ApplyResolution settles the whole remaining escrow as a dispute outcome.
// A positive vendor share marks the milestone PAID, otherwise CANCELLED.
func (m *Milestone) ApplyResolution(clientAmount, vendorAmount decimal.Decimal, now time.Time) {
	m.Refunded = m.Refunded.Add(clientAmount)
	m.Released = m.Released.Add(vendorAmount)
	m.FrozenBy = nil
	m.PendingCancellation = nil
	m.UpdatedAt = now

	if vendorAmount.IsPositive() {
		m.markPaid(now)
		return
	}

	m.Status = MilestoneStatusCancelled
}

// ApplyCancellation refunds and releases the remaining escrow and marks the
// milestone CANCELLED.
func (m *Milestone) ApplyCancellation(clientAmount, vendorAmount decimal.Decimal, now time.Time) {
	m.Refunded = m.Refunded.Add(clientAmount)
	m.Released = m.Released.Add(vendorAmount)
	m.Status = MilestoneStatusCancelled
	m.PendingCancellation = nil
	m.UpdatedAt = now
}

// SplitCancellation divides the held amount by refund percentage. The client
// share is rounded to cents and the vendor receives the exact remainder.
func (m *Milestone) SplitCancellation(refundPercentage decimal.Decimal) (clientAmount, vendorAmount decimal.Decimal) {
	held := m.Held()
	clientAmount = held.Mul(refundPercentage).Div(decimal.NewFromInt(100)).Round(2)
	if clientAmount.GreaterThan(held) {
		clientAmount = held
	}
	return clientAmount, held.Sub(clientAmount)
}

// Freeze marks the milestone as held by a dispute.
func (m *Milestone) Freeze(disputeID string, now time.Time) error {
	if m.IsFrozen() {
		return fmt.Errorf("%w: milestone %s already frozen by dispute %s", ErrConflict, m.ID, *m.FrozenBy)
	}
	m.FrozenBy = &disputeID
	m.UpdatedAt = now
	return nil
}

// Unfreeze lifts a dispute freeze.
func (m *Milestone) Unfreeze(now time.Time) {
	m.FrozenBy = nil
	m.UpdatedAt = now
}

func (m *Milestone) markPaid(now time.Time) {
	m.Status = MilestoneStatusPaid
	m.IsPaid = true
	m.PaidAt = &now
}
