package domain

import "time"

// Event types
const (
	EventTypeAccountCreated = "account.created"

	EventTypeTransactionRecorded = "transaction.recorded"
	EventTypeTransactionReversed = "transaction.reversed"

	EventTypeMilestoneCreated              = "milestone.created"
	EventTypeMilestoneFunded               = "milestone.funded"
	EventTypeMilestoneStatusChanged        = "milestone.status_changed"
	EventTypeMilestonePaid                 = "milestone.paid"
	EventTypeMilestoneCancelled            = "milestone.cancelled"
	EventTypeMilestoneCancellationDeferred = "milestone.cancellation_deferred"

	EventTypePaymentRequestFiled     = "payment_request.filed"
	EventTypePaymentRequestApproved  = "payment_request.approved"
	EventTypePaymentRequestRejected  = "payment_request.rejected"
	EventTypePaymentRequestCompleted = "payment_request.completed"

	EventTypeDisputeOpened        = "dispute.opened"
	EventTypeDisputeInvestigating = "dispute.investigating"
	EventTypeDisputeWithdrawn     = "dispute.withdrawn"
	EventTypeDisputeResolved      = "dispute.resolved"
)

// Aggregate types
const (
	AggregateTypeAccount        = "account"
	AggregateTypeTransaction    = "transaction"
	AggregateTypeMilestone      = "milestone"
	AggregateTypePaymentRequest = "payment_request"
	AggregateTypeDispute        = "dispute"
)

// OutboxEvent represents an event to be published
type OutboxEvent struct {
	ID            string
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       map[string]any
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Published     bool
}
