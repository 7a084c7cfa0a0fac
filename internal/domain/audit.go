package domain

import (
	"context"
	"encoding/json"
	"time"
)

// AuditLog represents an audit trail entry for compliance and debugging
type AuditLog struct {
	ID           string
	ActorID      string // Who performed the action
	Action       string // What action (milestone.cancel, dispute.resolve, etc.)
	ResourceType string // Type of resource (transaction, milestone, dispute)
	ResourceID   string
	RequestID    string
	BeforeState  JSON
	AfterState   JSON
	Status       string
	ErrorMessage string
	CreatedAt    time.Time
}

// JSON is a type alias for JSON data
type JSON map[string]any

// AuditAction represents different types of auditable actions
type AuditAction string

const (
	AuditActionAccountCreate AuditAction = "account.create"

	AuditActionTransactionRecord  AuditAction = "transaction.record"
	AuditActionTransactionReverse AuditAction = "transaction.reverse"

	AuditActionMilestoneCreate   AuditAction = "milestone.create"
	AuditActionMilestoneFund     AuditAction = "milestone.fund"
	AuditActionMilestoneStart    AuditAction = "milestone.start"
	AuditActionMilestoneComplete AuditAction = "milestone.complete"
	AuditActionMilestoneCancel   AuditAction = "milestone.cancel"
	AuditActionMilestoneDefer    AuditAction = "milestone.cancel_deferred"

	AuditActionPaymentRequestFile    AuditAction = "payment_request.file"
	AuditActionPaymentRequestApprove AuditAction = "payment_request.approve"
	AuditActionPaymentRequestReject  AuditAction = "payment_request.reject"
	AuditActionPaymentRequestSettle  AuditAction = "payment_request.settle"

	AuditActionDisputeOpen        AuditAction = "dispute.open"
	AuditActionDisputeInvestigate AuditAction = "dispute.investigate"
	AuditActionDisputeWithdraw    AuditAction = "dispute.withdraw"
	AuditActionDisputeResolve     AuditAction = "dispute.resolve"
)

// AuditStatus represents the status of an audited action
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusFailure AuditStatus = "failure"
	AuditStatusError   AuditStatus = "error"
)

// MarshalState converts a domain object to JSON for audit logging
func MarshalState(v any) JSON {
	if v == nil {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return JSON{"error": "failed to marshal state"}
	}

	var result JSON
	if err := json.Unmarshal(data, &result); err != nil {
		return JSON{"error": "failed to unmarshal state"}
	}

	return result
}

// AuditFilter defines filters for querying audit logs
type AuditFilter struct {
	ActorID      string
	Action       string
	ResourceType string
	ResourceID   string
	StartDate    *time.Time
	EndDate      *time.Time
	Limit        int
	Offset       int
}

type requestIDContextKey struct{}

// ContextWithRequestID returns a copy of ctx carrying the transport request id.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, requestID)
}

// RequestIDFromContext returns the request id recorded on audit logs.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}
