package usecase

import "time"

const (
	// DefaultTransactionTimeout is the maximum duration for a database transaction
	// This prevents long-running transactions from blocking tables
	DefaultTransactionTimeout = 10 * time.Second

	// IdempotencyKeyTTL is how long idempotency keys are cached
	IdempotencyKeyTTL = 24 * time.Hour

	// IdempotencyInFlight is stored under a key while its first request runs
	IdempotencyInFlight = "processing"

	// DashboardCacheKey is the cache key of the finance dashboard projection
	DashboardCacheKey = "finance:dashboard"

	// DefaultDashboardTTL applies when no TTL is configured
	DefaultDashboardTTL = 30 * time.Second
)

// Idempotency keys of transactions posted by workflows. One key per leg
// lets a re-run workflow find the postings it already made.
func fundingKey(milestoneID string) string { return "milestone-fund:" + milestoneID }

func paymentKey(requestID string) string { return "payment-request:" + requestID }

func feeKey(requestID string) string { return "payment-request:" + requestID + ":fee" }

func disputeKey(disputeID, leg string) string { return "dispute:" + disputeID + ":" + leg }

func cancelKey(milestoneID, leg string) string { return "milestone-cancel:" + milestoneID + ":" + leg }
