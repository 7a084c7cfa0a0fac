package errors

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/iho/goescrow/internal/domain"
)

// MapDomainError converts domain errors to gRPC status codes.
// Unknown errors become codes.Internal without exposing their detail.
func MapDomainError(err error) error {
	if err == nil {
		return nil
	}

	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	// Not Found errors
	case errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrTransactionNotFound),
		errors.Is(err, domain.ErrMilestoneNotFound),
		errors.Is(err, domain.ErrPaymentRequestNotFound),
		errors.Is(err, domain.ErrDisputeNotFound):
		return status.Error(codes.NotFound, err.Error())

	// Invalid Argument errors
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrSameAccount),
		errors.Is(err, domain.ErrCurrencyMismatch),
		errors.Is(err, domain.ErrInvalidTransaction),
		errors.Is(err, domain.ErrInvalidAccountKind),
		errors.Is(err, domain.ErrInvalidResolutionType),
		errors.Is(err, domain.ErrInvalidResolutionAmount),
		errors.Is(err, domain.ErrSplitMismatch),
		errors.Is(err, domain.ErrInvalidAccountName),
		errors.Is(err, domain.ErrInvalidCurrency),
		errors.Is(err, domain.ErrAmountTooLarge),
		errors.Is(err, domain.ErrAmountPrecision),
		errors.Is(err, domain.ErrMetadataTooLarge),
		errors.Is(err, domain.ErrInvalidPercentage),
		errors.Is(err, domain.ErrInvalidIdempotencyKey),
		errors.Is(err, domain.ErrReasonTooLong):
		return status.Error(codes.InvalidArgument, err.Error())

	// Precondition Failed errors (business rule violations)
	case errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrAccountInactive),
		errors.Is(err, domain.ErrAlreadySettled),
		errors.Is(err, domain.ErrMilestoneFrozen),
		errors.Is(err, domain.ErrRequestInFlight),
		errors.Is(err, domain.ErrInconsistentLedger):
		return status.Error(codes.FailedPrecondition, err.Error())

	// Retryable conflicts
	case errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrDuplicateOperation):
		return status.Error(codes.Aborted, err.Error())

	// Auth errors
	case errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrInvalidToken),
		errors.Is(err, domain.ErrExpiredToken):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		return status.Error(codes.PermissionDenied, err.Error())

	// Context errors (timeouts, cancellations)
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "operation timed out")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "operation was canceled")

	default:
		return status.Error(codes.Internal, "an internal error occurred")
	}
}
