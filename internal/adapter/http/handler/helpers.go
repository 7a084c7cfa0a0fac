package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/iho/goescrow/internal/adapter/http/dto"
	"github.com/iho/goescrow/internal/domain"
)

const defaultPageLimit = 20

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(dto.ErrorResponse{
		Error:   message,
		Message: details,
	})
}

// writeDomainError maps err to a status and writes it. Internal errors are
// logged and their detail is not sent to the caller.
func writeDomainError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := mapDomainError(err)
	if status == http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg(message)
		writeError(w, status, message, "internal error")
		return
	}
	writeError(w, status, message, err.Error())
}

// mapDomainError maps domain errors to HTTP status codes.
func mapDomainError(err error) int {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrTransactionNotFound),
		errors.Is(err, domain.ErrMilestoneNotFound),
		errors.Is(err, domain.ErrPaymentRequestNotFound),
		errors.Is(err, domain.ErrDisputeNotFound):
		return http.StatusNotFound

	case errors.Is(err, domain.ErrSplitMismatch),
		errors.Is(err, domain.ErrInvalidResolutionAmount),
		errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrAccountInactive):
		return http.StatusUnprocessableEntity

	case errors.Is(err, domain.ErrAlreadySettled),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrMilestoneFrozen),
		errors.Is(err, domain.ErrDuplicateOperation),
		errors.Is(err, domain.ErrRequestInFlight),
		errors.Is(err, domain.ErrInconsistentLedger):
		return http.StatusConflict

	case errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrInvalidToken),
		errors.Is(err, domain.ErrExpiredToken):
		return http.StatusUnauthorized

	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden

	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrSameAccount),
		errors.Is(err, domain.ErrCurrencyMismatch),
		errors.Is(err, domain.ErrInvalidTransaction),
		errors.Is(err, domain.ErrInvalidAccountKind),
		errors.Is(err, domain.ErrInvalidResolutionType),
		errors.Is(err, domain.ErrInvalidAccountName),
		errors.Is(err, domain.ErrInvalidCurrency),
		errors.Is(err, domain.ErrAmountTooLarge),
		errors.Is(err, domain.ErrAmountPrecision),
		errors.Is(err, domain.ErrMetadataTooLarge),
		errors.Is(err, domain.ErrInvalidPercentage),
		errors.Is(err, domain.ErrInvalidIdempotencyKey),
		errors.Is(err, domain.ErrReasonTooLong):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON decodes the request body into v. An empty body leaves v as is.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	return true
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultValue int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return i
}

// parsePage reads 1-based page and limit query parameters.
func parsePage(r *http.Request) (page, limit, offset int) {
	page = parseIntQuery(r, "page", 1)
	if page < 1 {
		page = 1
	}
	limit, _, _ = domain.ValidatePagination(parseIntQuery(r, "limit", defaultPageLimit), 0)
	return page, limit, (page - 1) * limit
}
