package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/goescrow/internal/adapter/http/dto"
	"github.com/iho/goescrow/internal/domain"
	"github.com/iho/goescrow/internal/usecase"
)

// PaymentRequestService defines the behavior needed by PaymentRequestHandler.
type PaymentRequestService interface {
	ListRequests(ctx context.Context, filter domain.PaymentRequestFilter) ([]*domain.PaymentRequest, int64, error)
	Approve(ctx context.Context, requestID, note string) (*usecase.ApproveResult, error)
	Reject(ctx context.Context, requestID, reason string) (*domain.PaymentRequest, error)
}

// PaymentRequestHandler handles the finance queue of payment requests.
type PaymentRequestHandler struct {
	requestUC PaymentRequestService
}

// NewPaymentRequestHandler creates a new PaymentRequestHandler.
func NewPaymentRequestHandler(requestUC PaymentRequestService) *PaymentRequestHandler {
	return &PaymentRequestHandler{requestUC: requestUC}
}

// List lists payment requests, optionally by status and milestone.
func (h *PaymentRequestHandler) List(w http.ResponseWriter, r *http.Request) {
	page, limit, offset := parsePage(r)
	q := r.URL.Query()

	requests, total, err := h.requestUC.ListRequests(r.Context(), domain.PaymentRequestFilter{
		Status:      domain.PaymentRequestStatus(q.Get("status")),
		MilestoneID: q.Get("milestone_id"),
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		writeDomainError(w, r, "failed to list payment requests", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.NewPage(dto.PaymentRequestsFromDomain(requests), total, page, limit))
}

// Approve releases the requested amount to the vendor.
func (h *PaymentRequestHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var req dto.ReasonRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.requestUC.Approve(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeDomainError(w, r, "failed to approve payment request", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ApproveFromResult(result))
}

// Reject closes a pending request without moving money.
func (h *PaymentRequestHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req dto.ReasonRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	pr, err := h.requestUC.Reject(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeDomainError(w, r, "failed to reject payment request", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PaymentRequestFromDomain(pr))
}
