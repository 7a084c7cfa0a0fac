package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/goescrow/internal/adapter/http/dto"
	"github.com/iho/goescrow/internal/domain"
	"github.com/iho/goescrow/internal/usecase"
)

// DisputeService defines the behavior needed by DisputeHandler.
type DisputeService interface {
	GetDispute(ctx context.Context, id string) (*domain.Dispute, error)
	ListDisputes(ctx context.Context, filter domain.DisputeFilter) ([]*domain.Dispute, int64, error)
	StartInvestigation(ctx context.Context, disputeID string) (*domain.Dispute, error)
	Withdraw(ctx context.Context, disputeID, reason string) (*usecase.WithdrawResult, error)
	Resolve(ctx context.Context, input usecase.ResolveDisputeInput) (*usecase.ResolveResult, error)
}

// DisputeHandler handles dispute and arbitration requests.
type DisputeHandler struct {
	disputeUC DisputeService
}

// NewDisputeHandler creates a new DisputeHandler.
func NewDisputeHandler(disputeUC DisputeService) *DisputeHandler {
	return &DisputeHandler{disputeUC: disputeUC}
}

// List lists disputes, optionally by status and milestone.
func (h *DisputeHandler) List(w http.ResponseWriter, r *http.Request) {
	page, limit, offset := parsePage(r)
	q := r.URL.Query()

	disputes, total, err := h.disputeUC.ListDisputes(r.Context(), domain.DisputeFilter{
		Status:      domain.DisputeStatus(q.Get("status")),
		MilestoneID: q.Get("milestone_id"),
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		writeDomainError(w, r, "failed to list disputes", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.NewPage(dto.DisputesFromDomain(disputes), total, page, limit))
}

// Get retrieves a dispute by ID.
func (h *DisputeHandler) Get(w http.ResponseWriter, r *http.Request) {
	d, err := h.disputeUC.GetDispute(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, "failed to get dispute", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.DisputeFromDomain(d))
}

// Investigate moves an open dispute to INVESTIGATING.
func (h *DisputeHandler) Investigate(w http.ResponseWriter, r *http.Request) {
	d, err := h.disputeUC.StartInvestigation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, "failed to start investigation", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.DisputeFromDomain(d))
}

// Withdraw drops the dispute and runs any cancellation it deferred.
func (h *DisputeHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req dto.ReasonRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.disputeUC.Withdraw(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeDomainError(w, r, "failed to withdraw dispute", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.WithdrawFromResult(result))
}

// Resolve applies an arbitration decision and settles the milestone.
func (h *DisputeHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req dto.ResolveDisputeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.disputeUC.Resolve(r.Context(), req.ToUseCaseInput(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, r, "failed to resolve dispute", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ResolveFromResult(result))
}
