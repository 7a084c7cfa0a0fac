package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/goescrow/internal/adapter/http/dto"
	"github.com/iho/goescrow/internal/domain"
	"github.com/iho/goescrow/internal/usecase"
)

// MilestoneService defines the behavior needed by MilestoneHandler.
type MilestoneService interface {
	CreateMilestone(ctx context.Context, input usecase.CreateMilestoneInput) (*domain.Milestone, error)
	GetMilestone(ctx context.Context, projectID, milestoneID string) (*domain.Milestone, error)
	ListMilestones(ctx context.Context, projectID string, limit, offset int) ([]*domain.Milestone, error)
	FundMilestone(ctx context.Context, milestoneID string) (*domain.Milestone, error)
	StartWork(ctx context.Context, milestoneID string) (*domain.Milestone, error)
	MarkCompleted(ctx context.Context, milestoneID string) (*domain.Milestone, error)
	CancelMilestone(ctx context.Context, input usecase.CancelMilestoneInput) (*usecase.CancelResult, error)
}

// PaymentRequestFiler files vendor payment requests.
type PaymentRequestFiler interface {
	FileRequest(ctx context.Context, input usecase.FileRequestInput) (*domain.PaymentRequest, error)
}

// DisputeOpener opens disputes.
type DisputeOpener interface {
	OpenDispute(ctx context.Context, input usecase.OpenDisputeInput) (*domain.Dispute, error)
}

// MilestoneHandler handles the milestone routes nested under a project.
type MilestoneHandler struct {
	milestoneUC MilestoneService
	requests    PaymentRequestFiler
	disputes    DisputeOpener
}

// NewMilestoneHandler creates a new MilestoneHandler.
func NewMilestoneHandler(milestoneUC MilestoneService, requests PaymentRequestFiler, disputes DisputeOpener) *MilestoneHandler {
	return &MilestoneHandler{
		milestoneUC: milestoneUC,
		requests:    requests,
		disputes:    disputes,
	}
}

// Create creates a milestone in the project, optionally funding it.
func (h *MilestoneHandler) Create(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectId")

	var req dto.CreateMilestoneRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	m, err := h.milestoneUC.CreateMilestone(r.Context(), req.ToUseCaseInput(projectID))
	if err != nil {
		writeDomainError(w, r, "failed to create milestone", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.MilestoneFromDomain(m))
}

// List lists the milestones of a project.
func (h *MilestoneHandler) List(w http.ResponseWriter, r *http.Request) {
	page, limit, offset := parsePage(r)

	milestones, err := h.milestoneUC.ListMilestones(r.Context(), chi.URLParam(r, "projectId"), limit, offset)
	if err != nil {
		writeDomainError(w, r, "failed to list milestones", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.NewPage(dto.MilestonesFromDomain(milestones), int64(len(milestones)), page, limit))
}

// Get retrieves a milestone of the project.
func (h *MilestoneHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, ok := h.load(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, dto.MilestoneFromDomain(m))
}

// Fund records the escrow deposit of an unfunded milestone.
func (h *MilestoneHandler) Fund(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "failed to fund milestone", h.milestoneUC.FundMilestone)
}

// Start moves a milestone to IN_PROGRESS.
func (h *MilestoneHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "failed to start milestone", h.milestoneUC.StartWork)
}

// Complete moves a milestone to COMPLETED.
func (h *MilestoneHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "failed to complete milestone", h.milestoneUC.MarkCompleted)
}

// Cancel cancels a milestone. A cancellation parked behind an active
// dispute answers 202.
func (h *MilestoneHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	m, ok := h.load(w, r)
	if !ok {
		return
	}

	var req dto.CancelMilestoneRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.milestoneUC.CancelMilestone(r.Context(), req.ToUseCaseInput(m.ID))
	if err != nil {
		writeDomainError(w, r, "failed to cancel milestone", err)
		return
	}

	status := http.StatusOK
	if result.Deferred {
		status = http.StatusAccepted
	}
	writeJSON(w, status, dto.CancelFromResult(result))
}

// FilePaymentRequest files a vendor payment request against the milestone.
func (h *MilestoneHandler) FilePaymentRequest(w http.ResponseWriter, r *http.Request) {
	m, ok := h.load(w, r)
	if !ok {
		return
	}

	var req dto.FilePaymentRequestRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	pr, err := h.requests.FileRequest(r.Context(), req.ToUseCaseInput(m.ID))
	if err != nil {
		writeDomainError(w, r, "failed to file payment request", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.PaymentRequestFromDomain(pr))
}

// OpenDispute opens a dispute and freezes the milestone.
func (h *MilestoneHandler) OpenDispute(w http.ResponseWriter, r *http.Request) {
	m, ok := h.load(w, r)
	if !ok {
		return
	}

	var req dto.OpenDisputeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	d, err := h.disputes.OpenDispute(r.Context(), req.ToUseCaseInput(m.ID))
	if err != nil {
		writeDomainError(w, r, "failed to open dispute", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.DisputeFromDomain(d))
}

func (h *MilestoneHandler) transition(
	w http.ResponseWriter,
	r *http.Request,
	message string,
	apply func(ctx context.Context, milestoneID string) (*domain.Milestone, error),
) {
	m, ok := h.load(w, r)
	if !ok {
		return
	}

	m, err := apply(r.Context(), m.ID)
	if err != nil {
		writeDomainError(w, r, message, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.MilestoneFromDomain(m))
}

// load resolves the milestone in the URL and checks it belongs to the project.
func (h *MilestoneHandler) load(w http.ResponseWriter, r *http.Request) (*domain.Milestone, bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing milestone ID", "")
		return nil, false
	}

	m, err := h.milestoneUC.GetMilestone(r.Context(), chi.URLParam(r, "projectId"), id)
	if err != nil {
		writeDomainError(w, r, "failed to get milestone", err)
		return nil, false
	}

	return m, true
}
