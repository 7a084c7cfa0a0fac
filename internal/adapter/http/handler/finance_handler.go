package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/iho/goescrow/internal/adapter/http/dto"
	"github.com/iho/goescrow/internal/domain"
	"github.com/iho/goescrow/internal/usecase"
)

// FinanceService serves the finance read models.
type FinanceService interface {
	Dashboard(ctx context.Context) (*domain.FinanceDashboard, error)
	AuditTrail(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditLog, error)
}

// ReconciliationService produces the ledger consistency report.
type ReconciliationService interface {
	GenerateReconciliationReport(ctx context.Context) (*usecase.ReconciliationReport, error)
}

// FinanceHandler handles ledger-wide finance views.
type FinanceHandler struct {
	financeUC FinanceService
	reconUC   ReconciliationService
}

// NewFinanceHandler creates a new FinanceHandler.
func NewFinanceHandler(financeUC FinanceService, reconUC ReconciliationService) *FinanceHandler {
	return &FinanceHandler{financeUC: financeUC, reconUC: reconUC}
}

// Dashboard returns escrow totals and the state of the finance queues.
func (h *FinanceHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := h.financeUC.Dashboard(r.Context())
	if err != nil {
		writeDomainError(w, r, "failed to build dashboard", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.DashboardFromDomain(dashboard))
}

// CheckConsistency runs a full reconciliation. An inconsistent ledger
// answers 409 with the report.
func (h *FinanceHandler) CheckConsistency(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconUC.GenerateReconciliationReport(r.Context())
	if err != nil {
		writeDomainError(w, r, "failed to check consistency", err)
		return
	}

	status := http.StatusOK
	if !report.LedgerConsistent {
		status = http.StatusConflict
	}
	writeJSON(w, status, dto.ConsistencyFromReport(report))
}

// Audit lists audit log entries, newest first.
func (h *FinanceHandler) Audit(w http.ResponseWriter, r *http.Request) {
	page, limit, offset := parsePage(r)
	q := r.URL.Query()

	filter := domain.AuditFilter{
		ActorID:      q.Get("actor_id"),
		Action:       q.Get("action"),
		ResourceType: q.Get("resource_type"),
		ResourceID:   q.Get("resource_id"),
		Limit:        limit,
		Offset:       offset,
	}

	var ok bool
	if filter.StartDate, ok = parseTimeQuery(w, r, "from"); !ok {
		return
	}
	if filter.EndDate, ok = parseTimeQuery(w, r, "to"); !ok {
		return
	}

	logs, err := h.financeUC.AuditTrail(r.Context(), filter)
	if err != nil {
		writeDomainError(w, r, "failed to list audit logs", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.NewPage(dto.AuditLogsFromDomain(logs), int64(len(logs)), page, limit))
}

func parseTimeQuery(w http.ResponseWriter, r *http.Request, key string) (*time.Time, bool) {
	val := r.URL.Query().Get(key)
	if val == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+key+" timestamp", err.Error())
		return nil, false
	}
	return &t, true
}
