package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/goescrow/internal/adapter/http/dto"
	"github.com/iho/goescrow/internal/domain"
	"github.com/iho/goescrow/internal/usecase"
)

// TransactionService defines the behavior needed by TransactionHandler.
type TransactionService interface {
	RecordTransaction(ctx context.Context, input usecase.RecordTransactionInput) (*domain.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, int64, error)
	Reverse(ctx context.Context, input usecase.ReverseInput) (*domain.Transaction, error)
}

// TransactionHandler handles ledger transaction requests.
type TransactionHandler struct {
	ledgerUC TransactionService
}

// NewTransactionHandler creates a new TransactionHandler.
func NewTransactionHandler(ledgerUC TransactionService) *TransactionHandler {
	return &TransactionHandler{ledgerUC: ledgerUC}
}

// Record posts a transaction. Retrying with the same idempotency key
// returns the original transaction.
func (h *TransactionHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req dto.RecordTransactionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	txn, err := h.ledgerUC.RecordTransaction(r.Context(), req.ToUseCaseInput())
	if err != nil {
		writeDomainError(w, r, "failed to record transaction", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.TransactionFromDomain(txn))
}

// Get retrieves a transaction by ID.
func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing transaction ID", "")
		return
	}

	txn, err := h.ledgerUC.GetTransaction(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, "failed to get transaction", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.TransactionFromDomain(txn))
}

// List lists transactions filtered by status, type, account and milestone.
func (h *TransactionHandler) List(w http.ResponseWriter, r *http.Request) {
	page, limit, offset := parsePage(r)
	q := r.URL.Query()

	txns, total, err := h.ledgerUC.ListTransactions(r.Context(), domain.TransactionFilter{
		Status:      domain.TransactionStatus(q.Get("status")),
		Type:        domain.TransactionType(q.Get("type")),
		AccountID:   q.Get("account_id"),
		MilestoneID: q.Get("milestone_id"),
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		writeDomainError(w, r, "failed to list transactions", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.NewPage(dto.TransactionsFromDomain(txns), total, page, limit))
}

// Refund reverses all or part of a completed transaction.
func (h *TransactionHandler) Refund(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing transaction ID", "")
		return
	}

	var req dto.RefundRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	reversal, err := h.ledgerUC.Reverse(r.Context(), req.ToUseCaseInput(id))
	if err != nil {
		writeDomainError(w, r, "failed to refund transaction", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.TransactionFromDomain(reversal))
}
