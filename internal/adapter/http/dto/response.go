package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/goescrow/internal/domain"
	"github.com/iho/goescrow/internal/usecase"
)

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// PageResponse wraps one page of a listing.
type PageResponse[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
}

// NewPage builds a page from converted items.
func NewPage[T any](items []T, total int64, page, limit int) *PageResponse[T] {
	if items == nil {
		items = []T{}
	}
	return &PageResponse[T]{Items: items, Total: total, Page: page, Limit: limit}
}

// AccountResponse represents an account in API responses.
type AccountResponse struct {
	ID        string    `json:"id"`
	Kind      string      `json:"kind"`
	OwnerID   string      `json:"owner_id,omitempty"`
	Name      string      `json:"name"`
	Currency  string      `json:"currency"`
	Balance   Amount      `json:"balance"`
	Version   int64       `json:"version"`
	Active    bool        `json:"active"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// AccountFromDomain converts domain account to response.
func AccountFromDomain(a *domain.Account) *AccountResponse {
	return &AccountResponse{
		ID:        a.ID,
		Kind:      string(a.Kind),
		OwnerID:   a.OwnerID,
		Name:      a.Name,
		Currency:  a.Currency,
		Balance:   NewAmount(a.Balance),
		Version:   a.Version,
		Active:    a.Active,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

// AccountsFromDomain converts domain accounts to responses.
func AccountsFromDomain(accounts []*domain.Account) []*AccountResponse {
	result := make([]*AccountResponse, len(accounts))
	for i, a := range accounts {
		result[i] = AccountFromDomain(a)
	}
	return result
}

// BalanceResponse pairs the cached balance with the one derived from the
// transaction log.
type BalanceResponse struct {
	AccountID       string `json:"account_id"`
	Currency        string `json:"currency"`
	Balance         Amount `json:"balance"`
	ComputedBalance Amount `json:"computed_balance"`
}

// BalanceFromDomain converts an account and its computed balance.
func BalanceFromDomain(a *domain.Account, computed decimal.Decimal) *BalanceResponse {
	return &BalanceResponse{
		AccountID:       a.ID,
		Currency:        a.Currency,
		Balance:         NewAmount(a.Balance),
		ComputedBalance: NewAmount(computed),
	}
}

// TransactionResponse represents a transaction in API responses.
type TransactionResponse struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	FromAccountID  *string        `json:"from_account_id,omitempty"`
	ToAccountID    *string        `json:"to_account_id,omitempty"`
	Amount         Amount         `json:"amount"`
	Currency       string         `json:"currency"`
	Status         string         `json:"status"`
	IdempotencyKey string         `json:"idempotency_key"`
	MilestoneID    *string        `json:"milestone_id,omitempty"`
	ReversesID     *string        `json:"reverses_id,omitempty"`
	Reason         string         `json:"reason,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
}

// TransactionFromDomain converts domain transaction to response.
func TransactionFromDomain(t *domain.Transaction) *TransactionResponse {
	return &TransactionResponse{
		ID:             t.ID,
		Type:           string(t.Type),
		FromAccountID:  t.FromAccountID,
		ToAccountID:    t.ToAccountID,
		Amount:         NewAmount(t.Amount),
		Currency:       t.Currency,
		Status:         string(t.Status),
		IdempotencyKey: t.IdempotencyKey,
		MilestoneID:    t.MilestoneID,
		ReversesID:     t.ReversesID,
		Reason:         t.Reason,
		Metadata:       t.Metadata,
		CreatedAt:      t.CreatedAt,
		CompletedAt:    t.CompletedAt,
	}
}

// TransactionsFromDomain converts domain transactions to responses.
func TransactionsFromDomain(txns []*domain.Transaction) []*TransactionResponse {
	result := make([]*TransactionResponse, len(txns))
	for i, t := range txns {
		result[i] = TransactionFromDomain(t)
	}
	return result
}

// PendingCancellationResponse is a cancellation parked behind a dispute.
type PendingCancellationResponse struct {
	RefundPercentage decimal.Decimal `json:"refund_percentage"`
	Reason           string          `json:"reason"`
	RequestedBy      string          `json:"requested_by"`
	RequestedAt      time.Time       `json:"requested_at"`
}

// MilestoneResponse represents a milestone in API responses.
type MilestoneResponse struct {
	ID                  string                       `json:"id"`
	ProjectID           string                       `json:"project_id"`
	Title               string                       `json:"title"`
	ClientID            string                       `json:"client_id"`
	VendorID            string                       `json:"vendor_id"`
	EscrowAccountID     string                       `json:"escrow_account_id"`
	Amount              Amount                       `json:"amount"`
	Held                Amount                       `json:"held"`
	Released            Amount                       `json:"released"`
	Refunded            Amount                       `json:"refunded"`
	Currency            string                       `json:"currency"`
	Status              string                       `json:"status"`
	IsPaid              bool                         `json:"is_paid"`
	FrozenBy            *string                      `json:"frozen_by,omitempty"`
	PendingCancellation *PendingCancellationResponse `json:"pending_cancellation,omitempty"`
	DueDate             *time.Time                   `json:"due_date,omitempty"`
	FundedAt            *time.Time                   `json:"funded_at,omitempty"`
	PaidAt              *time.Time                   `json:"paid_at,omitempty"`
	Version             int64                        `json:"version"`
	CreatedAt           time.Time                    `json:"created_at"`
	UpdatedAt           time.Time                    `json:"updated_at"`
}

// MilestoneFromDomain converts domain milestone to response.
func MilestoneFromDomain(m *domain.Milestone) *MilestoneResponse {
	resp := &MilestoneResponse{
		ID:              m.ID,
		ProjectID:       m.ProjectID,
		Title:           m.Title,
		ClientID:        m.ClientID,
		VendorID:        m.VendorID,
		EscrowAccountID: m.EscrowAccountID,
		Amount:          NewAmount(m.Amount),
		Held:            NewAmount(m.Held()),
		Released:        NewAmount(m.Released),
		Refunded:        NewAmount(m.Refunded),
		Currency:        m.Currency,
		Status:          string(m.Status),
		IsPaid:          m.IsPaid,
		FrozenBy:        m.FrozenBy,
		DueDate:         m.DueDate,
		FundedAt:        m.FundedAt,
		PaidAt:          m.PaidAt,
		Version:         m.Version,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}

	if pc := m.PendingCancellation; pc != nil {
		resp.PendingCancellation = &PendingCancellationResponse{
			RefundPercentage: pc.RefundPercentage,
			Reason:           pc.Reason,
			RequestedBy:      pc.RequestedBy,
			RequestedAt:      pc.RequestedAt,
		}
	}

	return resp
}

// MilestonesFromDomain converts domain milestones to responses.
func MilestonesFromDomain(milestones []*domain.Milestone) []*MilestoneResponse {
	result := make([]*MilestoneResponse, len(milestones))
	for i, m := range milestones {
		result[i] = MilestoneFromDomain(m)
	}
	return result
}

// PaymentRequestResponse represents a payment request in API responses.
type PaymentRequestResponse struct {
	ID              string     `json:"id"`
	MilestoneID     string     `json:"milestone_id"`
	VendorAccountID string     `json:"vendor_account_id"`
	Amount          Amount     `json:"amount"`
	Currency        string     `json:"currency"`
	Status          string     `json:"status"`
	Note            string     `json:"note,omitempty"`
	DecisionNote    string     `json:"decision_note,omitempty"`
	RequestedBy     string     `json:"requested_by"`
	DecidedBy       string     `json:"decided_by,omitempty"`
	TransactionID   *string    `json:"transaction_id,omitempty"`
	RequestedAt     time.Time  `json:"requested_at"`
	DecidedAt       *time.Time `json:"decided_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// PaymentRequestFromDomain converts domain payment request to response.
func PaymentRequestFromDomain(r *domain.PaymentRequest) *PaymentRequestResponse {
	return &PaymentRequestResponse{
		ID:              r.ID,
		MilestoneID:     r.MilestoneID,
		VendorAccountID: r.VendorAccountID,
		Amount:          NewAmount(r.Amount),
		Currency:        r.Currency,
		Status:          string(r.Status),
		Note:            r.Note,
		DecisionNote:    r.DecisionNote,
		RequestedBy:     r.RequestedBy,
		DecidedBy:       r.DecidedBy,
		TransactionID:   r.TransactionID,
		RequestedAt:     r.RequestedAt,
		DecidedAt:       r.DecidedAt,
		CompletedAt:     r.CompletedAt,
	}
}

// PaymentRequestsFromDomain converts domain payment requests to responses.
func PaymentRequestsFromDomain(requests []*domain.PaymentRequest) []*PaymentRequestResponse {
	result := make([]*PaymentRequestResponse, len(requests))
	for i, r := range requests {
		result[i] = PaymentRequestFromDomain(r)
	}
	return result
}

// ResolutionResponse is the split recorded on a resolved dispute.
type ResolutionResponse struct {
	Type         string    `json:"type"`
	ClientAmount Amount    `json:"client_amount"`
	VendorAmount Amount    `json:"vendor_amount"`
	Note         string    `json:"note,omitempty"`
	ResolvedBy   string    `json:"resolved_by"`
	ResolvedAt   time.Time `json:"resolved_at"`
}

// DisputeResponse represents a dispute in API responses.
type DisputeResponse struct {
	ID           string              `json:"id"`
	MilestoneID  string              `json:"milestone_id"`
	ProjectID    string              `json:"project_id"`
	PlaintiffID  string              `json:"plaintiff_id"`
	DefendantID  string              `json:"defendant_id"`
	Reason       string              `json:"reason"`
	EscrowAmount Amount              `json:"escrow_amount"`
	Currency     string              `json:"currency"`
	Status       string              `json:"status"`
	Resolution   *ResolutionResponse `json:"resolution,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
	ResolvedAt   *time.Time          `json:"resolved_at,omitempty"`
}

// DisputeFromDomain converts domain dispute to response.
func DisputeFromDomain(d *domain.Dispute) *DisputeResponse {
	resp := &DisputeResponse{
		ID:           d.ID,
		MilestoneID:  d.MilestoneID,
		ProjectID:    d.ProjectID,
		PlaintiffID:  d.PlaintiffID,
		DefendantID:  d.DefendantID,
		Reason:       d.Reason,
		EscrowAmount: NewAmount(d.EscrowAmount),
		Currency:     d.Currency,
		Status:       string(d.Status),
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
		ResolvedAt:   d.ResolvedAt,
	}

	if r := d.Resolution; r != nil {
		resp.Resolution = &ResolutionResponse{
			Type:         string(r.Type),
			ClientAmount: NewAmount(r.ClientAmount),
			VendorAmount: NewAmount(r.VendorAmount),
			Note:         r.Note,
			ResolvedBy:   r.ResolvedBy,
			ResolvedAt:   r.ResolvedAt,
		}
	}

	return resp
}

// DisputesFromDomain converts domain disputes to responses.
func DisputesFromDomain(disputes []*domain.Dispute) []*DisputeResponse {
	result := make([]*DisputeResponse, len(disputes))
	for i, d := range disputes {
		result[i] = DisputeFromDomain(d)
	}
	return result
}

// ApproveResponse is returned when a payment request is approved.
type ApproveResponse struct {
	Request      *PaymentRequestResponse `json:"request"`
	Transactions []*TransactionResponse  `json:"transactions"`
	Replayed     bool                    `json:"replayed"`
}

// ApproveFromResult converts an approval result.
func ApproveFromResult(r *usecase.ApproveResult) *ApproveResponse {
	return &ApproveResponse{
		Request:      PaymentRequestFromDomain(r.Request),
		Transactions: TransactionsFromDomain(r.Transactions),
		Replayed:     r.Replayed,
	}
}

// CancelResponse is returned when a milestone is cancelled. Deferred means
// the milestone is frozen and the cancellation waits for the dispute.
type CancelResponse struct {
	Milestone    *MilestoneResponse     `json:"milestone"`
	Transactions []*TransactionResponse `json:"transactions"`
	Deferred     bool                   `json:"deferred"`
}

// CancelFromResult converts a cancellation result.
func CancelFromResult(r *usecase.CancelResult) *CancelResponse {
	return &CancelResponse{
		Milestone:    MilestoneFromDomain(r.Milestone),
		Transactions: TransactionsFromDomain(r.Transactions),
		Deferred:     r.Deferred,
	}
}

// SettlementResponse carries a closed dispute with the milestone it settled.
type SettlementResponse struct {
	Dispute      *DisputeResponse       `json:"dispute"`
	Milestone    *MilestoneResponse     `json:"milestone"`
	Transactions []*TransactionResponse `json:"transactions"`
}

// ResolveFromResult converts a resolution result.
func ResolveFromResult(r *usecase.ResolveResult) *SettlementResponse {
	return newSettlement(r.Dispute, r.Milestone, r.Transactions)
}

// WithdrawFromResult converts a withdrawal result.
func WithdrawFromResult(r *usecase.WithdrawResult) *SettlementResponse {
	return newSettlement(r.Dispute, r.Milestone, r.Transactions)
}

func newSettlement(d *domain.Dispute, m *domain.Milestone, txns []*domain.Transaction) *SettlementResponse {
	resp := &SettlementResponse{
		Dispute:      DisputeFromDomain(d),
		Transactions: TransactionsFromDomain(txns),
	}
	if m != nil {
		resp.Milestone = MilestoneFromDomain(m)
	}
	return resp
}

// CurrencyTotalsResponse aggregates activity of one currency.
type CurrencyTotalsResponse struct {
	Currency   string `json:"currency"`
	EscrowHeld Amount `json:"escrow_held"`
	Deposited  Amount `json:"deposited"`
	Released   Amount `json:"released"`
	Refunded   Amount `json:"refunded"`
	Fees       Amount `json:"fees"`
	Withdrawn  Amount `json:"withdrawn"`
}

// DashboardResponse is the finance overview.
type DashboardResponse struct {
	Totals                  []CurrencyTotalsResponse `json:"totals"`
	PendingPaymentRequests  int64                    `json:"pending_payment_requests"`
	ApprovedPaymentRequests int64                    `json:"approved_payment_requests"`
	OpenDisputes            int64                    `json:"open_disputes"`
	InvestigatingDisputes   int64                    `json:"investigating_disputes"`
	TransactionCount        int64                    `json:"transaction_count"`
	GeneratedAt             time.Time                `json:"generated_at"`
}

// DashboardFromDomain converts the finance dashboard.
func DashboardFromDomain(d *domain.FinanceDashboard) *DashboardResponse {
	totals := make([]CurrencyTotalsResponse, len(d.Totals))
	for i, t := range d.Totals {
		totals[i] = CurrencyTotalsResponse{
			Currency:   t.Currency,
			EscrowHeld: NewAmount(t.EscrowHeld),
			Deposited:  NewAmount(t.Deposited),
			Released:   NewAmount(t.Released),
			Refunded:   NewAmount(t.Refunded),
			Fees:       NewAmount(t.Fees),
			Withdrawn:  NewAmount(t.Withdrawn),
		}
	}

	return &DashboardResponse{
		Totals:                  totals,
		PendingPaymentRequests:  d.PendingPaymentRequests,
		ApprovedPaymentRequests: d.ApprovedPaymentRequests,
		OpenDisputes:            d.OpenDisputes,
		InvestigatingDisputes:   d.InvestigatingDisputes,
		TransactionCount:        d.TransactionCount,
		GeneratedAt:             d.GeneratedAt,
	}
}

// AccountDiscrepancyResponse is an account whose cached balance drifted.
type AccountDiscrepancyResponse struct {
	AccountID         string `json:"account_id"`
	Currency          string `json:"currency"`
	RecordedBalance   Amount `json:"recorded_balance"`
	CalculatedBalance Amount `json:"calculated_balance"`
	Difference        Amount `json:"difference"`
}

// MilestoneDiscrepancyResponse is a milestone that breaks conservation.
type MilestoneDiscrepancyResponse struct {
	MilestoneID string   `json:"milestone_id"`
	Status      string   `json:"status"`
	Escrowed    Amount   `json:"escrowed"`
	Settled     Amount   `json:"settled"`
	Problems    []string `json:"problems"`
}

// EscrowDiscrepancyResponse is an escrow account out of step with its milestones.
type EscrowDiscrepancyResponse struct {
	AccountID string `json:"account_id"`
	Currency  string `json:"currency"`
	Balance   Amount `json:"balance"`
	Held      Amount `json:"held"`
	Problem   string `json:"problem"`
}

// ConsistencyResponse reports the outcome of a full ledger check.
type ConsistencyResponse struct {
	Consistent             bool                           `json:"consistent"`
	TotalAccounts          int                            `json:"total_accounts"`
	ReconciledAccounts     int                            `json:"reconciled_accounts"`
	AccountDiscrepancies   []AccountDiscrepancyResponse   `json:"account_discrepancies"`
	TotalMilestones        int                            `json:"total_milestones"`
	MilestoneDiscrepancies []MilestoneDiscrepancyResponse `json:"milestone_discrepancies"`
	EscrowDiscrepancies    []EscrowDiscrepancyResponse    `json:"escrow_discrepancies"`
	CheckedAt              time.Time                      `json:"checked_at"`
}

// ConsistencyFromReport converts a reconciliation report.
func ConsistencyFromReport(r *usecase.ReconciliationReport) *ConsistencyResponse {
	resp := &ConsistencyResponse{
		Consistent:             r.LedgerConsistent,
		TotalAccounts:          r.TotalAccounts,
		ReconciledAccounts:     r.ReconciledAccounts,
		AccountDiscrepancies:   make([]AccountDiscrepancyResponse, 0, len(r.Discrepancies)),
		TotalMilestones:        r.TotalMilestones,
		MilestoneDiscrepancies: make([]MilestoneDiscrepancyResponse, 0, len(r.MilestoneDiscrepancies)),
		EscrowDiscrepancies:    make([]EscrowDiscrepancyResponse, 0, len(r.EscrowDiscrepancies)),
		CheckedAt:              r.CheckedAt,
	}

	for _, d := range r.Discrepancies {
		resp.AccountDiscrepancies = append(resp.AccountDiscrepancies, AccountDiscrepancyResponse{
			AccountID:         d.AccountID,
			Currency:          d.Currency,
			RecordedBalance:   NewAmount(d.RecordedBalance),
			CalculatedBalance: NewAmount(d.CalculatedBalance),
			Difference:        NewAmount(d.Difference),
		})
	}

	for _, d := range r.MilestoneDiscrepancies {
		resp.MilestoneDiscrepancies = append(resp.MilestoneDiscrepancies, MilestoneDiscrepancyResponse{
			MilestoneID: d.MilestoneID,
			Status:      string(d.Status),
			Escrowed:    NewAmount(d.Escrowed),
			Settled:     NewAmount(d.Settled),
			Problems:    d.Problems,
		})
	}

	for _, d := range r.EscrowDiscrepancies {
		resp.EscrowDiscrepancies = append(resp.EscrowDiscrepancies, EscrowDiscrepancyResponse{
			AccountID: d.AccountID,
			Currency:  d.Currency,
			Balance:   NewAmount(d.Balance),
			Held:      NewAmount(d.Held),
			Problem:   d.Problem,
		})
	}

	return resp
}

// AuditLogResponse represents an audit log entry in API responses.
type AuditLogResponse struct {
	ID           string         `json:"id"`
	ActorID      string         `json:"actor_id"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	RequestID    string         `json:"request_id,omitempty"`
	BeforeState  map[string]any `json:"before_state,omitempty"`
	AfterState   map[string]any `json:"after_state,omitempty"`
	Status       string         `json:"status"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// AuditLogsFromDomain converts domain audit logs to responses.
func AuditLogsFromDomain(logs []*domain.AuditLog) []*AuditLogResponse {
	result := make([]*AuditLogResponse, len(logs))
	for i, l := range logs {
		result[i] = &AuditLogResponse{
			ID:           l.ID,
			ActorID:      l.ActorID,
			Action:       l.Action,
			ResourceType: l.ResourceType,
			ResourceID:   l.ResourceID,
			RequestID:    l.RequestID,
			BeforeState:  l.BeforeState,
			AfterState:   l.AfterState,
			Status:       l.Status,
			ErrorMessage: l.ErrorMessage,
			CreatedAt:    l.CreatedAt,
		}
	}
	return result
}
