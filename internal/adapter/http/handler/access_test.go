package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/iho/goescrow/internal/adapter/http/dto"
	"github.com/iho/goescrow/internal/adapter/repository/memory"
	"github.com/iho/goescrow/internal/domain"
	"github.com/iho/goescrow/internal/infrastructure/metrics"
	"github.com/iho/goescrow/internal/usecase"
	"github.com/iho/goescrow/internal/usecase/mocks"
)

// escrowWorld wires the real use cases over the in-memory store and seeds one
// funded milestone between client-1 and vendor-1 with an open dispute.
type escrowWorld struct {
	accounts   *AccountHandler
	milestones *MilestoneHandler
	disputes   *DisputeHandler

	milestone *domain.Milestone
	dispute   *domain.Dispute
}

func newEscrowWorld(t *testing.T) *escrowWorld {
	t.Helper()

	store := memory.NewStore()
	repos := memory.NewRepositories(store)
	txManager := memory.NewTxManager(store)
	idGen := mocks.NewMockIDGenerator()
	m := metrics.NewWithRegistry(prometheus.NewRegistry())

	ledger := usecase.NewLedgerUseCase(txManager, repos.Accounts, repos.Transactions, repos.Ledger,
		repos.Outbox, repos.Audit, idGen, nil, m)
	accountUC := usecase.NewAccountUseCase(txManager, repos.Accounts, repos.Outbox, repos.Audit, idGen, m)
	milestoneUC := usecase.NewMilestoneUseCase(txManager, repos.Accounts, repos.Milestones, repos.PaymentRequests,
		ledger, repos.Outbox, repos.Audit, idGen, nil, m)
	requestUC := usecase.NewPaymentRequestUseCase(txManager, repos.Milestones, repos.PaymentRequests, repos.Transactions,
		ledger, repos.Outbox, repos.Audit, idGen, nil, m)
	disputeUC := usecase.NewDisputeUseCase(txManager, repos.Milestones, repos.PaymentRequests, repos.Disputes,
		ledger, repos.Outbox, repos.Audit, idGen, nil, m)

	client := actorContext("client-1", domain.RoleClient)

	milestone, err := milestoneUC.CreateMilestone(client, usecase.CreateMilestoneInput{
		ProjectID: "project-1",
		Title:     "Landing page",
		ClientID:  "client-1",
		VendorID:  "vendor-1",
		Amount:    decimal.NewFromInt(5000),
		Currency:  "USD",
		Fund:      true,
	})
	if err != nil {
		t.Fatalf("failed to create milestone: %v", err)
	}

	dispute, err := disputeUC.OpenDispute(client, usecase.OpenDisputeInput{MilestoneID: milestone.ID, Reason: "late"})
	if err != nil {
		t.Fatalf("failed to open dispute: %v", err)
	}

	return &escrowWorld{
		accounts:   NewAccountHandler(accountUC, ledger),
		milestones: NewMilestoneHandler(milestoneUC, requestUC, disputeUC),
		disputes:   NewDisputeHandler(disputeUC),
		milestone:  milestone,
		dispute:    dispute,
	}
}

func actorContext(id string, role domain.Role) context.Context {
	return domain.ContextWithActor(context.Background(), &domain.Actor{ID: id, Role: role})
}

func getAs(ctx context.Context, target string, kv ...string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil).WithContext(ctx)
	return setChiURLParams(req, kv...)
}

func decodePage[T any](t *testing.T, rec *httptest.ResponseRecorder) dto.PageResponse[T] {
	t.Helper()

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var page dto.PageResponse[T]
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("failed to decode page: %v", err)
	}
	return page
}

func TestOutsiderSeesNothing(t *testing.T) {
	w := newEscrowWorld(t)
	outsider := actorContext("vendor-2", domain.RoleVendor)

	rec := httptest.NewRecorder()
	w.accounts.List(rec, getAs(outsider, "/accounts"))
	if page := decodePage[dto.AccountResponse](t, rec); len(page.Items) != 0 {
		t.Fatalf("expected no accounts for an outsider, got %+v", page.Items)
	}

	rec = httptest.NewRecorder()
	w.milestones.List(rec, getAs(outsider, "/projects/project-1/milestones", "projectId", "project-1"))
	if page := decodePage[dto.MilestoneResponse](t, rec); len(page.Items) != 0 {
		t.Fatalf("expected no milestones for an outsider, got %+v", page.Items)
	}

	rec = httptest.NewRecorder()
	w.disputes.List(rec, getAs(outsider, "/disputes"))
	if page := decodePage[dto.DisputeResponse](t, rec); len(page.Items) != 0 || page.Total != 0 {
		t.Fatalf("expected no disputes for an outsider, got %+v", page)
	}

	forbidden := []struct {
		name  string
		serve http.HandlerFunc
		req   *http.Request
	}{
		{"account", w.accounts.Get, getAs(outsider, "/accounts/x", "id", w.milestone.EscrowAccountID)},
		{"balance", w.accounts.Balance, getAs(outsider, "/accounts/x/balance", "id", w.milestone.ClientAccountID)},
		{"milestone", w.milestones.Get, getAs(outsider, "/projects/project-1/milestones/x", "projectId", "project-1", "id", w.milestone.ID)},
		{"dispute", w.disputes.Get, getAs(outsider, "/disputes/x", "id", w.dispute.ID)},
	}

	for _, tt := range forbidden {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.serve(rec, tt.req)
			if rec.Code != http.StatusForbidden {
				t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestPartiesSeeOnlyTheirOwnRecords(t *testing.T) {
	w := newEscrowWorld(t)
	vendor := actorContext("vendor-1", domain.RoleVendor)

	rec := httptest.NewRecorder()
	w.accounts.List(rec, getAs(vendor, "/accounts"))
	page := decodePage[dto.AccountResponse](t, rec)
	if len(page.Items) != 1 || page.Items[0].ID != w.milestone.VendorAccountID {
		t.Fatalf("expected only the vendor account, got %+v", page.Items)
	}

	rec = httptest.NewRecorder()
	w.accounts.Get(rec, getAs(vendor, "/accounts/x", "id", w.milestone.EscrowAccountID))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected the client's escrow account to be hidden, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	w.milestones.Get(rec, getAs(vendor, "/projects/project-1/milestones/x", "projectId", "project-1", "id", w.milestone.ID))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected the vendor to read its milestone, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	w.disputes.Get(rec, getAs(vendor, "/disputes/x", "id", w.dispute.ID))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected the defendant to read the dispute, got %d: %s", rec.Code, rec.Body.String())
	}

	viewer := actorContext("auditor-1", domain.RoleViewer)
	rec = httptest.NewRecorder()
	w.accounts.List(rec, getAs(viewer, "/accounts"))
	if page := decodePage[dto.AccountResponse](t, rec); len(page.Items) != 3 {
		t.Fatalf("expected a viewer to see all 3 accounts, got %d", len(page.Items))
	}
}
