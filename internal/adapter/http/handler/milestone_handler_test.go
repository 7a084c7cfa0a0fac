package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/iho/goescrow/internal/adapter/http/dto"
	"github.com/iho/goescrow/internal/domain"
	"github.com/iho/goescrow/internal/usecase"
)

type milestoneServiceStub struct {
	createFn   func(ctx context.Context, input usecase.CreateMilestoneInput) (*domain.Milestone, error)
	getFn      func(ctx context.Context, projectID, milestoneID string) (*domain.Milestone, error)
	listFn     func(ctx context.Context, projectID string, limit, offset int) ([]*domain.Milestone, error)
	fundFn     func(ctx context.Context, milestoneID string) (*domain.Milestone, error)
	startFn    func(ctx context.Context, milestoneID string) (*domain.Milestone, error)
	completeFn func(ctx context.Context, milestoneID string) (*domain.Milestone, error)
	cancelFn   func(ctx context.Context, input usecase.CancelMilestoneInput) (*usecase.CancelResult, error)
}

func (s *milestoneServiceStub) CreateMilestone(ctx context.Context, input usecase.CreateMilestoneInput) (*domain.Milestone, error) {
	return s.createFn(ctx, input)
}

func (s *milestoneServiceStub) GetMilestone(ctx context.Context, projectID, milestoneID string) (*domain.Milestone, error) {
	return s.getFn(ctx, projectID, milestoneID)
}

func (s *milestoneServiceStub) ListMilestones(ctx context.Context, projectID string, limit, offset int) ([]*domain.Milestone, error) {
	return s.listFn(ctx, projectID, limit, offset)
}

func (s *milestoneServiceStub) FundMilestone(ctx context.Context, milestoneID string) (*domain.Milestone, error) {
	return s.fundFn(ctx, milestoneID)
}

func (s *milestoneServiceStub) StartWork(ctx context.Context, milestoneID string) (*domain.Milestone, error) {
	return s.startFn(ctx, milestoneID)
}

func (s *milestoneServiceStub) MarkCompleted(ctx context.Context, milestoneID string) (*domain.Milestone, error) {
	return s.completeFn(ctx, milestoneID)
}

func (s *milestoneServiceStub) CancelMilestone(ctx context.Context, input usecase.CancelMilestoneInput) (*usecase.CancelResult, error) {
	return s.cancelFn(ctx, input)
}

type fileRequestStub func(ctx context.Context, input usecase.FileRequestInput) (*domain.PaymentRequest, error)

func (f fileRequestStub) FileRequest(ctx context.Context, input usecase.FileRequestInput) (*domain.PaymentRequest, error) {
	return f(ctx, input)
}

type openDisputeStub func(ctx context.Context, input usecase.OpenDisputeInput) (*domain.Dispute, error)

func (f openDisputeStub) OpenDispute(ctx context.Context, input usecase.OpenDisputeInput) (*domain.Dispute, error) {
	return f(ctx, input)
}

// projectMilestone answers GetMilestone for milestone m-1 of project p-1 only.
func projectMilestone(status domain.MilestoneStatus) func(ctx context.Context, projectID, milestoneID string) (*domain.Milestone, error) {
	return func(ctx context.Context, projectID, milestoneID string) (*domain.Milestone, error) {
		if projectID != "p-1" || milestoneID != "m-1" {
			return nil, domain.ErrMilestoneNotFound
		}
		return &domain.Milestone{
			ID:        "m-1",
			ProjectID: "p-1",
			Amount:    decimal.NewFromInt(5000),
			Currency:  "USD",
			Status:    status,
		}, nil
	}
}

func milestoneRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	return setChiURLParams(req, "projectId", "p-1", "id", "m-1")
}

func TestMilestoneHandler_Create(t *testing.T) {
	var captured usecase.CreateMilestoneInput
	handler := NewMilestoneHandler(&milestoneServiceStub{
		createFn: func(ctx context.Context, input usecase.CreateMilestoneInput) (*domain.Milestone, error) {
			captured = input
			return &domain.Milestone{ID: "m-1", ProjectID: input.ProjectID, Amount: input.Amount, Status: domain.MilestoneStatusPending}, nil
		},
	}, nil, nil)

	body := `{"title":"Design","client_id":"client-1","vendor_id":"vendor-1","amount":"5000.00","currency":"USD","fund":true}`
	req := httptest.NewRequest(http.MethodPost, "/projects/p-1/milestones", bytes.NewBufferString(body))
	req = setChiURLParams(req, "projectId", "p-1")
	rec := httptest.NewRecorder()

	handler.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.ProjectID != "p-1" || !captured.Fund || !captured.Amount.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("unexpected input %+v", captured)
	}
}

func TestMilestoneHandler_Get_WrongProject(t *testing.T) {
	handler := NewMilestoneHandler(&milestoneServiceStub{
		getFn: projectMilestone(domain.MilestoneStatusPending),
	}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/projects/p-2/milestones/m-1", nil)
	req = setChiURLParams(req, "projectId", "p-2", "id", "m-1")
	rec := httptest.NewRecorder()

	handler.Get(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestMilestoneHandler_List(t *testing.T) {
	handler := NewMilestoneHandler(&milestoneServiceStub{
		listFn: func(ctx context.Context, projectID string, limit, offset int) ([]*domain.Milestone, error) {
			if projectID != "p-1" || limit != defaultPageLimit || offset != 0 {
				t.Fatalf("unexpected list args %s %d %d", projectID, limit, offset)
			}
			return []*domain.Milestone{{ID: "m-1"}, {ID: "m-2"}}, nil
		},
	}, nil, nil)

	req := setChiURLParams(httptest.NewRequest(http.MethodGet, "/projects/p-1/milestones", nil), "projectId", "p-1")
	rec := httptest.NewRecorder()

	handler.List(rec, req)

	var resp dto.PageResponse[dto.MilestoneResponse]
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("expected 2 milestones, got %d", len(resp.Items))
	}
}

func TestMilestoneHandler_Transitions(t *testing.T) {
	var called []string
	record := func(name string, status domain.MilestoneStatus) func(ctx context.Context, id string) (*domain.Milestone, error) {
		return func(ctx context.Context, id string) (*domain.Milestone, error) {
			called = append(called, name+":"+id)
			return &domain.Milestone{ID: id, Status: status}, nil
		}
	}

	handler := NewMilestoneHandler(&milestoneServiceStub{
		getFn:      projectMilestone(domain.MilestoneStatusPending),
		fundFn:     record("fund", domain.MilestoneStatusPending),
		startFn:    record("start", domain.MilestoneStatusInProgress),
		completeFn: record("complete", domain.MilestoneStatusCompleted),
	}, nil, nil)

	tests := []struct {
		name   string
		handle http.HandlerFunc
		status string
	}{
		{"fund", handler.Fund, "PENDING"},
		{"start", handler.Start, "IN_PROGRESS"},
		{"complete", handler.Complete, "COMPLETED"},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		tt.handle(rec, milestoneRequest(http.MethodPost, "/projects/p-1/milestones/m-1/"+tt.name, ""))

		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", tt.name, rec.Code)
		}

		var resp dto.MilestoneResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("%s: failed to decode response: %v", tt.name, err)
		}
		if resp.Status != tt.status {
			t.Fatalf("%s: expected status %s, got %s", tt.name, tt.status, resp.Status)
		}
	}

	if len(called) != 3 || called[0] != "fund:m-1" || called[2] != "complete:m-1" {
		t.Fatalf("unexpected calls %v", called)
	}
}

func TestMilestoneHandler_Start_Frozen(t *testing.T) {
	handler := NewMilestoneHandler(&milestoneServiceStub{
		getFn: projectMilestone(domain.MilestoneStatusPending),
		startFn: func(ctx context.Context, id string) (*domain.Milestone, error) {
			return nil, domain.ErrMilestoneFrozen
		},
	}, nil, nil)

	rec := httptest.NewRecorder()
	handler.Start(rec, milestoneRequest(http.MethodPost, "/projects/p-1/milestones/m-1/start", ""))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestMilestoneHandler_Cancel(t *testing.T) {
	tests := []struct {
		name     string
		deferred bool
		want     int
	}{
		{"settled now", false, http.StatusOK},
		{"deferred by dispute", true, http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured usecase.CancelMilestoneInput
			handler := NewMilestoneHandler(&milestoneServiceStub{
				getFn: projectMilestone(domain.MilestoneStatusInProgress),
				cancelFn: func(ctx context.Context, input usecase.CancelMilestoneInput) (*usecase.CancelResult, error) {
					captured = input
					return &usecase.CancelResult{
						Milestone: &domain.Milestone{ID: input.MilestoneID},
						Deferred:  tt.deferred,
					}, nil
				},
			}, nil, nil)

			rec := httptest.NewRecorder()
			handler.Cancel(rec, milestoneRequest(http.MethodPost, "/projects/p-1/milestones/m-1/cancel",
				`{"refund_percentage": 60, "reason": "client withdrew"}`))

			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
			if captured.MilestoneID != "m-1" || !captured.RefundPercentage.Equal(decimal.NewFromInt(60)) {
				t.Fatalf("unexpected input %+v", captured)
			}

			var resp dto.CancelResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Deferred != tt.deferred {
				t.Fatalf("expected deferred=%v, got %v", tt.deferred, resp.Deferred)
			}
		})
	}
}

func TestMilestoneHandler_FilePaymentRequest(t *testing.T) {
	var captured usecase.FileRequestInput
	handler := NewMilestoneHandler(&milestoneServiceStub{
		getFn: projectMilestone(domain.MilestoneStatusCompleted),
	}, fileRequestStub(func(ctx context.Context, input usecase.FileRequestInput) (*domain.PaymentRequest, error) {
		captured = input
		return &domain.PaymentRequest{ID: "pr-1", MilestoneID: input.MilestoneID, Amount: input.Amount, Status: domain.PaymentRequestStatusPending}, nil
	}), nil)

	rec := httptest.NewRecorder()
	handler.FilePaymentRequest(rec, milestoneRequest(http.MethodPost, "/projects/p-1/milestones/m-1/payment-requests",
		`{"amount":"5000.00","note":"delivered"}`))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.MilestoneID != "m-1" || captured.Note != "delivered" {
		t.Fatalf("unexpected input %+v", captured)
	}
}

func TestMilestoneHandler_FilePaymentRequest_InFlight(t *testing.T) {
	handler := NewMilestoneHandler(&milestoneServiceStub{
		getFn: projectMilestone(domain.MilestoneStatusCompleted),
	}, fileRequestStub(func(ctx context.Context, input usecase.FileRequestInput) (*domain.PaymentRequest, error) {
		return nil, domain.ErrRequestInFlight
	}), nil)

	rec := httptest.NewRecorder()
	handler.FilePaymentRequest(rec, milestoneRequest(http.MethodPost, "/projects/p-1/milestones/m-1/payment-requests", `{}`))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestMilestoneHandler_OpenDispute(t *testing.T) {
	var captured usecase.OpenDisputeInput
	handler := NewMilestoneHandler(&milestoneServiceStub{
		getFn: projectMilestone(domain.MilestoneStatusInProgress),
	}, nil, openDisputeStub(func(ctx context.Context, input usecase.OpenDisputeInput) (*domain.Dispute, error) {
		captured = input
		return &domain.Dispute{ID: "d-1", MilestoneID: input.MilestoneID, Status: domain.DisputeStatusOpen}, nil
	}))

	rec := httptest.NewRecorder()
	handler.OpenDispute(rec, milestoneRequest(http.MethodPost, "/projects/p-1/milestones/m-1/disputes", `{"reason":"late delivery"}`))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.MilestoneID != "m-1" || captured.Reason != "late delivery" {
		t.Fatalf("unexpected input %+v", captured)
	}
}
