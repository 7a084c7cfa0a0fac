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

type paymentRequestServiceStub struct {
	listFn    func(ctx context.Context, filter domain.PaymentRequestFilter) ([]*domain.PaymentRequest, int64, error)
	approveFn func(ctx context.Context, requestID, note string) (*usecase.ApproveResult, error)
	rejectFn  func(ctx context.Context, requestID, reason string) (*domain.PaymentRequest, error)
}

func (s *paymentRequestServiceStub) ListRequests(ctx context.Context, filter domain.PaymentRequestFilter) ([]*domain.PaymentRequest, int64, error) {
	return s.listFn(ctx, filter)
}

func (s *paymentRequestServiceStub) Approve(ctx context.Context, requestID, note string) (*usecase.ApproveResult, error) {
	return s.approveFn(ctx, requestID, note)
}

func (s *paymentRequestServiceStub) Reject(ctx context.Context, requestID, reason string) (*domain.PaymentRequest, error) {
	return s.rejectFn(ctx, requestID, reason)
}

func TestPaymentRequestHandler_List(t *testing.T) {
	handler := NewPaymentRequestHandler(&paymentRequestServiceStub{
		listFn: func(ctx context.Context, filter domain.PaymentRequestFilter) ([]*domain.PaymentRequest, int64, error) {
			if filter.Status != domain.PaymentRequestStatusPending {
				t.Fatalf("expected PENDING filter, got %q", filter.Status)
			}
			return []*domain.PaymentRequest{{ID: "pr-1"}}, 1, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/finance/payment-requests?status=PENDING", nil)
	rec := httptest.NewRecorder()

	handler.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestPaymentRequestHandler_Approve(t *testing.T) {
	handler := NewPaymentRequestHandler(&paymentRequestServiceStub{
		approveFn: func(ctx context.Context, requestID, note string) (*usecase.ApproveResult, error) {
			if requestID != "pr-1" || note != "looks good" {
				t.Fatalf("unexpected args %s %q", requestID, note)
			}
			return &usecase.ApproveResult{
				Request: &domain.PaymentRequest{ID: "pr-1", Status: domain.PaymentRequestStatusCompleted},
				Transactions: []*domain.Transaction{
					{ID: "txn-1", Type: domain.TransactionTypePayment, Amount: decimal.NewFromInt(4875)},
					{ID: "txn-2", Type: domain.TransactionTypeFee, Amount: decimal.NewFromInt(125)},
				},
			}, nil
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/finance/payment-requests/pr-1/approve", bytes.NewBufferString(`{"reason":"looks good"}`))
	req = setChiURLParams(req, "id", "pr-1")
	rec := httptest.NewRecorder()

	handler.Approve(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp dto.ApproveResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Request.Status != "COMPLETED" || len(resp.Transactions) != 2 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestPaymentRequestHandler_Approve_AlreadySettled(t *testing.T) {
	handler := NewPaymentRequestHandler(&paymentRequestServiceStub{
		approveFn: func(ctx context.Context, requestID, note string) (*usecase.ApproveResult, error) {
			return nil, domain.ErrAlreadySettled
		},
	})

	req := setChiURLParams(httptest.NewRequest(http.MethodPost, "/finance/payment-requests/pr-1/approve", nil), "id", "pr-1")
	rec := httptest.NewRecorder()

	handler.Approve(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestPaymentRequestHandler_Reject(t *testing.T) {
	handler := NewPaymentRequestHandler(&paymentRequestServiceStub{
		rejectFn: func(ctx context.Context, requestID, reason string) (*domain.PaymentRequest, error) {
			return &domain.PaymentRequest{ID: requestID, Status: domain.PaymentRequestStatusRejected, DecisionNote: reason}, nil
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/finance/payment-requests/pr-1/reject", bytes.NewBufferString(`{"reason":"incomplete"}`))
	req = setChiURLParams(req, "id", "pr-1")
	rec := httptest.NewRecorder()

	handler.Reject(rec, req)

	var resp dto.PaymentRequestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "REJECTED" || resp.DecisionNote != "incomplete" {
		t.Fatalf("unexpected response %+v", resp)
	}
}
