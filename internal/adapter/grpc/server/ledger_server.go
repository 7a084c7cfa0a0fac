package server

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/iho/goescrow/internal/adapter/grpc/converter"
	grpcErrors "github.com/iho/goescrow/internal/adapter/grpc/errors"
	"github.com/iho/goescrow/internal/domain"
	"github.com/iho/goescrow/internal/usecase"
)

// LedgerUseCase is the ledger behaviour exposed over gRPC.
type LedgerUseCase interface {
	RecordTransaction(ctx context.Context, input usecase.RecordTransactionInput) (*domain.Transaction, error)
	GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error)
	Reverse(ctx context.Context, input usecase.ReverseInput) (*domain.Transaction, error)
}

// PaymentRequestApprover approves vendor payment requests.
type PaymentRequestApprover interface {
	Approve(ctx context.Context, requestID, note string) (*usecase.ApproveResult, error)
}

// DisputeResolver applies dispute resolutions.
type DisputeResolver interface {
	Resolve(ctx context.Context, input usecase.ResolveDisputeInput) (*usecase.ResolveResult, error)
}

// LedgerServer implements LedgerServiceServer.
type LedgerServer struct {
	ledgerUC  LedgerUseCase
	requestUC PaymentRequestApprover
	disputeUC DisputeResolver
}

// NewLedgerServer creates a new LedgerServer.
func NewLedgerServer(ledgerUC LedgerUseCase, requestUC PaymentRequestApprover, disputeUC DisputeResolver) *LedgerServer {
	return &LedgerServer{
		ledgerUC:  ledgerUC,
		requestUC: requestUC,
		disputeUC: disputeUC,
	}
}

// RecordTransaction posts a single transaction.
func (s *LedgerServer) RecordTransaction(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := fields{s: req}

	input := usecase.RecordTransactionInput{
		Type:           domain.TransactionType(f.str("type")),
		FromAccountID:  f.str("from_account_id"),
		ToAccountID:    f.str("to_account_id"),
		Amount:         f.dec("amount"),
		IdempotencyKey: f.str("idempotency_key"),
		MilestoneID:    f.str("milestone_id"),
		Reason:         f.str("reason"),
		Metadata:       f.meta("metadata"),
	}
	if f.err != nil {
		return nil, f.err
	}

	txn, err := s.ledgerUC.RecordTransaction(ctx, input)
	if err != nil {
		return nil, grpcErrors.MapDomainError(err)
	}

	return respond(map[string]any{
		"transaction": converter.TransactionToStruct(txn),
	})
}

// GetBalance returns the balance of an account derived from completed
// transactions.
func (s *LedgerServer) GetBalance(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := fields{s: req}
	accountID := f.required("account_id")
	if f.err != nil {
		return nil, f.err
	}

	balance, err := s.ledgerUC.GetBalance(ctx, accountID)
	if err != nil {
		return nil, grpcErrors.MapDomainError(err)
	}

	return respond(map[string]any{
		"account_id": accountID,
		"balance":    balance.StringFixed(2),
	})
}

// ReverseTransaction refunds all or part of a transaction.
func (s *LedgerServer) ReverseTransaction(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := fields{s: req}

	input := usecase.ReverseInput{
		TransactionID:  f.required("transaction_id"),
		Amount:         f.dec("amount"),
		Reason:         f.str("reason"),
		IdempotencyKey: f.str("idempotency_key"),
	}
	if f.err != nil {
		return nil, f.err
	}

	txn, err := s.ledgerUC.Reverse(ctx, input)
	if err != nil {
		return nil, grpcErrors.MapDomainError(err)
	}

	return respond(map[string]any{
		"transaction": converter.TransactionToStruct(txn),
	})
}

// ApprovePaymentRequest approves a payment request and releases its amount.
func (s *LedgerServer) ApprovePaymentRequest(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := fields{s: req}
	id := f.required("payment_request_id")
	note := f.str("note")
	if f.err != nil {
		return nil, f.err
	}

	result, err := s.requestUC.Approve(ctx, id, note)
	if err != nil {
		return nil, grpcErrors.MapDomainError(err)
	}

	return respond(map[string]any{
		"payment_request": converter.PaymentRequestToStruct(result.Request),
		"transactions":    converter.TransactionsToList(result.Transactions),
		"replayed":        result.Replayed,
	})
}

// ResolveDispute settles a dispute's escrow.
func (s *LedgerServer) ResolveDispute(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := fields{s: req}

	input := usecase.ResolveDisputeInput{
		DisputeID:    f.required("dispute_id"),
		Type:         domain.ResolutionType(f.str("resolution_type")),
		ClientAmount: f.dec("client_amount"),
		VendorAmount: f.dec("vendor_amount"),
		Note:         f.str("note"),
	}
	if f.err != nil {
		return nil, f.err
	}

	result, err := s.disputeUC.Resolve(ctx, input)
	if err != nil {
		return nil, grpcErrors.MapDomainError(err)
	}

	return respond(map[string]any{
		"dispute":      converter.DisputeToStruct(result.Dispute),
		"milestone":    converter.MilestoneToStruct(result.Milestone),
		"transactions": converter.TransactionsToList(result.Transactions),
	})
}

// fields reads request fields and keeps the first error.
type fields struct {
	s   *structpb.Struct
	err error
}

func (f *fields) str(key string) string {
	v, err := converter.String(f.s, key)
	f.fail(err)
	return v
}

func (f *fields) required(key string) string {
	v := f.str(key)
	if v == "" && f.err == nil {
		f.err = status.Errorf(codes.InvalidArgument, "%s is required", key)
	}
	return v
}

func (f *fields) dec(key string) decimal.Decimal {
	v, err := converter.Decimal(f.s, key)
	f.fail(err)
	return v
}

func (f *fields) meta(key string) map[string]any {
	v, err := converter.Metadata(f.s, key)
	f.fail(err)
	return v
}

func (f *fields) fail(err error) {
	if err == nil || f.err != nil {
		return
	}
	if errors.Is(err, converter.ErrFieldType) {
		f.err = status.Error(codes.InvalidArgument, err.Error())
		return
	}
	f.err = status.Error(codes.Internal, "failed to read request")
}

func respond(m map[string]any) (*structpb.Struct, error) {
	out, err := converter.ToStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}
