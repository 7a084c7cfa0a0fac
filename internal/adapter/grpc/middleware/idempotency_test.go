package middleware_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/iho/goescrow/internal/adapter/grpc/middleware"
	"github.com/iho/goescrow/internal/usecase"
)

// memoryStore is a map-backed idempotency store.
type memoryStore struct {
	mu       sync.Mutex
	values   map[string][]byte
	checks   int
	released []string
	err      error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string][]byte{}}
}

func (s *memoryStore) CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.checks++
	if s.err != nil {
		return false, nil, s.err
	}
	if v, ok := s.values[key]; ok {
		return true, v, nil
	}
	if response == nil {
		response = []byte(usecase.IdempotencyInFlight)
	}
	s.values[key] = response
	return false, nil, nil
}

func (s *memoryStore) Update(ctx context.Context, key string, response []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = response
	return nil
}

func (s *memoryStore) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	s.released = append(s.released, key)
	return nil
}

const recordMethod = "/goescrow.ledger.v1.LedgerService/RecordTransaction"

func newRequest(t *testing.T, amount string) *structpb.Struct {
	t.Helper()
	req, err := structpb.NewStruct(map[string]any{"type": "DEPOSIT", "amount": amount})
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	return req
}

func keyContext(key string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs(middleware.IdempotencyKeyHeader, key))
}

func TestIdempotencyInterceptor_SkipsReadOnlyMethods(t *testing.T) {
	store := newMemoryStore()
	interceptor := middleware.IdempotencyInterceptor(store, time.Hour, "/goescrow.ledger.v1.LedgerService/GetBalance")

	info := &grpc.UnaryServerInfo{FullMethod: "/goescrow.ledger.v1.LedgerService/GetBalance"}
	called := false
	handler := func(ctx context.Context, req any) (any, error) {
		called = true
		return "ok", nil
	}

	resp, err := interceptor(keyContext("key-1"), nil, info, handler)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "ok" || !called {
		t.Fatalf("expected handler to execute")
	}
	if store.checks != 0 {
		t.Fatalf("expected store not to be called for read-only method")
	}
}

func TestIdempotencyInterceptor_ReplaysCompletedCall(t *testing.T) {
	store := newMemoryStore()
	interceptor := middleware.IdempotencyInterceptor(store, time.Hour)
	info := &grpc.UnaryServerInfo{FullMethod: recordMethod}

	calls := 0
	handler := func(ctx context.Context, req any) (any, error) {
		calls++
		return structpb.NewStruct(map[string]any{"id": "txn-1"})
	}

	first, err := interceptor(keyContext("key-1"), newRequest(t, "10"), info, handler)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}

	second, err := interceptor(keyContext("key-1"), newRequest(t, "10"), info, handler)
	if err != nil {
		t.Fatalf("replayed call: %v", err)
	}

	if calls != 1 {
		t.Fatalf("expected handler to run once, ran %d times", calls)
	}

	got := second.(*structpb.Struct).AsMap()["id"]
	if got != first.(*structpb.Struct).AsMap()["id"] {
		t.Fatalf("expected replayed response, got %v", got)
	}
}

func TestIdempotencyInterceptor_DetectsBodyMismatch(t *testing.T) {
	store := newMemoryStore()
	interceptor := middleware.IdempotencyInterceptor(store, time.Hour)
	info := &grpc.UnaryServerInfo{FullMethod: recordMethod}

	handler := func(ctx context.Context, req any) (any, error) {
		return structpb.NewStruct(map[string]any{"id": "txn-1"})
	}

	if _, err := interceptor(keyContext("key-1"), newRequest(t, "10"), info, handler); err != nil {
		t.Fatalf("first call: %v", err)
	}

	_, err := interceptor(keyContext("key-1"), newRequest(t, "20"), info, handler)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument for body mismatch, got %v", err)
	}
}

func TestIdempotencyInterceptor_InFlight(t *testing.T) {
	store := newMemoryStore()
	store.values["grpc:"+recordMethod+":key-1"] = []byte(usecase.IdempotencyInFlight)
	interceptor := middleware.IdempotencyInterceptor(store, time.Hour)

	_, err := interceptor(keyContext("key-1"), newRequest(t, "10"), &grpc.UnaryServerInfo{FullMethod: recordMethod}, func(ctx context.Context, req any) (any, error) {
		t.Fatal("handler should not execute while the key is in flight")
		return nil, nil
	})

	if status.Code(err) != codes.Aborted {
		t.Fatalf("expected Aborted, got %v", err)
	}
}

func TestIdempotencyInterceptor_ReleasesFailedCall(t *testing.T) {
	store := newMemoryStore()
	interceptor := middleware.IdempotencyInterceptor(store, time.Hour)
	info := &grpc.UnaryServerInfo{FullMethod: recordMethod}

	handlerErr := status.Error(codes.FailedPrecondition, "insufficient funds")
	_, err := interceptor(keyContext("key-1"), newRequest(t, "10"), info, func(ctx context.Context, req any) (any, error) {
		return nil, handlerErr
	})
	if !errors.Is(err, handlerErr) {
		t.Fatalf("expected handler error, got %v", err)
	}

	if len(store.released) != 1 {
		t.Fatalf("expected key to be released, got %v", store.released)
	}

	called := false
	if _, err := interceptor(keyContext("key-1"), newRequest(t, "10"), info, func(ctx context.Context, req any) (any, error) {
		called = true
		return structpb.NewStruct(map[string]any{})
	}); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !called {
		t.Fatal("expected retry to execute the handler")
	}
}

func TestIdempotencyInterceptor_StoreError(t *testing.T) {
	store := newMemoryStore()
	store.err = errors.New("redis down")
	interceptor := middleware.IdempotencyInterceptor(store, time.Hour)

	_, err := interceptor(keyContext("key-1"), newRequest(t, "10"), &grpc.UnaryServerInfo{FullMethod: recordMethod}, func(ctx context.Context, req any) (any, error) {
		t.Fatal("handler should not execute when the store is unavailable")
		return nil, nil
	})

	if status.Code(err) != codes.Unavailable {
		t.Fatalf("expected Unavailable, got %v", err)
	}
}

func TestIdempotencyInterceptor_EmptyKey(t *testing.T) {
	interceptor := middleware.IdempotencyInterceptor(newMemoryStore(), time.Hour)

	_, err := interceptor(keyContext(""), newRequest(t, "10"), &grpc.UnaryServerInfo{FullMethod: recordMethod}, func(ctx context.Context, req any) (any, error) {
		t.Fatal("handler should not execute")
		return nil, nil
	})

	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}
