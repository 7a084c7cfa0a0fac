package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/iho/goescrow/internal/adapter/http/handler"
	apimiddleware "github.com/iho/goescrow/internal/adapter/http/middleware"
	"github.com/iho/goescrow/internal/domain"
	"github.com/iho/goescrow/internal/infrastructure/auth"
	"github.com/iho/goescrow/internal/infrastructure/metrics"
	"github.com/iho/goescrow/internal/usecase"
	"github.com/iho/goescrow/internal/usecase/mocks"
)

func TestNewRouter_HealthEndpointAvailable(t *testing.T) {
	router := NewRouter(newRouterConfig())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected /health to return 200, got %d", rec.Code)
	}
}

func TestNewRouter_RateLimiterBlocksExcessRequests(t *testing.T) {
	rl := apimiddleware.NewRateLimiter(1, 1, nil)
	router := NewRouter(newRouterConfig(func(cfg *RouterConfig) {
		cfg.RateLimiter = rl
	}))

	req1 := httptest.NewRequest(http.MethodGet, "/health", nil)
	req1.RemoteAddr = "1.2.3.4:1234"
	rec1 := httptest.NewRecorder()
	router.ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", rec1.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/health", nil)
	req2.RemoteAddr = "1.2.3.4:1234"
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be throttled, got %d", rec2.Code)
	}
}

func TestNewRouter_IdempotencyMiddlewareInvokesStore(t *testing.T) {
	store := mocks.NewMockIdempotencyStore()
	router := NewRouter(newRouterConfig(func(cfg *RouterConfig) {
		cfg.IdempotencyStore = store
	}))

	body := `{"kind":"CLIENT","owner_id":"client-1","name":"Main","currency":"USD"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/accounts/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apimiddleware.IdempotencyKeyHeader, "key-123")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	stored, ok := store.Stored("POST /api/v1/accounts/ key-123")
	if !ok || string(stored) == usecase.IdempotencyInFlight {
		t.Fatalf("expected the response to be stored, got %q", stored)
	}
}

func TestNewRouter_RequiresTokenWhenAuthEnabled(t *testing.T) {
	manager := auth.NewJWTManager("router-secret", time.Hour)
	router := NewRouter(newRouterConfig(func(cfg *RouterConfig) {
		cfg.JWTManager = manager
		cfg.AuthEnabled = true
	}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/accounts/acc-1", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	token, err := manager.Generate(&domain.Actor{ID: "client-1", Role: domain.RoleClient})
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts/acc-1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/finance/dashboard", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected clients to be kept out of finance routes, got %d", rec.Code)
	}
}

func TestNewRouter_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	router := NewRouter(newRouterConfig(func(cfg *RouterConfig) {
		cfg.Metrics = m
		cfg.MetricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}))

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `goescrow_http_requests_total{method="GET",path="/health",status="200"} 1`) {
		t.Fatalf("expected /health request to be counted, got:\n%s", rec.Body.String())
	}
}

func TestNewRouter_RegistersKeyRoutes(t *testing.T) {
	router := NewRouter(newRouterConfig())

	chiRoutes, ok := router.(chi.Router)
	if !ok {
		t.Fatal("router does not implement chi.Routes")
	}

	seen := map[string]bool{}
	if err := chi.Walk(chiRoutes, func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		seen[method+" "+route] = true
		return nil
	}); err != nil {
		t.Fatalf("walk failed: %v", err)
	}

	expected := []string{
		"GET /health",
		"GET /ready",
		"GET /metrics",
		"GET /api/v1/finance/dashboard",
		"GET /api/v1/finance/consistency",
		"GET /api/v1/finance/audit",
		"GET /api/v1/finance/transactions/",
		"POST /api/v1/finance/transactions/",
		"GET /api/v1/finance/transactions/{id}",
		"POST /api/v1/finance/transactions/{id}/refund",
		"GET /api/v1/finance/payment-requests/",
		"POST /api/v1/finance/payment-requests/{id}/approve",
		"POST /api/v1/finance/payment-requests/{id}/reject",
		"POST /api/v1/accounts/",
		"GET /api/v1/accounts/{id}",
		"GET /api/v1/accounts/{id}/balance",
		"POST /api/v1/projects/{projectId}/milestones/",
		"GET /api/v1/projects/{projectId}/milestones/",
		"GET /api/v1/projects/{projectId}/milestones/{id}",
		"POST /api/v1/projects/{projectId}/milestones/{id}/fund",
		"POST /api/v1/projects/{projectId}/milestones/{id}/start",
		"POST /api/v1/projects/{projectId}/milestones/{id}/complete",
		"POST /api/v1/projects/{projectId}/milestones/{id}/cancel",
		"POST /api/v1/projects/{projectId}/milestones/{id}/payment-requests",
		"POST /api/v1/projects/{projectId}/milestones/{id}/disputes",
		"GET /api/v1/disputes/",
		"GET /api/v1/disputes/{id}",
		"POST /api/v1/disputes/{id}/investigate",
		"POST /api/v1/disputes/{id}/withdraw",
		"POST /api/v1/disputes/{id}/resolve",
	}

	for _, route := range expected {
		if !seen[route] {
			t.Fatalf("expected route %s to be registered", route)
		}
	}
}

func newRouterConfig(opts ...func(*RouterConfig)) RouterConfig {
	cfg := RouterConfig{
		HealthHandler:         handler.NewHealthHandler(),
		AccountHandler:        handler.NewAccountHandler(stubAccountService{}, nil),
		TransactionHandler:    handler.NewTransactionHandler(nil),
		MilestoneHandler:      handler.NewMilestoneHandler(nil, nil, nil),
		PaymentRequestHandler: handler.NewPaymentRequestHandler(nil),
		DisputeHandler:        handler.NewDisputeHandler(nil),
		FinanceHandler:        handler.NewFinanceHandler(nil, nil),
		Logger:                zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg
}

type stubAccountService struct{}

func (stubAccountService) CreateAccount(ctx context.Context, input usecase.CreateAccountInput) (*domain.Account, error) {
	return &domain.Account{ID: "acc", Kind: input.Kind, Currency: input.Currency}, nil
}

func (stubAccountService) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	return &domain.Account{ID: id}, nil
}

func (stubAccountService) ListAccounts(ctx context.Context, input usecase.ListAccountsInput) ([]*domain.Account, error) {
	return []*domain.Account{}, nil
}

