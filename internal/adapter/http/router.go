package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/iho/goescrow/internal/adapter/http/handler"
	"github.com/iho/goescrow/internal/adapter/http/middleware"
	"github.com/iho/goescrow/internal/domain"
	"github.com/iho/goescrow/internal/infrastructure/auth"
	"github.com/iho/goescrow/internal/infrastructure/metrics"
	"github.com/iho/goescrow/internal/usecase"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	AccountHandler        *handler.AccountHandler
	TransactionHandler    *handler.TransactionHandler
	MilestoneHandler      *handler.MilestoneHandler
	PaymentRequestHandler *handler.PaymentRequestHandler
	DisputeHandler        *handler.DisputeHandler
	FinanceHandler        *handler.FinanceHandler
	HealthHandler         *handler.HealthHandler

	Logger           zerolog.Logger
	Metrics          *metrics.Metrics
	MetricsHandler   http.Handler
	RateLimiter      *middleware.RateLimiter
	IdempotencyStore usecase.IdempotencyStore
	IdempotencyTTL   time.Duration
	JWTManager       *auth.JWTManager
	AuthEnabled      bool
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestContext)
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Wrap)
	r.Use(middleware.Recovery(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Limit)
	}

	// Health endpoints
	r.Get("/health", cfg.HealthHandler.Liveness)
	r.Get("/ready", cfg.HealthHandler.Readiness)

	metricsHandler := cfg.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Handle("/metrics", metricsHandler)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(cfg.JWTManager, cfg.AuthEnabled))

		// Idempotency middleware for mutating requests
		if cfg.IdempotencyStore != nil {
			r.Use(middleware.NewIdempotencyMiddleware(cfg.IdempotencyStore, cfg.IdempotencyTTL).Wrap)
		}

		r.Route("/finance", func(r chi.Router) {
			r.Use(middleware.RequireRole(domain.RoleOperator, domain.RoleViewer))

			r.Get("/dashboard", cfg.FinanceHandler.Dashboard)
			r.Get("/consistency", cfg.FinanceHandler.CheckConsistency)
			r.Get("/audit", cfg.FinanceHandler.Audit)

			r.Route("/transactions", func(r chi.Router) {
				r.Get("/", cfg.TransactionHandler.List)
				r.Post("/", cfg.TransactionHandler.Record)
				r.Get("/{id}", cfg.TransactionHandler.Get)
				r.Post("/{id}/refund", cfg.TransactionHandler.Refund)
			})

			r.Route("/payment-requests", func(r chi.Router) {
				r.Get("/", cfg.PaymentRequestHandler.List)
				r.Post("/{id}/approve", cfg.PaymentRequestHandler.Approve)
				r.Post("/{id}/reject", cfg.PaymentRequestHandler.Reject)
			})
		})

		r.Route("/accounts", func(r chi.Router) {
			r.Post("/", cfg.AccountHandler.Create)
			r.Get("/", cfg.AccountHandler.List)
			r.Get("/{id}", cfg.AccountHandler.Get)
			r.Get("/{id}/balance", cfg.AccountHandler.Balance)
		})

		r.Route("/projects/{projectId}/milestones", func(r chi.Router) {
			r.Post("/", cfg.MilestoneHandler.Create)
			r.Get("/", cfg.MilestoneHandler.List)
			r.Get("/{id}", cfg.MilestoneHandler.Get)
			r.Post("/{id}/fund", cfg.MilestoneHandler.Fund)
			r.Post("/{id}/start", cfg.MilestoneHandler.Start)
			r.Post("/{id}/complete", cfg.MilestoneHandler.Complete)
			r.Post("/{id}/cancel", cfg.MilestoneHandler.Cancel)
			r.Post("/{id}/payment-requests", cfg.MilestoneHandler.FilePaymentRequest)
			r.Post("/{id}/disputes", cfg.MilestoneHandler.OpenDispute)
		})

		r.Route("/disputes", func(r chi.Router) {
			r.Get("/", cfg.DisputeHandler.List)
			r.Get("/{id}", cfg.DisputeHandler.Get)
			r.Post("/{id}/investigate", cfg.DisputeHandler.Investigate)
			r.Post("/{id}/withdraw", cfg.DisputeHandler.Withdraw)
			r.Post("/{id}/resolve", cfg.DisputeHandler.Resolve)
		})
	})

	return r
}
