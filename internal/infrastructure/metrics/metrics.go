package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Ledger metrics
	TransactionsRecorded *prometheus.CounterVec
	TransactionsReversed prometheus.Counter
	TransactionAmount    *prometheus.HistogramVec
	TransactionErrors    *prometheus.CounterVec

	// Workflow metrics
	MilestonesCreated prometheus.Counter
	MilestonesSettled *prometheus.CounterVec
	PaymentRequests   *prometheus.CounterVec
	DisputesOpened    prometheus.Counter
	DisputesClosed    *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	EscrowHeld        *prometheus.GaugeVec

	// Account metrics
	AccountsCreated *prometheus.CounterVec

	// API metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
	GRPCRequests *prometheus.CounterVec
	GRPCDuration *prometheus.HistogramVec

	// Storage metrics
	DBRetries   *prometheus.CounterVec
	CacheLookup *prometheus.CounterVec

	// Outbox metrics
	EventsPublished *prometheus.CounterVec
	OutboxErrors    prometheus.Counter

	// Rate limiting metrics
	RateLimitHits *prometheus.CounterVec

	// Reconciliation metrics
	ReconciliationDiscrepancies *prometheus.GaugeVec
}

// New creates Metrics registered with the default Prometheus registerer.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates and registers all metrics with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		TransactionsRecorded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goescrow_transactions_recorded_total",
				Help: "Total number of ledger transactions recorded by type",
			},
			[]string{"type"},
		),
		TransactionsReversed: factory.NewCounter(prometheus.CounterOpts{
			Name: "goescrow_transactions_reversed_total",
			Help: "Total number of ledger transactions reversed",
		}),
		TransactionAmount: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "goescrow_transaction_amount",
				Help:    "Transaction amounts by type",
				Buckets: []float64{1, 10, 100, 1000, 10000, 100000, 1000000},
			},
			[]string{"type"},
		),
		TransactionErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goescrow_transaction_errors_total",
				Help: "Total number of rejected ledger operations by reason",
			},
			[]string{"error_type"},
		),

		MilestonesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "goescrow_milestones_created_total",
			Help: "Total number of milestones created",
		}),
		MilestonesSettled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goescrow_milestones_settled_total",
				Help: "Total number of milestones reaching a terminal state",
			},
			[]string{"status"},
		),
		PaymentRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goescrow_payment_requests_total",
				Help: "Payment request transitions by outcome",
			},
			[]string{"outcome"},
		),
		DisputesOpened: factory.NewCounter(prometheus.CounterOpts{
			Name: "goescrow_disputes_opened_total",
			Help: "Total number of disputes opened",
		}),
		DisputesClosed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goescrow_disputes_closed_total",
				Help: "Total number of disputes closed by outcome",
			},
			[]string{"outcome"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "goescrow_operation_duration_seconds",
				Help:    "Duration of ledger and workflow operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		EscrowHeld: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "goescrow_escrow_held",
				Help: "Escrow held per currency as of the last dashboard computation",
			},
			[]string{"currency"},
		),

		AccountsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goescrow_accounts_created_total",
				Help: "Total number of accounts created by kind",
			},
			[]string{"kind"},
		),

		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goescrow_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "goescrow_http_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		GRPCRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goescrow_grpc_requests_total",
				Help: "Total gRPC requests",
			},
			[]string{"method", "status"},
		),
		GRPCDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "goescrow_grpc_duration_seconds",
				Help:    "gRPC request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),

		DBRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goescrow_db_retries_total",
				Help: "Database transactions retried after deadlock or serialization failure",
			},
			[]string{"code"},
		),
		CacheLookup: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goescrow_cache_lookups_total",
				Help: "Cache lookups by result",
			},
			[]string{"key", "result"},
		),

		EventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goescrow_events_published_total",
				Help: "Outbox events published by event type",
			},
			[]string{"event_type"},
		),
		OutboxErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "goescrow_outbox_errors_total",
			Help: "Outbox publish failures",
		}),

		RateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goescrow_rate_limit_hits_total",
				Help: "Total rate limit hits",
			},
			[]string{"ip"},
		),

		ReconciliationDiscrepancies: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "goescrow_reconciliation_discrepancies",
				Help: "Discrepancies found by the last reconciliation run",
			},
			[]string{"kind"},
		),
	}
}
