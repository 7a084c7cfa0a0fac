package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	grpcMiddleware "github.com/iho/goescrow/internal/adapter/grpc/middleware"
	grpcServer "github.com/iho/goescrow/internal/adapter/grpc/server"
	httpAdapter "github.com/iho/goescrow/internal/adapter/http"
	"github.com/iho/goescrow/internal/adapter/http/handler"
	"github.com/iho/goescrow/internal/adapter/http/middleware"
	redisRepo "github.com/iho/goescrow/internal/adapter/repository/redis"
	"github.com/iho/goescrow/internal/domain"
	"github.com/iho/goescrow/internal/infrastructure/auth"
	"github.com/iho/goescrow/internal/infrastructure/config"
	"github.com/iho/goescrow/internal/infrastructure/eventpublisher"
	"github.com/iho/goescrow/internal/infrastructure/logger"
	"github.com/iho/goescrow/internal/infrastructure/metrics"
	"github.com/iho/goescrow/internal/infrastructure/redis"
	"github.com/iho/goescrow/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	store, err := openStorage(ctx, cfg, log, m)
	if err != nil {
		return err
	}
	defer store.close()

	health := []handler.Dependency{{Name: "storage", Ping: store.ping}}

	// Redis backs HTTP idempotency and the dashboard cache. Leave REDIS_URL
	// empty to run without both.
	var (
		idempotencyStore usecase.IdempotencyStore
		cache            usecase.Cache
	)
	if cfg.RedisURL != "" {
		redisClient, err := redis.NewClient(ctx, redis.Options{
			URL:            cfg.RedisURL,
			PoolSize:       cfg.RedisPoolSize,
			DialTimeout:    cfg.RedisDialTimeout,
			ReadTimeout:    cfg.RedisReadTimeout,
			WriteTimeout:   cfg.RedisWriteTimeout,
			ConnectTimeout: cfg.RedisConnectTimeout,
		})
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer redisClient.Close()
		log.Info().Str("addr", redisClient.Options().Addr).Int("pool_size", redisClient.Options().PoolSize).Msg("connected to redis")

		idempotencyStore = redisRepo.NewIdempotencyStore(redisClient)
		cache = redisRepo.NewCache(redisClient)
		health = append(health, handler.Dependency{Name: "redis", Ping: redis.Ping(redisClient)})
	}

	uc, err := newUseCases(cfg, store, cache, m)
	if err != nil {
		return err
	}

	var jwtManager *auth.JWTManager
	if cfg.JWTSecret != "" {
		jwtManager = auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration)
	}

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, m)
	go rateLimiter.RunCleanup(ctx, time.Minute)

	router := httpAdapter.NewRouter(httpAdapter.RouterConfig{
		AccountHandler:        handler.NewAccountHandler(uc.accounts, uc.ledger),
		TransactionHandler:    handler.NewTransactionHandler(uc.ledger),
		MilestoneHandler:      handler.NewMilestoneHandler(uc.milestones, uc.requests, uc.disputes),
		PaymentRequestHandler: handler.NewPaymentRequestHandler(uc.requests),
		DisputeHandler:        handler.NewDisputeHandler(uc.disputes),
		FinanceHandler:        handler.NewFinanceHandler(uc.finance, uc.reconciliation),
		HealthHandler:         handler.NewHealthHandler(health...),
		Logger:                log,
		Metrics:               m,
		RateLimiter:           rateLimiter,
		IdempotencyStore:      idempotencyStore,
		IdempotencyTTL:        cfg.IdempotencyTTL,
		JWTManager:            jwtManager,
		AuthEnabled:           cfg.AuthEnabled,
	})

	server := &http.Server{
		Addr:         listenAddr(cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	errCh := make(chan error, 2)

	go func() {
		log.Info().Str("addr", server.Addr).Msg("starting http server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var rpc *grpc.Server
	if cfg.GRPCPort != "" {
		rpc = newGRPCServer(cfg, log, m, jwtManager, idempotencyStore, uc)

		lis, err := net.Listen("tcp", listenAddr(cfg.GRPCPort))
		if err != nil {
			return fmt.Errorf("listen grpc: %w", err)
		}

		go func() {
			log.Info().Str("addr", lis.Addr().String()).Msg("starting grpc server")
			if err := rpc.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	publisher, closePublisher, err := newPublisher(cfg, log)
	if err != nil {
		return err
	}
	defer closePublisher()

	outbox := eventpublisher.NewEventPublisher(eventpublisher.Config{
		OutboxRepo: store.outbox,
		Publisher:  publisher,
		Logger:     log,
		Metrics:    m,
		Interval:   cfg.OutboxInterval,
		Retention:  7 * 24 * time.Hour,
	})
	go func() {
		if err := outbox.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("event publisher stopped")
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down server...")
	case err := <-errCh:
		log.Error().Err(err).Msg("server error, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer cancel()

	if rpc != nil {
		rpc.GracefulStop()
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("server stopped")
	return nil
}

func newGRPCServer(
	cfg *config.Config,
	log zerolog.Logger,
	m *metrics.Metrics,
	jwtManager *auth.JWTManager,
	idempotencyStore usecase.IdempotencyStore,
	uc *useCases,
) *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		grpcMiddleware.LoggingInterceptor(log),
		grpcMiddleware.RecoveryInterceptor(log),
		grpcMiddleware.MetricsInterceptor(m),
		grpcMiddleware.AuthInterceptor(jwtManager, cfg.AuthEnabled),
		grpcMiddleware.RequireRoleInterceptor(domain.RoleOperator),
		grpcMiddleware.IdempotencyInterceptor(idempotencyStore, cfg.IdempotencyTTL, grpcServer.MethodGetBalance),
	))

	grpcServer.RegisterLedgerServiceServer(srv, grpcServer.NewLedgerServer(uc.ledger, uc.requests, uc.disputes))

	return srv
}

// newPublisher returns the outbox sink selected by EVENT_PUBLISHER and a
// function that releases it.
func newPublisher(cfg *config.Config, log zerolog.Logger) (eventpublisher.Publisher, func(), error) {
	if cfg.EventPublisher == config.EventPublisherKafka {
		kp, err := eventpublisher.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopicPrefix)
		if err != nil {
			return nil, nil, err
		}

		return kp, func() {
			if err := kp.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close kafka writer")
			}
		}, nil
	}

	return eventpublisher.NewLogPublisher(log.With().Str("component", "events").Logger()), func() {}, nil
}

func listenAddr(port string) string {
	return ":" + port
}
