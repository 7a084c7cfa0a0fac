package middleware

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/iho/goescrow/internal/domain"
	"github.com/iho/goescrow/internal/infrastructure/logger"
	"github.com/iho/goescrow/internal/infrastructure/metrics"
)

// RequestIDHeader is the metadata key carrying the caller's request id.
const RequestIDHeader = "x-request-id"

// LoggingInterceptor stores the request id and a request-scoped logger in
// the context and logs each completed call.
func LoggingInterceptor(base zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		start := time.Now()

		ctx = domain.ContextWithRequestID(ctx, requestID(ctx))
		callLogger := logger.WithContext(ctx, base)
		ctx = callLogger.WithContext(ctx)

		resp, err := handler(ctx, req)

		code := status.Code(err)
		l := zerolog.Ctx(ctx)
		event := l.Info()
		if code == codes.Internal || code == codes.Unknown {
			event = l.Error().Err(err)
		}

		event.
			Str("method", info.FullMethod).
			Str("code", code.String()).
			Dur("duration", time.Since(start)).
			Msg("rpc completed")

		return resp, err
	}
}

// RecoveryInterceptor turns a panic in a handler into codes.Internal.
func RecoveryInterceptor(fallback zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				l := zerolog.Ctx(ctx)
				if l.GetLevel() == zerolog.Disabled {
					l = &fallback
				}

				l.Error().
					Interface("error", r).
					Str("stack", string(debug.Stack())).
					Str("method", info.FullMethod).
					Msg("panic recovered")

				resp, err = nil, status.Error(codes.Internal, "internal server error")
			}
		}()

		return handler(ctx, req)
	}
}

// MetricsInterceptor records call counts and latency per method.
func MetricsInterceptor(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		m.GRPCRequests.WithLabelValues(info.FullMethod, status.Code(err).String()).Inc()
		m.GRPCDuration.WithLabelValues(info.FullMethod).Observe(time.Since(start).Seconds())

		return resp, err
	}
}

func requestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(RequestIDHeader); len(values) > 0 && values[0] != "" {
			return values[0]
		}
	}
	return uuid.NewString()
}
