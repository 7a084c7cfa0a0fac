package middleware

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/iho/goescrow/internal/domain"
	"github.com/iho/goescrow/internal/infrastructure/auth"
)

// AuthorizationHeader is the metadata key for authorization
const AuthorizationHeader = "authorization"

// AuthInterceptor creates a gRPC authentication interceptor. With auth
// disabled every call runs as the system actor.
func AuthInterceptor(jwtManager *auth.JWTManager, enabled bool) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if !enabled || jwtManager == nil {
			return handler(withActor(ctx, domain.SystemActor()), req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}

		values := md.Get(AuthorizationHeader)
		if len(values) == 0 {
			return nil, status.Error(codes.Unauthenticated, "missing authorization token")
		}

		accessToken := strings.TrimPrefix(values[0], "Bearer ")

		claims, err := jwtManager.Verify(accessToken)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid or expired token")
		}

		return handler(withActor(ctx, claims.Actor()), req)
	}
}

// RequireRoleInterceptor rejects callers whose role is not listed.
// Admins always pass.
func RequireRoleInterceptor(roles ...domain.Role) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		actor, ok := domain.ActorFromContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "unauthorized")
		}

		if actor.Role == domain.RoleAdmin {
			return handler(ctx, req)
		}
		for _, role := range roles {
			if actor.Role == role {
				return handler(ctx, req)
			}
		}

		return nil, status.Error(codes.PermissionDenied, "insufficient permissions")
	}
}

func withActor(ctx context.Context, actor *domain.Actor) context.Context {
	l := zerolog.Ctx(ctx)
	if l.GetLevel() != zerolog.Disabled {
		l.UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("actor_id", actor.ID).Str("role", string(actor.Role))
		})
	}
	return domain.ContextWithActor(ctx, actor)
}

// ChainUnaryServer chains multiple unary interceptors
func ChainUnaryServer(interceptors ...grpc.UnaryServerInterceptor) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		chain := handler
		for i := len(interceptors) - 1; i >= 0; i-- {
			interceptor := interceptors[i]
			next := chain
			chain = func(ctx context.Context, req any) (any, error) {
				return interceptor(ctx, req, info, next)
			}
		}
		return chain(ctx, req)
	}
}
