package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/iho/goescrow/internal/domain"
	"github.com/iho/goescrow/internal/infrastructure/auth"
)

// AuthMiddleware resolves the actor of a request from its bearer token and
// stores it in the request context. With auth disabled every request runs
// as the system actor.
func AuthMiddleware(jwtManager *auth.JWTManager, enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled || jwtManager == nil {
				next.ServeHTTP(w, r.WithContext(withActor(r, domain.SystemActor())))
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				writeError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			claims, err := jwtManager.Verify(parts[1])
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(withActor(r, claims.Actor())))
		})
	}
}

// RequireRole rejects actors whose role is not in roles. Admins always pass.
func RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := domain.ActorFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			if actor.Role != domain.RoleAdmin && !hasRole(roles, actor.Role) {
				writeError(w, http.StatusForbidden, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func hasRole(roles []domain.Role, role domain.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// withActor stores actor in the context and tags the request logger with it.
func withActor(r *http.Request, actor *domain.Actor) context.Context {
	l := zerolog.Ctx(r.Context())
	if l.GetLevel() != zerolog.Disabled {
		l.UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("actor_id", actor.ID).Str("role", string(actor.Role))
		})
	}
	return domain.ContextWithActor(r.Context(), actor)
}
