package handler

import (
	"context"
	"net/http"
	"time"
)

// Dependency is a backing service that must answer before traffic is served.
type Dependency struct {
	Name string
	Ping func(ctx context.Context) error
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	deps []Dependency
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(deps ...Dependency) *HealthHandler {
	return &HealthHandler{deps: deps}
}

// Liveness returns 200 if the service is alive.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness returns 200 if the service is ready to accept traffic.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := map[string]string{"status": "ready"}
	for _, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, dep.Name+" unhealthy", err.Error())
			return
		}
		status[dep.Name] = "ok"
	}

	writeJSON(w, http.StatusOK, status)
}
