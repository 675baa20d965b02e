package handlers

import (
	"context"
	"net/http"
	"time"
)

const version = "0.1.0"

// Check represents the status of a health check.
type Check struct {
	Status  string `json:"status"`            // "pass", "fail" or "skip"
	Latency string `json:"latency,omitempty"` // e.g., "2ms"
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string           `json:"status"` // "healthy" or "degraded"
	Version   string           `json:"version"`
	Instance  string           `json:"instance,omitempty"`
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

// Health reports whether the message store and, when configured, Redis
// answer a ping. The store is required; Redis only carries fanout and rate
// limits, so it is skipped when absent.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]Check{
		"store": probe(ctx, h.db.Ping),
		"redis": {Status: "skip", Message: "not configured"},
	}
	if h.redis != nil {
		checks["redis"] = probe(ctx, h.redis.Ping)
	}

	status, code := "healthy", http.StatusOK
	for name, c := range checks {
		if c.Status == "fail" {
			h.logger.Warn().Str("check", name).Str("reason", c.Message).Msg("health check failed")
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}

	h.JSON(w, code, HealthResponse{
		Status:    status,
		Version:   version,
		Instance:  h.hub.ID(),
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func probe(ctx context.Context, ping func(context.Context) error) Check {
	start := time.Now()
	if err := ping(ctx); err != nil {
		return Check{Status: "fail", Message: "connection failed"}
	}
	return Check{Status: "pass", Latency: time.Since(start).String()}
}

// RootResponse represents the root endpoint response.
type RootResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Root handles the root endpoint.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, RootResponse{
		Name:    "roomchat",
		Version: version,
	})
}
