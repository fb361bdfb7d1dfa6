package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/render"
)

// HealthStatus represents the overall health of the system
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentStatus represents the health of an individual component
type ComponentStatus string

const (
	ComponentStatusUp       ComponentStatus = "up"
	ComponentStatusDown     ComponentStatus = "down"
	ComponentStatusDegraded ComponentStatus = "degraded"
)

// Health represents the complete health check response
type Health struct {
	Status     HealthStatus               `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents the health of a single system component
type ComponentHealth struct {
	Status    ComponentStatus `json:"status"`
	Message   string          `json:"message,omitempty"`
	LatencyMs float64         `json:"latency_ms,omitempty"`
}

// Pinger is any dependency that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// healthCheck is a named dependency. Optional ones only degrade health.
type healthCheck struct {
	name     string
	pinger   Pinger
	optional bool
	slow     time.Duration
}

func (s *Server) healthChecks() []healthCheck {
	checks := []healthCheck{
		{name: "kv", pinger: s.deps.KV, slow: 500 * time.Millisecond},
		{name: "storage", pinger: s.deps.Files, slow: 2 * time.Second},
	}
	if s.deps.AuditDB != nil {
		checks = append(checks, healthCheck{name: "audit_db", pinger: s.deps.AuditDB, optional: true, slow: time.Second})
	}
	return checks
}

// HandleHealth provides a detailed health check endpoint
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.checkHealth(r.Context())

	statusCode := http.StatusOK
	if health.Status == HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	render.Status(r, statusCode)
	render.JSON(w, r, health)
}

// HandleReady reports whether the required dependencies answer.
func (s *Server) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for _, c := range s.healthChecks() {
		if c.optional {
			continue
		}
		if err := c.pinger.Ping(ctx); err != nil {
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, map[string]string{"status": "not_ready", "message": c.name + " unavailable"})
			return
		}
	}

	render.JSON(w, r, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleLive provides a liveness probe (is the process running?)
func (s *Server) HandleLive(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "alive"})
}

func (s *Server) checkHealth(ctx context.Context) Health {
	health := Health{
		Timestamp:  time.Now().UTC(),
		Version:    s.cfg.Version,
		Components: make(map[string]ComponentHealth),
	}

	checks := s.healthChecks()
	optional := make(map[string]bool, len(checks))
	for _, c := range checks {
		health.Components[c.name] = checkComponent(ctx, c)
		optional[c.name] = c.optional
	}
	health.Status = determineOverallHealth(health.Components, optional)
	return health
}

func checkComponent(ctx context.Context, c healthCheck) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	if err := c.pinger.Ping(ctx); err != nil {
		return ComponentHealth{
			Status:  ComponentStatusDown,
			Message: c.name + " ping failed",
		}
	}
	latency := time.Since(start)

	out := ComponentHealth{
		Status:    ComponentStatusUp,
		Message:   c.name + " healthy",
		LatencyMs: float64(latency.Microseconds()) / 1000,
	}
	if latency > c.slow {
		out.Status = ComponentStatusDegraded
		out.Message = c.name + " latency high"
	}
	return out
}

// determineOverallHealth calculates overall health from component statuses.
// A down optional component degrades rather than fails the service.
func determineOverallHealth(components map[string]ComponentHealth, optional map[string]bool) HealthStatus {
	var down, degraded int
	for name, c := range components {
		switch c.Status {
		case ComponentStatusDown:
			if optional[name] {
				degraded++
			} else {
				down++
			}
		case ComponentStatusDegraded:
			degraded++
		}
	}

	if down > 0 {
		return HealthStatusUnhealthy
	}
	if degraded > 0 {
		return HealthStatusDegraded
	}
	return HealthStatusHealthy
}
