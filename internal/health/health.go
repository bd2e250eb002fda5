// SPDX-License-Identifier: MIT

// Package health provides startup, liveness and readiness probes for
// Kubernetes deployments with detailed component status.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pitwall-live/pitwall/internal/log"
)

// Status represents the overall probe status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult represents the result of a component check
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Response represents a probe response
type Response struct {
	Status    Status                 `json:"status"`
	Ready     bool                   `json:"ready"`
	Version   string                 `json:"version,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Checker defines the interface for component checks
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// Manager manages the three probe kinds. Dependency checkers gate startup and
// readiness; liveness checkers gate only the live probe.
type Manager struct {
	version    string
	deps       []Checker
	liveness   []Checker
	startupOK  bool
	startupSet time.Time
}

// NewManager creates a new probe manager
func NewManager(version string) *Manager {
	return &Manager{version: version}
}

// RegisterChecker adds a dependency checker (startup + readiness).
func (m *Manager) RegisterChecker(checker Checker) {
	m.deps = append(m.deps, checker)
}

// RegisterLiveness adds a liveness checker (live probe only).
func (m *Manager) RegisterLiveness(checker Checker) {
	m.liveness = append(m.liveness, checker)
}

func (m *Manager) evaluate(ctx context.Context, checkers []Checker) Response {
	resp := Response{
		Status:    StatusHealthy,
		Ready:     true,
		Version:   m.version,
		Timestamp: time.Now(),
	}
	if len(checkers) == 0 {
		return resp
	}

	resp.Checks = make(map[string]CheckResult, len(checkers))
	hasUnhealthy := false
	hasDegraded := false

	for _, checker := range checkers {
		result := checker.Check(ctx)
		resp.Checks[checker.Name()] = result

		switch result.Status {
		case StatusUnhealthy:
			hasUnhealthy = true
		case StatusDegraded:
			hasDegraded = true
		}
	}

	if hasUnhealthy {
		resp.Status = StatusUnhealthy
		resp.Ready = false
	} else if hasDegraded {
		resp.Status = StatusDegraded
	}
	return resp
}

// Startup evaluates all dependency checkers. A pod is started once every
// dependency answers.
func (m *Manager) Startup(ctx context.Context) Response {
	resp := m.evaluate(ctx, m.deps)
	if resp.Ready && !m.startupOK {
		m.startupOK = true
		m.startupSet = time.Now()
	}
	return resp
}

// Live evaluates liveness checkers only. Dependencies being down must not
// restart the pod.
func (m *Manager) Live(ctx context.Context) Response {
	return m.evaluate(ctx, m.liveness)
}

// Ready evaluates all dependency checkers.
func (m *Manager) Ready(ctx context.Context) Response {
	return m.evaluate(ctx, m.deps)
}

func (m *Manager) serve(w http.ResponseWriter, r *http.Request, probe string, eval func(context.Context) Response) {
	logger := log.WithComponentFromContext(r.Context(), "health")

	resp := eval(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if resp.Ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Str("event", "health.encode_error").Msg("failed to encode probe response")
	}

	logger.Debug().
		Str("event", "health.checked").
		Str("probe", probe).
		Str("status", string(resp.Status)).
		Bool("ready", resp.Ready).
		Msg("probe evaluated")
}

// ServeStartup handles /healthz/startup requests.
func (m *Manager) ServeStartup(w http.ResponseWriter, r *http.Request) {
	m.serve(w, r, "startup", m.Startup)
}

// ServeLive handles /healthz/live requests.
func (m *Manager) ServeLive(w http.ResponseWriter, r *http.Request) {
	m.serve(w, r, "live", m.Live)
}

// ServeReady handles /healthz/ready requests.
func (m *Manager) ServeReady(w http.ResponseWriter, r *http.Request) {
	m.serve(w, r, "ready", m.Ready)
}

// Handler returns a mux serving the three probes under /healthz/.
func (m *Manager) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz/startup", m.ServeStartup)
	mux.HandleFunc("/healthz/live", m.ServeLive)
	mux.HandleFunc("/healthz/ready", m.ServeReady)
	return mux
}
