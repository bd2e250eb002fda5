// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"time"
)

// Orchestrator configures the singleton worker control plane.
type Orchestrator struct {
	HealthAddr string

	Infra Infra

	// Interval is the reconciliation pass cadence.
	Interval time.Duration
	// HeartbeatTimeout expires a relay connection record.
	HeartbeatTimeout time.Duration
	// ShutdownGrace is the pause between the shutdown broadcast and worker
	// teardown, giving workers time to drain.
	ShutdownGrace time.Duration

	// Namespace is the Kubernetes namespace worker jobs run in.
	Namespace string
	// WorkerImage is the container image for all three worker kinds.
	WorkerImage string
	// JWTSecret, forwarded into worker job environments.
	JWTSecret string
}

// LoadOrchestrator reads orchestrator configuration from the environment.
func LoadOrchestrator() (Orchestrator, error) {
	infra, err := LoadInfra()
	if err != nil {
		return Orchestrator{}, err
	}
	cfg := Orchestrator{
		HealthAddr:       ParseString("PITWALL_HEALTH_ADDR", ":8080"),
		Infra:            infra,
		Interval:         ParseDuration("PITWALL_ORCH_INTERVAL", 10*time.Second),
		HeartbeatTimeout: ParseDuration("PITWALL_HEARTBEAT_TIMEOUT", 10*time.Minute),
		ShutdownGrace:    ParseDuration("PITWALL_SHUTDOWN_GRACE", 15*time.Second),
		Namespace:        ParseString("PITWALL_KUBE_NAMESPACE", "pitwall"),
		WorkerImage:      ParseString("PITWALL_WORKER_IMAGE", ""),
		JWTSecret:        ParseString("PITWALL_JWT_SECRET", ""),
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations the orchestrator cannot run with.
func (c Orchestrator) Validate() error {
	if c.WorkerImage == "" {
		return fmt.Errorf("PITWALL_WORKER_IMAGE is required")
	}
	if c.Infra.Postgres.DSN == "" {
		return fmt.Errorf("PITWALL_POSTGRES_DSN is required")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("reconcile interval must be positive")
	}
	return nil
}
