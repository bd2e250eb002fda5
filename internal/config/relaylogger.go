// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"time"
)

// RelayLogger configures a per-event raw frame logger worker.
type RelayLogger struct {
	EventID string

	HealthAddr string

	Infra Infra

	// FlushRows forces a batch insert once this many rows are buffered.
	FlushRows int
	// FlushInterval forces a batch insert after this much time regardless of
	// buffer size.
	FlushInterval time.Duration
}

// LoadRelayLogger reads relay logger configuration from the environment.
func LoadRelayLogger() (RelayLogger, error) {
	infra, err := LoadInfra()
	if err != nil {
		return RelayLogger{}, err
	}
	cfg := RelayLogger{
		EventID:       ParseString("PITWALL_EVENT_ID", ""),
		HealthAddr:    ParseString("PITWALL_HEALTH_ADDR", ":8080"),
		Infra:         infra,
		FlushRows:     ParseInt("PITWALL_LOG_FLUSH_ROWS", 100),
		FlushInterval: ParseDuration("PITWALL_LOG_FLUSH_INTERVAL", 2*time.Second),
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations the worker cannot run with.
func (c RelayLogger) Validate() error {
	if c.EventID == "" {
		return fmt.Errorf("PITWALL_EVENT_ID is required")
	}
	if c.Infra.Postgres.DSN == "" {
		return fmt.Errorf("PITWALL_POSTGRES_DSN is required")
	}
	if c.FlushRows <= 0 {
		return fmt.Errorf("flush rows must be positive")
	}
	return nil
}
