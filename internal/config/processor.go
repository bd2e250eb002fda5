// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"time"
)

// Processor configures a per-event processor worker.
type Processor struct {
	EventID string
	OrgID   string

	HealthAddr string

	Infra Infra

	// SnapshotInterval is the cadence of full-state snapshot publication.
	SnapshotInterval time.Duration
	// DebounceInterval limits session last-updated writes.
	DebounceInterval time.Duration
	// FinalizeAfter is how much event time must pass after the last
	// checkered-flag lap change before a session is finalized.
	FinalizeAfter time.Duration
	// EnricherSweep is the base cadence of the driver-clear sweep.
	EnricherSweep time.Duration
	// DrainTimeout caps how long shutdown waits for in-flight work.
	DrainTimeout time.Duration
}

// LoadProcessor reads processor configuration from the environment.
func LoadProcessor() (Processor, error) {
	infra, err := LoadInfra()
	if err != nil {
		return Processor{}, err
	}
	cfg := Processor{
		EventID:          ParseString("PITWALL_EVENT_ID", ""),
		OrgID:            ParseString("PITWALL_ORG_ID", ""),
		HealthAddr:       ParseString("PITWALL_HEALTH_ADDR", ":8080"),
		Infra:            infra,
		SnapshotInterval: ParseDuration("PITWALL_SNAPSHOT_INTERVAL", 5*time.Second),
		DebounceInterval: ParseDuration("PITWALL_LAST_UPDATED_DEBOUNCE", 1500*time.Millisecond),
		FinalizeAfter:    ParseDuration("PITWALL_FINALIZE_AFTER", 60*time.Second),
		EnricherSweep:    ParseDuration("PITWALL_ENRICHER_SWEEP", 60*time.Second),
		DrainTimeout:     ParseDuration("PITWALL_DRAIN_TIMEOUT", 15*time.Second),
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations the worker cannot run with.
func (c Processor) Validate() error {
	if c.EventID == "" {
		return fmt.Errorf("PITWALL_EVENT_ID is required")
	}
	if c.OrgID == "" {
		return fmt.Errorf("PITWALL_ORG_ID is required")
	}
	if c.Infra.Postgres.DSN == "" {
		return fmt.Errorf("PITWALL_POSTGRES_DSN is required")
	}
	if c.SnapshotInterval <= 0 {
		return fmt.Errorf("snapshot interval must be positive")
	}
	return nil
}
