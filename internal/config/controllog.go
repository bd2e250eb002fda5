// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"time"
)

// ControlLog configures a per-event control log aggregator worker.
type ControlLog struct {
	EventID string
	OrgID   string

	HealthAddr string

	Infra Infra

	// SourceType selects the sanctioning body feed implementation.
	SourceType string
	// SourceURL is the poll endpoint for the "http" source.
	SourceURL string
	// SourceDir is the drop directory for the "file" source.
	SourceDir string

	// PollInterval is the fetch cadence.
	PollInterval time.Duration
}

// LoadControlLog reads control log aggregator configuration from the environment.
func LoadControlLog() (ControlLog, error) {
	infra, err := LoadInfra()
	if err != nil {
		return ControlLog{}, err
	}
	cfg := ControlLog{
		EventID:      ParseString("PITWALL_EVENT_ID", ""),
		OrgID:        ParseString("PITWALL_ORG_ID", ""),
		HealthAddr:   ParseString("PITWALL_HEALTH_ADDR", ":8080"),
		Infra:        infra,
		SourceType:   ParseString("PITWALL_CONTROL_LOG_TYPE", ""),
		SourceURL:    ParseString("PITWALL_CONTROL_LOG_URL", ""),
		SourceDir:    ParseString("PITWALL_CONTROL_LOG_DIR", ""),
		PollInterval: ParseDuration("PITWALL_CONTROL_LOG_INTERVAL", 60*time.Second),
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations the worker cannot run with.
func (c ControlLog) Validate() error {
	if c.EventID == "" {
		return fmt.Errorf("PITWALL_EVENT_ID is required")
	}
	switch c.SourceType {
	case "http":
		if c.SourceURL == "" {
			return fmt.Errorf("PITWALL_CONTROL_LOG_URL is required for the http source")
		}
	case "file":
		if c.SourceDir == "" {
			return fmt.Errorf("PITWALL_CONTROL_LOG_DIR is required for the file source")
		}
	case "":
		return fmt.Errorf("PITWALL_CONTROL_LOG_TYPE is required")
	default:
		return fmt.Errorf("unknown control log source type %q", c.SourceType)
	}
	return nil
}
