// SPDX-License-Identifier: MIT

// Package config loads service configuration with precedence ENV > File > Defaults.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Redis holds client settings for the shared Redis backplane.
type Redis struct {
	Addr     string
	Password string
	DB       int
}

// Postgres holds settings for the relational store.
type Postgres struct {
	DSN      string
	MaxConns int
}

// Telemetry holds OpenTelemetry exporter settings.
type Telemetry struct {
	Enabled      bool
	Endpoint     string
	ExporterType string // "grpc" or "http"
	SamplingRate float64
}

// Infra bundles the connection settings every service shares.
type Infra struct {
	Redis     Redis
	Postgres  Postgres
	Telemetry Telemetry
}

// FileConfig is the optional YAML overlay. Only infrastructure settings may
// live in a file; everything operational stays in the environment.
type FileConfig struct {
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       *int   `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		DSN      string `yaml:"dsn"`
		MaxConns *int   `yaml:"maxConns"`
	} `yaml:"postgres"`
	Telemetry struct {
		Enabled      *bool    `yaml:"enabled"`
		Endpoint     string   `yaml:"endpoint"`
		ExporterType string   `yaml:"exporterType"`
		SamplingRate *float64 `yaml:"samplingRate"`
	} `yaml:"telemetry"`
}

// loadFile loads the overlay from a YAML file with STRICT parsing.
// Unknown fields cause a fatal error to prevent misconfiguration.
func loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // Reject unknown fields

	if err := dec.Decode(&fileCfg); err != nil {
		if err == io.EOF {
			return &FileConfig{}, nil
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}

	// Strict: Ensure no multiple documents or trailing content
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}

	return &fileCfg, nil
}

// LoadInfra resolves the shared infrastructure settings. The overlay file is
// taken from PITWALL_CONFIG_FILE when set; environment variables always win.
func LoadInfra() (Infra, error) {
	file := &FileConfig{}
	if path := os.Getenv("PITWALL_CONFIG_FILE"); path != "" {
		parsed, err := loadFile(path)
		if err != nil {
			return Infra{}, fmt.Errorf("load config file: %w", err)
		}
		file = parsed
	}

	infra := Infra{
		Redis: Redis{
			Addr:     ParseString("PITWALL_REDIS_ADDR", orString(file.Redis.Addr, "localhost:6379")),
			Password: ParseString("PITWALL_REDIS_PASSWORD", file.Redis.Password),
			DB:       ParseInt("PITWALL_REDIS_DB", orInt(file.Redis.DB, 0)),
		},
		Postgres: Postgres{
			DSN:      ParseString("PITWALL_POSTGRES_DSN", file.Postgres.DSN),
			MaxConns: ParseInt("PITWALL_POSTGRES_MAX_CONNS", orInt(file.Postgres.MaxConns, 10)),
		},
		Telemetry: Telemetry{
			Enabled:      ParseBool("PITWALL_OTEL_ENABLED", orBool(file.Telemetry.Enabled, false)),
			Endpoint:     ParseString("PITWALL_OTEL_ENDPOINT", orString(file.Telemetry.Endpoint, "localhost:4317")),
			ExporterType: ParseString("PITWALL_OTEL_EXPORTER", orString(file.Telemetry.ExporterType, "grpc")),
			SamplingRate: ParseFloat("PITWALL_OTEL_SAMPLING_RATE", orFloat(file.Telemetry.SamplingRate, 0.1)),
		},
	}
	return infra, nil
}

func orString(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func orInt(v *int, def int) int {
	if v != nil {
		return *v
	}
	return def
}

func orBool(v *bool, def bool) bool {
	if v != nil {
		return *v
	}
	return def
}

func orFloat(v *float64, def float64) float64 {
	if v != nil {
		return *v
	}
	return def
}
