// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"strings"
	"time"
)

// Hub configures the push hub service.
type Hub struct {
	ListenAddr string

	Infra Infra

	// JWTSecret verifies HS256 bearer tokens. Mutually exclusive with
	// JWTPublicKeyFile, which switches verification to RS256.
	JWTSecret        string
	JWTPublicKeyFile string

	// AllowedOrigins is matched against the WebSocket Origin header.
	// Empty means same-origin only; "*" disables the check.
	AllowedOrigins []string

	// RelayFrameRate / RelayFrameBurst bound inbound timing frames per relay
	// connection.
	RelayFrameRate  float64
	RelayFrameBurst int

	// APIRequestLimit is requests per minute per client IP on the HTTP API.
	APIRequestLimit int

	// WriteTimeout bounds a single WebSocket write.
	WriteTimeout time.Duration
	// PongTimeout is the read deadline extension granted per pong.
	PongTimeout time.Duration
	// PingInterval is the keepalive ping cadence. Must be below PongTimeout.
	PingInterval time.Duration
}

// LoadHub reads hub configuration from the environment.
func LoadHub() (Hub, error) {
	infra, err := LoadInfra()
	if err != nil {
		return Hub{}, err
	}
	cfg := Hub{
		ListenAddr:       ParseString("PITWALL_LISTEN_ADDR", ":8080"),
		Infra:            infra,
		JWTSecret:        ParseString("PITWALL_JWT_SECRET", ""),
		JWTPublicKeyFile: ParseString("PITWALL_JWT_PUBLIC_KEY_FILE", ""),
		AllowedOrigins:   splitList(ParseString("PITWALL_ALLOWED_ORIGINS", "")),
		RelayFrameRate:   ParseFloat("PITWALL_RELAY_FRAME_RATE", 100),
		RelayFrameBurst:  ParseInt("PITWALL_RELAY_FRAME_BURST", 200),
		APIRequestLimit:  ParseInt("PITWALL_API_REQUEST_LIMIT", 120),
		WriteTimeout:     ParseDuration("PITWALL_WS_WRITE_TIMEOUT", 10*time.Second),
		PongTimeout:      ParseDuration("PITWALL_WS_PONG_TIMEOUT", 60*time.Second),
		PingInterval:     ParseDuration("PITWALL_WS_PING_INTERVAL", 54*time.Second),
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations the hub cannot run with.
func (c Hub) Validate() error {
	if c.JWTSecret == "" && c.JWTPublicKeyFile == "" {
		return fmt.Errorf("one of PITWALL_JWT_SECRET or PITWALL_JWT_PUBLIC_KEY_FILE is required")
	}
	if c.JWTSecret != "" && c.JWTPublicKeyFile != "" {
		return fmt.Errorf("PITWALL_JWT_SECRET and PITWALL_JWT_PUBLIC_KEY_FILE are mutually exclusive")
	}
	if c.Infra.Postgres.DSN == "" {
		return fmt.Errorf("PITWALL_POSTGRES_DSN is required")
	}
	if c.PingInterval >= c.PongTimeout {
		return fmt.Errorf("ping interval must be below pong timeout")
	}
	return nil
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
