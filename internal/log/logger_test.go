// SPDX-License-Identifier: MIT

package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestLReturnsUsableLogger(t *testing.T) {
	l := L()
	if l.GetLevel() > zerolog.PanicLevel {
		t.Error("expected a usable logger from L()")
	}
}

func TestWithComponentAddsField(t *testing.T) {
	var buf bytes.Buffer
	prev := base
	base = zerolog.New(&buf)
	defer func() { base = prev }()

	l := WithComponent("ingest")
	l.Info().Msg("hello")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	if entry["component"] != "ingest" {
		t.Errorf("component = %v, want ingest", entry["component"])
	}
}

func TestDeriveAppliesBuilder(t *testing.T) {
	var buf bytes.Buffer
	prev := base
	base = zerolog.New(&buf)
	defer func() { base = prev }()

	l := Derive(func(c *zerolog.Context) {
		*c = c.Str("event_id", "42")
	})
	l.Info().Msg("derived")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	if entry["event_id"] != "42" {
		t.Errorf("event_id = %v, want 42", entry["event_id"])
	}
}
