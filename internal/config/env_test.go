// SPDX-License-Identifier: MIT

package config

import (
	"testing"
	"time"
)

func TestParseString(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    string
		set      bool
		def      string
		expected string
	}{
		{"env set", "PW_TEST_STR", "hello", true, "def", "hello"},
		{"env unset", "PW_TEST_STR_UNSET", "", false, "def", "def"},
		{"env empty", "PW_TEST_STR_EMPTY", "", true, "def", "def"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.set {
				t.Setenv(tt.key, tt.value)
			}
			if got := ParseString(tt.key, tt.def); got != tt.expected {
				t.Errorf("ParseString(%q) = %q, want %q", tt.key, got, tt.expected)
			}
		})
	}
}

func TestParseInt(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		set      bool
		def      int
		expected int
	}{
		{"valid", "42", true, 7, 42},
		{"invalid", "not-a-number", true, 7, 7},
		{"empty", "", true, 7, 7},
		{"unset", "", false, 7, 7},
		{"negative", "-3", true, 7, -3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "PW_TEST_INT"
			if tt.set {
				t.Setenv(key, tt.value)
			}
			if got := ParseInt(key, tt.def); got != tt.expected {
				t.Errorf("ParseInt = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		set      bool
		def      time.Duration
		expected time.Duration
	}{
		{"valid", "1500ms", true, time.Second, 1500 * time.Millisecond},
		{"invalid", "yesterday", true, time.Second, time.Second},
		{"unset", "", false, time.Second, time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "PW_TEST_DUR"
			if tt.set {
				t.Setenv(key, tt.value)
			}
			if got := ParseDuration(key, tt.def); got != tt.expected {
				t.Errorf("ParseDuration = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		set      bool
		def      bool
		expected bool
	}{
		{"true", "true", true, false, true},
		{"one", "1", true, false, true},
		{"yes", "YES", true, false, true},
		{"false", "false", true, true, false},
		{"zero", "0", true, true, false},
		{"garbage", "maybe", true, true, true},
		{"unset", "", false, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "PW_TEST_BOOL"
			if tt.set {
				t.Setenv(key, tt.value)
			}
			if got := ParseBool(key, tt.def); got != tt.expected {
				t.Errorf("ParseBool = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestParseFloat(t *testing.T) {
	t.Setenv("PW_TEST_FLOAT", "0.25")
	if got := ParseFloat("PW_TEST_FLOAT", 1.0); got != 0.25 {
		t.Errorf("ParseFloat = %v, want 0.25", got)
	}
	t.Setenv("PW_TEST_FLOAT", "nope")
	if got := ParseFloat("PW_TEST_FLOAT", 1.0); got != 1.0 {
		t.Errorf("ParseFloat fallback = %v, want 1.0", got)
	}
}
