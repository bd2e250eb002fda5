// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pitwall.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadInfraDefaults(t *testing.T) {
	infra, err := LoadInfra()
	require.NoError(t, err)
	require.Equal(t, "localhost:6379", infra.Redis.Addr)
	require.Equal(t, 10, infra.Postgres.MaxConns)
	require.False(t, infra.Telemetry.Enabled)
}

func TestLoadInfraFileOverlay(t *testing.T) {
	path := writeConfigFile(t, `
redis:
  addr: redis.internal:6380
  db: 2
postgres:
  dsn: postgres://pitwall@db/pitwall
telemetry:
  enabled: true
  samplingRate: 0.5
`)
	t.Setenv("PITWALL_CONFIG_FILE", path)

	infra, err := LoadInfra()
	require.NoError(t, err)
	require.Equal(t, "redis.internal:6380", infra.Redis.Addr)
	require.Equal(t, 2, infra.Redis.DB)
	require.Equal(t, "postgres://pitwall@db/pitwall", infra.Postgres.DSN)
	require.True(t, infra.Telemetry.Enabled)
	require.Equal(t, 0.5, infra.Telemetry.SamplingRate)
}

func TestLoadInfraEnvBeatsFile(t *testing.T) {
	path := writeConfigFile(t, `
redis:
  addr: from-file:6379
`)
	t.Setenv("PITWALL_CONFIG_FILE", path)
	t.Setenv("PITWALL_REDIS_ADDR", "from-env:6379")

	infra, err := LoadInfra()
	require.NoError(t, err)
	require.Equal(t, "from-env:6379", infra.Redis.Addr)
}

func TestLoadInfraRejectsUnknownFields(t *testing.T) {
	path := writeConfigFile(t, `
redis:
  addr: localhost:6379
bouquet: legacy
`)
	t.Setenv("PITWALL_CONFIG_FILE", path)

	_, err := LoadInfra()
	require.Error(t, err)
}

func TestLoadInfraRejectsNonYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pitwall.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))
	t.Setenv("PITWALL_CONFIG_FILE", path)

	_, err := LoadInfra()
	require.Error(t, err)
}

func TestLoadProcessorRequiresEventID(t *testing.T) {
	t.Setenv("PITWALL_POSTGRES_DSN", "postgres://pitwall@db/pitwall")
	_, err := LoadProcessor()
	require.Error(t, err)

	t.Setenv("PITWALL_EVENT_ID", "1042")
	t.Setenv("PITWALL_ORG_ID", "7")
	cfg, err := LoadProcessor()
	require.NoError(t, err)
	require.Equal(t, "1042", cfg.EventID)
	require.Equal(t, 5*time.Second, cfg.SnapshotInterval)
	require.Equal(t, 1500*time.Millisecond, cfg.DebounceInterval)
}

func TestLoadHubRequiresAuthMaterial(t *testing.T) {
	t.Setenv("PITWALL_POSTGRES_DSN", "postgres://pitwall@db/pitwall")
	_, err := LoadHub()
	require.Error(t, err)

	t.Setenv("PITWALL_JWT_SECRET", "shhh")
	cfg, err := LoadHub()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.ListenAddr)
}

func TestLoadHubRejectsBothAuthMaterials(t *testing.T) {
	t.Setenv("PITWALL_POSTGRES_DSN", "postgres://pitwall@db/pitwall")
	t.Setenv("PITWALL_JWT_SECRET", "shhh")
	t.Setenv("PITWALL_JWT_PUBLIC_KEY_FILE", "/keys/pub.pem")
	_, err := LoadHub()
	require.Error(t, err)
}

func TestLoadControlLogSourceValidation(t *testing.T) {
	t.Setenv("PITWALL_EVENT_ID", "1042")

	_, err := LoadControlLog()
	require.Error(t, err, "missing source type must fail")

	t.Setenv("PITWALL_CONTROL_LOG_TYPE", "http")
	_, err = LoadControlLog()
	require.Error(t, err, "http source without URL must fail")

	t.Setenv("PITWALL_CONTROL_LOG_URL", "https://livetiming.example/api/controllog")
	cfg, err := LoadControlLog()
	require.NoError(t, err)
	require.Equal(t, 60*time.Second, cfg.PollInterval)
}

func TestLoadArchiverValidatesTimezone(t *testing.T) {
	t.Setenv("PITWALL_POSTGRES_DSN", "postgres://pitwall@db/pitwall")
	t.Setenv("PITWALL_ARCHIVE_BUCKET", "pitwall-archive")
	t.Setenv("PITWALL_ARCHIVE_TZ", "Not/AZone")
	_, err := LoadArchiver()
	require.Error(t, err)

	t.Setenv("PITWALL_ARCHIVE_TZ", "America/New_York")
	cfg, err := LoadArchiver()
	require.NoError(t, err)
	require.Equal(t, 3, cfg.MaxAttempts)
}

func TestLoadOrchestratorDefaults(t *testing.T) {
	t.Setenv("PITWALL_POSTGRES_DSN", "postgres://pitwall@db/pitwall")
	t.Setenv("PITWALL_WORKER_IMAGE", "ghcr.io/pitwall-live/worker:v1")
	cfg, err := LoadOrchestrator()
	require.NoError(t, err)
	require.Equal(t, 10*time.Second, cfg.Interval)
	require.Equal(t, 10*time.Minute, cfg.HeartbeatTimeout)
	require.Equal(t, 15*time.Second, cfg.ShutdownGrace)
}
