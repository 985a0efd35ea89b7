package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("http:\n  addr: \":8080\"\n"))
	require.NoError(t, err)

	assert.True(t, cfg.UseMemoryStore())
	assert.Equal(t, 5*time.Second, cfg.Store.Timeout)
	assert.Equal(t, 2000, cfg.Chat.MaxLength)
	assert.Equal(t, 15*time.Second, cfg.WS.PingPeriod)
	assert.Equal(t, "meet-service", cfg.Logging.Service)
	assert.Equal(t, "meet-service", cfg.Postgres.ApplicationName)
	assert.Equal(t, []string{"*"}, cfg.HTTP.AllowedOrigins)
	require.Len(t, cfg.WebRTC.ICEServers, 1)
	assert.Empty(t, cfg.GRPC.Addr)
}

func TestParse_Durations(t *testing.T) {
	cfg, err := Parse([]byte(`
http:
  addr: ":8080"
store:
  timeout: 250ms
ws:
  pingPeriod: 2s
rateLimit:
  limit: 5
  window: 10s
`))
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.Store.Timeout)
	assert.Equal(t, 2*time.Second, cfg.WS.PingPeriod)
	assert.Equal(t, 5, cfg.RateLimit.Limit)
	assert.Equal(t, 10*time.Second, cfg.RateLimit.Window)
}

func TestParse_Validation(t *testing.T) {
	_, err := Parse([]byte("grpc:\n  addr: \":9090\"\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("http:\n  addr: \":8080\"\nwebrtc:\n  iceServers:\n    - username: u\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("http: [\n"))
	assert.Error(t, err)
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("MEET_PG_DSN", "postgres://u:p@localhost:5432/meet")
	t.Setenv("MEET_STORE_TIMEOUT", "3s")
	t.Setenv("MEET_HTTP_ADDR", ":18080")

	cfg, err := Parse([]byte("http:\n  addr: \":8080\"\n"))
	require.NoError(t, err)
	assert.False(t, cfg.UseMemoryStore())
	assert.Equal(t, 3*time.Second, cfg.Store.Timeout)
	assert.Equal(t, ":18080", cfg.HTTP.Addr)

	t.Setenv("MEET_STORE_TIMEOUT", "garbage")
	cfg, err = Parse([]byte("http:\n  addr: \":8080\"\n"))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Store.Timeout)
}

func TestLoadConfig_BundledFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(".", "config.yaml"))
	t.Setenv("MEET_PG_DSN", "")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, ":9090", cfg.GRPC.Addr)
	assert.True(t, cfg.Postgres.Migrate)

	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = LoadConfig()
	assert.ErrorIs(t, err, os.ErrNotExist)
}
