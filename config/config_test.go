package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "caisse.db", cfg.DatabasePath)
	assert.Empty(t, cfg.NATSURL)
	assert.Equal(t, "caisse", cfg.NATSSubjectPrefix)
	assert.True(t, cfg.SweepEnabled)
	assert.Equal(t, time.Hour, cfg.SweepInterval)
	assert.Equal(t, 4, cfg.SweepParallelism)
	assert.Equal(t, ":8080", cfg.Addr())
}

func TestLoad_FileThenEnvironment(t *testing.T) {
	// GIVEN a YAML file and an environment override for one of its keys
	path := filepath.Join(t.TempDir(), "caisse.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
database:
  path: /var/lib/caisse/data.db
sweep:
  interval: 15m
  parallelism: 8
log:
  level: debug
  format: json
`), 0o600))
	t.Setenv("CAISSE_SERVER_PORT", "9100")
	t.Setenv("CAISSE_NATS_URL", "nats://localhost:4222")

	// WHEN loaded
	cfg, err := Load(path)

	// THEN the environment wins over the file, the file over defaults
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "/var/lib/caisse/data.db", cfg.DatabasePath)
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.Equal(t, 15*time.Minute, cfg.SweepInterval)
	assert.Equal(t, 8, cfg.SweepParallelism)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoad_Invalid(t *testing.T) {
	t.Run("port", func(t *testing.T) {
		t.Setenv("CAISSE_SERVER_PORT", "70000")
		_, err := Load("")
		assert.Error(t, err)
	})
	t.Run("log level", func(t *testing.T) {
		t.Setenv("CAISSE_LOG_LEVEL", "loud")
		_, err := Load("")
		assert.Error(t, err)
	})
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

func TestConfigureLogging(t *testing.T) {
	defer log.SetLevel(log.GetLevel())
	defer log.SetFormatter(log.StandardLogger().Formatter)

	cfg := &Config{LogLevel: "warn", LogFormat: "json"}
	cfg.ConfigureLogging()

	assert.Equal(t, log.WarnLevel, log.GetLevel())
	assert.IsType(t, &log.JSONFormatter{}, log.StandardLogger().Formatter)
}
