package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayeredLoading(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scoreboard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
  dev: true
storage:
  path: /tmp/file.db
match:
  sync_interval: 5s
  atomic_scores: true
log:
  level: debug
`), 0o600))

	cfg := Default()
	require.NoError(t, LoadFile(&cfg, path))
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.True(t, cfg.Server.Dev)
	assert.Equal(t, 5*time.Second, cfg.Match.SyncInterval)
	assert.Equal(t, 5*time.Minute, cfg.Match.Halftime)

	env := map[string]string{
		"SCOREBOARD_PORT":         "9100",
		"SCOREBOARD_STORAGE_PATH": "/data/env.db",
		"SCOREBOARD_HALFTIME":     "3m",
	}
	require.NoError(t, cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}))
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "/data/env.db", cfg.Storage.Path)
	assert.Equal(t, 3*time.Minute, cfg.Match.Halftime)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--api-port", "9200", "--log-json"}))
	assert.Equal(t, 9200, cfg.Server.Port)
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Match.AtomicScores)

	require.NoError(t, cfg.Validate())
}

func TestEnvErrors(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(func(k string) (string, bool) {
		if k == "SCOREBOARD_PORT" {
			return "eighty", true
		}
		return "", false
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SCOREBOARD_PORT")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"pid lock without file", func(c *Config) { c.Server.PIDLock = true }},
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"short secret", func(c *Config) { c.Auth.Secret = "short" }},
		{"zero page size", func(c *Config) { c.Match.PageSize = 0 }},
		{"unknown zone", func(c *Config) { c.Match.Timezone = "Mars/Olympus" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := Default()
	cfg.Match.Timezone = "UTC"
	require.NoError(t, cfg.Validate())
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}
