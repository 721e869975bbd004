package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadConfig(t *testing.T) {
	t.Run("env file overlays base", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "base.yaml", "db:\n  host: localhost\n  port: 5432\nserver:\n  port: \"8080\"\n")
		writeFile(t, dir, "production.yaml", "db:\n  host: db.internal\n")

		cfgMap, err := LoadConfig("production", dir)
		require.NoError(t, err)

		db := cfgMap["db"].(map[string]interface{})
		assert.Equal(t, "db.internal", db["host"])
		assert.Equal(t, 5432, db["port"])
	})

	t.Run("missing env file falls back to base", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "base.yaml", "jwt:\n  secret: base-secret\n")

		cfgMap, err := LoadConfig("staging", dir)
		require.NoError(t, err)
		assert.Equal(t, "base-secret", cfgMap["jwt"].(map[string]interface{})["secret"])
	})

	t.Run("placeholders resolve from secrets then process env", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "base.yaml", "jwt:\n  secret: ${JWT_SIGNING}\ndb:\n  password: ${PW_FROM_ENV}\n")
		writeFile(t, dir, "secrets.env", "# comment\nJWT_SIGNING=\"from-secrets\"\nPW_FROM_ENV=ignored\n")
		t.Setenv("PW_FROM_ENV", "from-process")

		cfgMap, err := LoadConfig("", dir)
		require.NoError(t, err)
		assert.Equal(t, "from-secrets", cfgMap["jwt"].(map[string]interface{})["secret"])
		assert.Equal(t, "from-process", cfgMap["db"].(map[string]interface{})["password"])
	})

	t.Run("missing base is an error", func(t *testing.T) {
		_, err := LoadConfig("local", t.TempDir())
		assert.Error(t, err)
	})
}

func TestDecode(t *testing.T) {
	var out struct {
		Scheduler SchedulerConfig `yaml:"scheduler"`
	}
	cfgMap := map[string]interface{}{
		"scheduler": map[string]interface{}{
			"interval":            "30s",
			"workers":             8,
			"conditional_advance": true,
		},
	}

	require.NoError(t, Decode(cfgMap, &out))
	assert.Equal(t, 30*time.Second, out.Scheduler.Interval)
	assert.Equal(t, 8, out.Scheduler.Workers)
	assert.True(t, out.Scheduler.ConditionalAdvance)

	withDefaults := out.Scheduler.WithDefaults()
	assert.Equal(t, 50*time.Second, withDefaults.RunTimeout)
	assert.Equal(t, 10*time.Minute, withDefaults.ClaimTTL)
}

func TestOverrideSchedulerFromEnv(t *testing.T) {
	t.Setenv("SCHEDULER_INTERVAL", "5m")
	t.Setenv("SCHEDULER_WORKERS", "2")
	t.Setenv("SCHEDULER_CONDITIONAL_ADVANCE", "true")

	cfg := SchedulerConfig{Interval: time.Minute, Workers: 4}
	OverrideSchedulerFromEnv(&cfg)

	assert.Equal(t, 5*time.Minute, cfg.Interval)
	assert.Equal(t, 2, cfg.Workers)
	assert.True(t, cfg.ConditionalAdvance)
}
