package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const base = `
db:
  driver: sqlite
  path: ${PENNYWISE_TEST_DB}
jwt:
  secret: from-file
scheduler:
  interval: 30s
`

func TestLoadFrom(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.yaml"), []byte(base), 0o644))
	t.Setenv("PENNYWISE_TEST_DB", "/tmp/pennywise.db")
	t.Setenv("JWT_SECRET", "from-env")

	cfg, err := LoadFrom("test", dir)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, "/tmp/pennywise.db", cfg.DB.Path)
	assert.Equal(t, "from-env", cfg.JWT.Secret)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.Interval)
	assert.Equal(t, 4, cfg.Scheduler.Workers)
	assert.Equal(t, "8080", cfg.Server.Port)
}

func TestLoadFromRejectsBadDriver(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.yaml"),
		[]byte("db:\n  driver: mongo\njwt:\n  secret: x\n"), 0o644))

	_, err := LoadFrom("", dir)
	assert.ErrorContains(t, err, "unsupported db.driver")
}

func TestLoadFromRequiresSecret(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.yaml"), []byte("db:\n  driver: postgres\n"), 0o644))
	t.Setenv("JWT_SECRET", "")

	_, err := LoadFrom("", dir)
	assert.ErrorContains(t, err, "jwt.secret")
}
