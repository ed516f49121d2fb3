package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("STMTSYNC_CONFIG", filepath.Join(dir, "config.toml"))
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, filepath.Join(dir, ".local", "share", "stmtsync", "stmtsync.db"), cfg.Database.Path)
	assert.Equal(t, 4, cfg.Import.Workers)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())

	th, err := cfg.Import.Threshold()
	require.NoError(t, err)
	assert.Equal(t, "0.5", th.String())
}

func TestLoadEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("STMTSYNC_DATABASE_DRIVER", "postgres")
	t.Setenv("STMTSYNC_DATABASE_URL", "postgres://localhost/stmtsync")
	t.Setenv("STMTSYNC_IMPORT_WORKERS", "9")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://localhost/stmtsync", cfg.Database.URL)
	assert.Equal(t, 9, cfg.Import.Workers)
	assert.NoError(t, cfg.Validate())
}

func TestLoadDotEnv(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("STMTSYNC_LOG_LEVEL=debug\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("STMTSYNC_LOG_LEVEL") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestSaveRoundTrip(t *testing.T) {
	isolate(t)
	cfg, err := Load()
	require.NoError(t, err)
	cfg.Import.Provider = "bancolombia"
	cfg.Import.AnomalyThreshold = "0.25"
	cfg.Metrics.Addr = ":9100"
	require.NoError(t, Save(cfg))

	got, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "bancolombia", got.Import.Provider)
	assert.Equal(t, "0.25", got.Import.AnomalyThreshold)
	assert.Equal(t, ":9100", got.Metrics.Addr)
}

func TestValidate(t *testing.T) {
	base := Config{
		Database: DatabaseConfig{Driver: "sqlite", Path: "x.db"},
		Import:   ImportConfig{Workers: 1, AnomalyThreshold: "0.5"},
	}
	assert.NoError(t, base.Validate())

	bad := base
	bad.Database.Driver = "mysql"
	assert.Error(t, bad.Validate())

	bad = base
	bad.Database = DatabaseConfig{Driver: "postgres"}
	assert.Error(t, bad.Validate())

	bad = base
	bad.Import.Workers = 0
	assert.Error(t, bad.Validate())

	bad = base
	bad.Import.AnomalyThreshold = "half"
	assert.Error(t, bad.Validate())
}
