package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiancehq/radiance/pkg/storage"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, storage.AdapterJSON, cfg.Storage.Adapter)
	assert.Equal(t, "data/storage", cfg.Storage.JSONPath)
	assert.Equal(t, "@every 5m", cfg.Migration.ReconcileSchedule)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("RADIANCE_PORT", "9090")
	t.Setenv("STORAGE_ADAPTER", "supabase")
	t.Setenv("SUPABASE_DB_URL", "postgres://localhost/radiance?sslmode=disable")
	t.Setenv("SUPABASE_TIMEOUT", "30s")
	t.Setenv("STORAGE_CACHE_ENABLED", "true")
	t.Setenv("STORAGE_REDIS_URL", "redis://localhost:6379")
	t.Setenv("RADIANCE_LOG_LEVEL", "debug")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, storage.AdapterSupabase, cfg.Storage.Adapter)
	assert.Equal(t, "postgres://localhost/radiance?sslmode=disable", cfg.Storage.SupabaseDBURL)
	assert.Equal(t, 30*time.Second, cfg.Storage.SupabaseTimeout)
	assert.True(t, cfg.Storage.CacheEnabled)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfig_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  port: "7070"
storage:
  adapter: json
  json_path: /var/lib/radiance
migration:
  reconcile_schedule: "@every 1m"
log_level: warn
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, "/var/lib/radiance", cfg.Storage.JSONPath)
	assert.Equal(t, "@every 1m", cfg.Migration.ReconcileSchedule)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadConfig_EnvBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: warn\n"), 0644))
	t.Setenv("RADIANCE_LOG_LEVEL", "error")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.LogLevel)
}

func TestLoadConfig_ValidatesAtLoad(t *testing.T) {
	t.Run("bad adapter", func(t *testing.T) {
		t.Setenv("STORAGE_ADAPTER", "mongo")
		_, err := LoadConfig("")
		assert.Error(t, err)
	})

	t.Run("supabase without credentials", func(t *testing.T) {
		t.Setenv("STORAGE_ADAPTER", "supabase")
		_, err := LoadConfig("")
		assert.Error(t, err)
	})

	t.Run("dual without journal path", func(t *testing.T) {
		t.Setenv("STORAGE_ADAPTER", "dual")
		t.Setenv("SUPABASE_DB_URL", "postgres://localhost/radiance")
		t.Setenv("MIGRATION_JOURNAL_DB", "")
		// Empty env values fall back to the default, so force it via file.
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("migration:\n  journal_db: \"\"\n"), 0644))

		_, err := LoadConfig(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("{not yaml"), 0644))
		_, err := LoadConfig(path)
		assert.Error(t, err)
	})
}
