package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLiteConfig(t *testing.T) {
	cfg := DefaultLiteConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, 1000, cfg.CacheMaxItems)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, 40.0, cfg.QualityThreshold)
	assert.Equal(t, 30*time.Second, cfg.Deadline)
	assert.Equal(t, "stdio", cfg.Transport)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.False(t, cfg.LiteratureEnabled)
}

func TestLoadLiteConfig_Defaults(t *testing.T) {
	clearEnvVars(t)

	cfg := LoadLiteConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, 1000, cfg.CacheMaxItems)
	assert.Equal(t, "stdio", cfg.Transport)
}

func TestLoadLiteConfig_EnvironmentOverrides(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("DDX_DATA_DIR", "/tmp/test-ddx")
	t.Setenv("DDX_CACHE_MAX_ITEMS", "500")
	t.Setenv("DDX_CACHE_TTL", "12h")
	t.Setenv("DDX_TRANSPORT", "http")
	t.Setenv("DDX_HTTP_PORT", "9090")
	t.Setenv("DDX_LOG_LEVEL", "debug")
	t.Setenv("DDX_LITERATURE_ENABLED", "true")
	t.Setenv("DDX_QUALITY_THRESHOLD", "55")
	t.Setenv("DDX_DEADLINE", "5s")
	t.Setenv("NCBI_API_KEY", "test-key")

	cfg := LoadLiteConfig()

	assert.Equal(t, "/tmp/test-ddx", cfg.DataDir)
	assert.Equal(t, 500, cfg.CacheMaxItems)
	assert.Equal(t, 12*time.Hour, cfg.CacheTTL)
	assert.Equal(t, "http", cfg.Transport)
	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.LiteratureEnabled)
	assert.Equal(t, "test-key", cfg.PubMedAPIKey)

	d := cfg.Diagnosis()
	assert.Equal(t, 55.0, d.QualityThreshold)
	assert.Equal(t, 5*time.Second, d.Deadline)
	assert.Equal(t, "test-key", cfg.Literature().APIKey)
}

func TestLoadLiteConfig_IgnoresInvalidValues(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("DDX_QUALITY_THRESHOLD", "140")
	t.Setenv("DDX_CACHE_MAX_ITEMS", "-3")

	cfg := LoadLiteConfig()
	assert.Equal(t, 40.0, cfg.QualityThreshold)
	assert.Equal(t, 1000, cfg.CacheMaxItems)
}

func TestLiteConfig_Paths(t *testing.T) {
	cfg := &LiteConfig{DataDir: "/home/user/.ddx-core"}

	assert.Equal(t, "/home/user/.ddx-core/feedback.db", cfg.FeedbackDBPath())
	assert.Equal(t, "/home/user/.ddx-core/exports", cfg.ExportDir())
	assert.Equal(t, "/home/user/.ddx-core/knowledge.yaml", cfg.KnowledgePath())

	cfg.SnapshotPath = "/srv/snapshot.json"
	assert.Equal(t, "/srv/snapshot.json", cfg.KnowledgePath())
}

func TestLiteConfig_EnsureDataDir(t *testing.T) {
	cfg := &LiteConfig{DataDir: filepath.Join(t.TempDir(), "ddx")}

	err := cfg.EnsureDataDir()
	require.NoError(t, err)

	_, err = os.Stat(cfg.DataDir)
	assert.NoError(t, err)

	_, err = os.Stat(cfg.ExportDir())
	assert.NoError(t, err)
}

func TestLiteConfig_LoggingUsesStderr(t *testing.T) {
	cfg := DefaultLiteConfig()
	assert.Equal(t, "stderr", cfg.Logging().Output)
}

func clearEnvVars(t *testing.T) {
	t.Helper()
	vars := []string{
		"DDX_DATA_DIR",
		"DDX_SNAPSHOT_PATH",
		"DDX_CACHE_MAX_ITEMS",
		"DDX_CACHE_TTL",
		"DDX_LITERATURE_ENABLED",
		"DDX_QUALITY_THRESHOLD",
		"DDX_DEADLINE",
		"DDX_TRANSPORT",
		"DDX_HTTP_PORT",
		"DDX_LOG_LEVEL",
		"DDX_LOG_FORMAT",
		"NCBI_API_KEY",
		"NCBI_EMAIL",
	}
	for _, v := range vars {
		// t.Setenv restores the original value after the test
		t.Setenv(v, "")
		os.Unsetenv(v)
	}
}
