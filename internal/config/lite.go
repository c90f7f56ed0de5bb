// Package config provides configuration management for the diagnostic services.
// This file contains the lightweight configuration for standalone operation.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ddx-reasoning-core/internal/domain"
)

// LiteConfig is a simplified configuration for standalone operation.
// It requires no external databases and uses sensible defaults.
type LiteConfig struct {
	// Data storage
	DataDir      string // Base directory for data files
	SnapshotPath string // Knowledge snapshot; defaults to <DataDir>/knowledge.yaml

	// Cache settings
	CacheMaxItems int           // Maximum items in memory cache
	CacheTTL      time.Duration // Default cache TTL

	// Literature settings
	LiteratureEnabled bool
	PubMedAPIKey      string // Optional: NCBI API key for higher rate limits
	PubMedEmail       string

	// Reasoning settings
	QualityThreshold float64
	Deadline         time.Duration

	// Transport settings
	Transport string // Transport type: stdio, http
	HTTPPort  int    // HTTP port (if transport is http)

	// Logging
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: json, text
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".ddx-core")
	d := domain.DefaultDiagnosisConfig()

	return &LiteConfig{
		DataDir:          dataDir,
		CacheMaxItems:    1000,
		CacheTTL:         time.Hour,
		QualityThreshold: d.QualityThreshold,
		Deadline:         d.Deadline,
		Transport:        "stdio",
		HTTPPort:         8080,
		LogLevel:         "info",
		LogFormat:        "json",
	}
}

// LoadLiteConfig loads configuration from environment variables.
// Falls back to defaults if not set.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	if v := os.Getenv("DDX_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("DDX_SNAPSHOT_PATH"); v != "" {
		cfg.SnapshotPath = v
	}

	if v := os.Getenv("DDX_CACHE_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheMaxItems = n
		}
	}
	if v := os.Getenv("DDX_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CacheTTL = d
		}
	}

	if v := os.Getenv("DDX_LITERATURE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.LiteratureEnabled = b
		}
	}
	cfg.PubMedAPIKey = os.Getenv("NCBI_API_KEY")
	cfg.PubMedEmail = os.Getenv("NCBI_EMAIL")

	if v := os.Getenv("DDX_QUALITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 100 {
			cfg.QualityThreshold = f
		}
	}
	if v := os.Getenv("DDX_DEADLINE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Deadline = d
		}
	}

	if v := os.Getenv("DDX_TRANSPORT"); v != "" {
		cfg.Transport = v
	}
	if v := os.Getenv("DDX_HTTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HTTPPort = n
		}
	}

	if v := os.Getenv("DDX_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DDX_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// KnowledgePath returns the snapshot to load.
func (c *LiteConfig) KnowledgePath() string {
	if c.SnapshotPath != "" {
		return c.SnapshotPath
	}
	return filepath.Join(c.DataDir, "knowledge.yaml")
}

// FeedbackDBPath returns the path to the feedback SQLite database.
func (c *LiteConfig) FeedbackDBPath() string {
	return filepath.Join(c.DataDir, "feedback.db")
}

// ExportDir returns the directory for JSON exports.
func (c *LiteConfig) ExportDir() string {
	return filepath.Join(c.DataDir, "exports")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *LiteConfig) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(c.ExportDir(), 0755)
}

// Diagnosis returns pipeline tunables with the lite overrides applied.
func (c *LiteConfig) Diagnosis() domain.DiagnosisConfig {
	d := domain.DefaultDiagnosisConfig()
	d.QualityThreshold = c.QualityThreshold
	if c.Deadline > 0 {
		d.Deadline = c.Deadline
	}
	return d
}

// Literature returns the PubMed settings for the lite server.
func (c *LiteConfig) Literature() domain.LiteratureConfig {
	return domain.LiteratureConfig{
		Enabled:    c.LiteratureEnabled,
		APIKey:     c.PubMedAPIKey,
		Email:      c.PubMedEmail,
		Timeout:    3 * time.Second,
		RateLimit:  3,
		MaxResults: 5,
		CacheTTL:   c.CacheTTL,
	}
}

// Logging returns the logging section. Lite logs go to stderr so stdio stays clean.
func (c *LiteConfig) Logging() domain.LoggingConfig {
	return domain.LoggingConfig{Level: c.LogLevel, Format: c.LogFormat, Output: "stderr"}
}
