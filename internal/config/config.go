package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/ddx-reasoning-core/internal/domain"
)

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	configFile string
	config     *domain.Config
}

// NewManager loads config.yaml from the standard search paths.
func NewManager() (*Manager, error) {
	return NewManagerWithFile("")
}

// NewManagerWithFile loads an explicit config file. An empty path searches the standard locations.
func NewManagerWithFile(path string) (*Manager, error) {
	m := &Manager{configFile: path}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	v := viper.New()

	if m.configFile != "" {
		if _, err := os.Stat(m.configFile); err != nil {
			return fmt.Errorf("config file: %w", err)
		}
		v.SetConfigFile(m.configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/ddx-core/")
	}

	// DDX_DIAGNOSIS_QUALITY_THRESHOLD overrides diagnosis.quality_threshold
	v.SetEnvPrefix("DDX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "45s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.tls_enabled", false)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "ddx_core")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("database.migrations_path", "migrations")

	// Cache defaults
	v.SetDefault("cache.redis_url", "redis://localhost:6379")
	v.SetDefault("cache.default_ttl", "24h")
	v.SetDefault("cache.max_retries", 3)
	v.SetDefault("cache.pool_size", 10)
	v.SetDefault("cache.pool_timeout", "4s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	d := domain.DefaultDiagnosisConfig()
	v.SetDefault("diagnosis.model_version", d.ModelVersion)
	v.SetDefault("diagnosis.quality_threshold", d.QualityThreshold)
	v.SetDefault("diagnosis.deadline", d.Deadline.String())
	v.SetDefault("diagnosis.temporal_boost", d.TemporalBoost)
	v.SetDefault("diagnosis.prior_exponent", d.PriorExponent)
	v.SetDefault("diagnosis.prevalence_floor", d.PrevalenceFloor)
	v.SetDefault("diagnosis.base_half_width", d.BaseHalfWidth)
	v.SetDefault("diagnosis.quality_weight", d.QualityWeight)
	v.SetDefault("diagnosis.disagreement_weight", d.DisagreementWeight)
	v.SetDefault("diagnosis.max_half_width", d.MaxHalfWidth)
	v.SetDefault("diagnosis.rare_threshold", d.RareThreshold)
	v.SetDefault("diagnosis.rare_min_confidence", d.RareMinConfidence)
	v.SetDefault("diagnosis.tie_band", d.TieBand)
	v.SetDefault("diagnosis.minimum_size", d.MinimumSize)
	v.SetDefault("diagnosis.max_differential_size", d.MaxDifferentialSize)
	v.SetDefault("diagnosis.low_frequency", d.LowFrequency)
	v.SetDefault("diagnosis.explain_parallelism", d.ExplainParallelism)
	v.SetDefault("diagnosis.literature_timeout", d.LiteratureTimeout.String())
	v.SetDefault("diagnosis.calibration_method", d.CalibrationMethod)
	v.SetDefault("diagnosis.temperature", d.Temperature)
	v.SetDefault("diagnosis.platt_a", d.PlattA)
	v.SetDefault("diagnosis.platt_b", d.PlattB)
	v.SetDefault("diagnosis.ensemble_weights", d.EnsembleWeights)

	// Knowledge defaults
	v.SetDefault("knowledge.snapshot_path", "knowledge/snapshot.yaml")
	v.SetDefault("knowledge.lookup_cache_size", 4096)
	v.SetDefault("knowledge.reload_interval", "0s")

	// Literature defaults
	v.SetDefault("literature.enabled", false)
	v.SetDefault("literature.base_url", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/")
	v.SetDefault("literature.timeout", "3s")
	v.SetDefault("literature.rate_limit", 3)
	v.SetDefault("literature.max_results", 5)
	v.SetDefault("literature.cache_ttl", "168h")
	v.SetDefault("literature.breaker_min_requests", 3)
	v.SetDefault("literature.breaker_failure_ratio", 0.6)
	v.SetDefault("literature.breaker_open_timeout", "60s")

	// Admission defaults
	v.SetDefault("admission.max_concurrent", 1024)
	v.SetDefault("admission.max_queue", 4096)
	v.SetDefault("admission.initial_estimate", "2s")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetDatabaseConfig returns database configuration
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetDiagnosisConfig returns the reasoning pipeline tunables
func (m *Manager) GetDiagnosisConfig() *domain.DiagnosisConfig {
	return &m.config.Diagnosis
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if config.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if config.Database.Username == "" {
		return fmt.Errorf("database username is required")
	}

	if config.Knowledge.SnapshotPath == "" {
		return fmt.Errorf("knowledge snapshot path is required")
	}
	if config.Literature.Enabled && config.Literature.BaseURL == "" {
		return fmt.Errorf("literature base URL is required when literature is enabled")
	}

	if err := ValidateDiagnosis(config.Diagnosis); err != nil {
		return err
	}

	if _, err := logrus.ParseLevel(config.Logging.Level); err != nil {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// ValidateDiagnosis checks the pipeline tunables for values the engine cannot work with.
func ValidateDiagnosis(d domain.DiagnosisConfig) error {
	switch {
	case d.QualityThreshold < 0 || d.QualityThreshold > 100:
		return fmt.Errorf("diagnosis.quality_threshold must be within 0..100, got %g", d.QualityThreshold)
	case d.Deadline <= 0:
		return fmt.Errorf("diagnosis.deadline must be positive")
	case d.TieBand < 0:
		return fmt.Errorf("diagnosis.tie_band must not be negative")
	case d.MinimumSize < 1:
		return fmt.Errorf("diagnosis.minimum_size must be at least 1")
	case d.PriorExponent < 0:
		return fmt.Errorf("diagnosis.prior_exponent must not be negative")
	case d.MaxHalfWidth <= 0 || d.MaxHalfWidth > 50:
		return fmt.Errorf("diagnosis.max_half_width must be within (0, 50]")
	}

	switch d.CalibrationMethod {
	case "temperature":
		if d.Temperature <= 0 {
			return fmt.Errorf("diagnosis.temperature must be positive")
		}
	case "platt":
	default:
		return fmt.Errorf("unknown calibration method: %s", d.CalibrationMethod)
	}

	var total float64
	for name, w := range d.EnsembleWeights {
		if w < 0 {
			return fmt.Errorf("ensemble weight for %s must not be negative", name)
		}
		total += w
	}
	if len(d.EnsembleWeights) > 0 && total == 0 {
		return fmt.Errorf("ensemble weights must not all be zero")
	}
	return nil
}

// GetDatabaseConnectionString returns a formatted database connection string
func (m *Manager) GetDatabaseConnectionString() string {
	db := m.config.Database
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.Username, db.Password, db.Database, db.SSLMode)
}

// GetRedisConnectionString returns the Redis connection string
func (m *Manager) GetRedisConnectionString() string {
	return m.config.Cache.RedisURL
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.config.Environment) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.config.Environment)
	return env == "development" || env == "dev" || env == ""
}

// NewLogger builds the process logger from the logging section.
func NewLogger(cfg domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if strings.EqualFold(cfg.Format, "text") {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	// stdout is reserved for the stdio transport in MCP mode
	if strings.EqualFold(cfg.Output, "stderr") {
		logger.SetOutput(os.Stderr)
	} else {
		logger.SetOutput(os.Stdout)
	}
	return logger
}
