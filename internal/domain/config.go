package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Environment string           `mapstructure:"environment"`
	Server      ServerConfig     `mapstructure:"server"`
	Database    DatabaseConfig   `mapstructure:"database"`
	Cache       CacheConfig      `mapstructure:"cache"`
	Logging     LoggingConfig    `mapstructure:"logging"`
	Diagnosis   DiagnosisConfig  `mapstructure:"diagnosis"`
	Knowledge   KnowledgeConfig  `mapstructure:"knowledge"`
	Literature  LiteratureConfig `mapstructure:"literature"`
	Admission   AdmissionConfig  `mapstructure:"admission"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	TLSEnabled   bool          `mapstructure:"tls_enabled"`
	CertFile     string        `mapstructure:"cert_file"`
	KeyFile      string        `mapstructure:"key_file"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// CacheConfig represents cache configuration
type CacheConfig struct {
	RedisURL    string        `mapstructure:"redis_url"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	MaxRetries  int           `mapstructure:"max_retries"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// DiagnosisConfig holds every tunable of the reasoning pipeline.
type DiagnosisConfig struct {
	ModelVersion        string             `mapstructure:"model_version"`
	QualityThreshold    float64            `mapstructure:"quality_threshold"`
	Deadline            time.Duration      `mapstructure:"deadline"`
	TemporalBoost       float64            `mapstructure:"temporal_boost"`
	PriorExponent       float64            `mapstructure:"prior_exponent"`
	PrevalenceFloor     float64            `mapstructure:"prevalence_floor"`
	BaseHalfWidth       float64            `mapstructure:"base_half_width"`
	QualityWeight       float64            `mapstructure:"quality_weight"`
	DisagreementWeight  float64            `mapstructure:"disagreement_weight"`
	MaxHalfWidth        float64            `mapstructure:"max_half_width"`
	RareThreshold       float64            `mapstructure:"rare_threshold"`
	RareMinConfidence   float64            `mapstructure:"rare_min_confidence"`
	TieBand             float64            `mapstructure:"tie_band"`
	MinimumSize         int                `mapstructure:"minimum_size"`
	MaxDifferentialSize int                `mapstructure:"max_differential_size"`
	LowFrequency        float64            `mapstructure:"low_frequency"`
	ExplainParallelism  int                `mapstructure:"explain_parallelism"`
	LiteratureTimeout   time.Duration      `mapstructure:"literature_timeout"`
	CalibrationMethod   string             `mapstructure:"calibration_method"` // "temperature", "platt"
	Temperature         float64            `mapstructure:"temperature"`
	PlattA              float64            `mapstructure:"platt_a"`
	PlattB              float64            `mapstructure:"platt_b"`
	EnsembleWeights     map[string]float64 `mapstructure:"ensemble_weights"`
}

// DefaultDiagnosisConfig returns the tunables used when nothing is configured.
func DefaultDiagnosisConfig() DiagnosisConfig {
	return DiagnosisConfig{
		ModelVersion:        "ddx-core-1.0.0",
		QualityThreshold:    40,
		Deadline:            30 * time.Second,
		TemporalBoost:       0.25,
		PriorExponent:       0.5,
		PrevalenceFloor:     1e-7,
		BaseHalfWidth:       2,
		QualityWeight:       20,
		DisagreementWeight:  40,
		MaxHalfWidth:        50,
		RareThreshold:       1e-4,
		RareMinConfidence:   15,
		TieBand:             10,
		MinimumSize:         10,
		MaxDifferentialSize: 10,
		LowFrequency:        0.1,
		ExplainParallelism:  8,
		LiteratureTimeout:   4 * time.Second,
		CalibrationMethod:   "temperature",
		Temperature:         1.0,
		PlattA:              1.0,
		PlattB:              0.0,
		EnsembleWeights: map[string]float64{
			"frequency":   1.0,
			"coverage":    1.0,
			"naive_bayes": 1.0,
		},
	}
}

// KnowledgeConfig locates the knowledge snapshot and sizes its lookup cache.
type KnowledgeConfig struct {
	SnapshotPath    string        `mapstructure:"snapshot_path"`
	LookupCacheSize int           `mapstructure:"lookup_cache_size"`
	ReloadInterval  time.Duration `mapstructure:"reload_interval"`
}

// LiteratureConfig represents PubMed retrieval configuration
type LiteratureConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	Email      string        `mapstructure:"email"` // Required by NCBI
	Timeout    time.Duration `mapstructure:"timeout"`
	RateLimit  int           `mapstructure:"rate_limit"`
	MaxResults int           `mapstructure:"max_results"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`

	BreakerMinRequests  uint32        `mapstructure:"breaker_min_requests"`
	BreakerFailureRatio float64       `mapstructure:"breaker_failure_ratio"`
	BreakerOpenTimeout  time.Duration `mapstructure:"breaker_open_timeout"`
}

// AdmissionConfig bounds concurrent diagnostic work.
type AdmissionConfig struct {
	MaxConcurrent   int           `mapstructure:"max_concurrent"`
	MaxQueue        int           `mapstructure:"max_queue"`
	InitialEstimate time.Duration `mapstructure:"initial_estimate"`
}
