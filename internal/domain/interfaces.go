package domain

import (
	"context"
)

// KnowledgeSnapshot is a read-only, versioned view of the disease knowledge graph. A snapshot
// never changes once published, so it can be shared across concurrent requests without locks.
type KnowledgeSnapshot interface {
	Lookup(findingCode string) (AssociationSet, error)
	Prevalence(diseaseID string) (float64, error)
	Disease(diseaseID string) (DiseaseProfile, bool)
	Version() string
}

// LiteratureRetriever fetches supporting citations. Calls are best effort.
type LiteratureRetriever interface {
	CitationsFor(ctx context.Context, diseaseID string, topFindings []string) ([]Citation, error)
}

// ScoringStrategy is one member of the scoring ensemble. Score returns a raw likelihood in
// (0,1]; implementations must be deterministic and side-effect free.
type ScoringStrategy interface {
	Name() string
	Score(candidate DiseaseCandidate, profile *NormalizedCase, snapshot KnowledgeSnapshot) (float64, error)
}

// Calibrator maps a vector of renormalized posterior probabilities onto calibrated ones.
// The output must sum to 1 when the input does.
type Calibrator interface {
	Method() string
	Calibrate(probabilities []float64) []float64
}

// DiagnosticEngine produces a differential for one case.
type DiagnosticEngine interface {
	Diagnose(ctx context.Context, profile *NormalizedCase) (*DifferentialDiagnosis, error)
}

// DifferentialRepository defines persistence of produced differentials by the case store
type DifferentialRepository interface {
	Save(ctx context.Context, dd *DifferentialDiagnosis) error
	GetByID(ctx context.Context, id string) (*DifferentialDiagnosis, error)
	ListByCase(ctx context.Context, caseID string) ([]*DifferentialDiagnosis, error)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetServerConfig() *ServerConfig
	GetDiagnosisConfig() *DiagnosisConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetRedisConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
