package domain

import (
	"time"
)

// ReasoningStep ties one or more evidence items to a signed contribution, in percentage
// points, towards the final confidence.
type ReasoningStep struct {
	Order        int        `json:"order"`
	Description  string     `json:"description"`
	Evidence     []Evidence `json:"evidence,omitempty"`
	Contribution float64    `json:"contribution"`
}

// ReasoningChain explains one ranked diagnosis. Citations is never nil.
type ReasoningChain struct {
	Steps                  []ReasoningStep   `json:"steps"`
	ConfidenceExplanation  string            `json:"confidence_explanation"`
	DominantUncertainty    UncertaintySource `json:"dominant_uncertainty"`
	Citations              []Citation        `json:"citations"`
	DegradedExplainability bool              `json:"degraded_explainability"`
}

// RankedDiagnosis is a scored candidate placed in the differential.
type RankedDiagnosis struct {
	Rank        int                  `json:"rank"`
	Candidate   DiseaseCandidate     `json:"candidate"`
	Confidence  ConfidenceInterval   `json:"confidence"`
	Urgency     UrgencyLevel         `json:"urgency"`
	Prevalence  float64              `json:"prevalence"`
	Rare        bool                 `json:"rare"`
	RareInclude bool                 `json:"rare_inclusion"`
	Uncertainty UncertaintyBreakdown `json:"uncertainty"`
	Evidence    []Evidence           `json:"evidence"`
	Chain       *ReasoningChain      `json:"reasoning_chain,omitempty"`
}

// UrgentFlag marks a diagnosis in the differential that must not be missed.
type UrgentFlag struct {
	DiseaseID string       `json:"disease_id"`
	Name      string       `json:"name"`
	Urgency   UrgencyLevel `json:"urgency"`
	Rank      int          `json:"rank"`
}

// ProcessingMetadata stamps a differential with the versions that produced it.
type ProcessingMetadata struct {
	ModelVersion       string        `json:"model_version"`
	KnowledgeVersion   string        `json:"knowledge_version"`
	CalibrationMethod  string        `json:"calibration_method"`
	EnsembleStrategies []string      `json:"ensemble_strategies"`
	CandidatesScored   int           `json:"candidates_scored"`
	Elapsed            time.Duration `json:"elapsed"`
	GeneratedAt        time.Time     `json:"generated_at"`
}

// DifferentialDiagnosis is the complete per-case output. It is never mutated after being
// returned; a re-run supersedes it with a new version stamp.
type DifferentialDiagnosis struct {
	ID                     string                   `json:"id"`
	CaseID                 string                   `json:"case_id"`
	Diagnoses              []RankedDiagnosis        `json:"diagnoses"`
	UrgentFlags            []UrgentFlag             `json:"urgent_flags"`
	BelowMinimum           bool                     `json:"below_minimum"`
	DegradedExplainability bool                     `json:"degraded_explainability"`
	DistinguishingFeatures []DistinguishingFeatures `json:"distinguishing_features,omitempty"`
	Metadata               ProcessingMetadata       `json:"metadata"`
}

// Top returns the highest ranked diagnosis, or false when the differential is empty.
func (d *DifferentialDiagnosis) Top() (RankedDiagnosis, bool) {
	if d == nil || len(d.Diagnoses) == 0 {
		return RankedDiagnosis{}, false
	}
	return d.Diagnoses[0], true
}

// Find returns the diagnosis for diseaseID, if present.
func (d *DifferentialDiagnosis) Find(diseaseID string) (RankedDiagnosis, bool) {
	for _, rd := range d.Diagnoses {
		if rd.Candidate.DiseaseID == diseaseID {
			return rd, true
		}
	}
	return RankedDiagnosis{}, false
}
