// Package feedback stores clinician outcomes for produced differentials.
// Confirmed and refuted diagnoses become the labelled samples used to audit calibration.
package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ddx-reasoning-core/internal/domain"
)

// Outcome is the clinician's verdict on one ranked diagnosis.
type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeRefuted   Outcome = "refuted"
)

// IsValid reports whether the outcome is a known value.
func (o Outcome) IsValid() bool {
	return o == OutcomeConfirmed || o == OutcomeRefuted
}

// Feedback records whether a diagnosis that the engine ranked turned out to be right.
type Feedback struct {
	ID                  int64     `json:"id,omitempty"`
	CaseID              string    `json:"case_id"`
	DifferentialID      string    `json:"differential_id,omitempty"`
	DiseaseID           string    `json:"disease_id"`
	Rank                int       `json:"rank"`
	PredictedConfidence float64   `json:"predicted_confidence"` // point estimate, 0..100
	Outcome             Outcome   `json:"outcome"`
	KnowledgeVersion    string    `json:"knowledge_version,omitempty"`
	ModelVersion        string    `json:"model_version,omitempty"`
	Notes               string    `json:"notes,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Validate checks the fields a store relies on.
func (f *Feedback) Validate() error {
	switch {
	case strings.TrimSpace(f.CaseID) == "":
		return fmt.Errorf("case_id is required")
	case strings.TrimSpace(f.DiseaseID) == "":
		return fmt.Errorf("disease_id is required")
	case f.PredictedConfidence < 0 || f.PredictedConfidence > 100:
		return fmt.Errorf("predicted_confidence must be within 0..100, got %g", f.PredictedConfidence)
	case !f.Outcome.IsValid():
		return fmt.Errorf("invalid outcome %q", f.Outcome)
	case f.Rank < 0:
		return fmt.Errorf("rank must not be negative")
	}
	return nil
}

// FillFrom copies the engine's prediction for f.DiseaseID out of the differential that
// produced it.
func (f *Feedback) FillFrom(dd *domain.DifferentialDiagnosis) error {
	for _, d := range dd.Diagnoses {
		if d.Candidate.DiseaseID != f.DiseaseID {
			continue
		}
		f.CaseID = dd.CaseID
		f.DifferentialID = dd.ID
		f.Rank = d.Rank
		f.PredictedConfidence = d.Confidence.Point
		f.KnowledgeVersion = dd.Metadata.KnowledgeVersion
		f.ModelVersion = dd.Metadata.ModelVersion
		return nil
	}
	return fmt.Errorf("disease %s is not part of differential %s", f.DiseaseID, dd.ID)
}

// Samples is the labelled set fed to calibration evaluation.
type Samples struct {
	Predictions []float64 // probabilities, 0..1
	Outcomes    []bool
}

// Len returns the sample count.
func (s Samples) Len() int { return len(s.Predictions) }

func (s *Samples) add(confidence float64, outcome Outcome) {
	s.Predictions = append(s.Predictions, confidence/100)
	s.Outcomes = append(s.Outcomes, outcome == OutcomeConfirmed)
}

// Store defines the interface for feedback storage operations.
type Store interface {
	// Save stores or updates feedback. Entries are unique per case and disease.
	Save(ctx context.Context, feedback *Feedback) error

	// Get returns the feedback for a case and disease, or nil if there is none.
	Get(ctx context.Context, caseID, diseaseID string) (*Feedback, error)

	// List returns feedback entries, newest first.
	List(ctx context.Context, limit, offset int) ([]*Feedback, error)

	// Count returns the total number of feedback entries.
	Count(ctx context.Context) (int64, error)

	// Delete removes a feedback entry by ID.
	Delete(ctx context.Context, id int64) error

	// Samples returns prediction/outcome pairs, optionally restricted to one model version.
	Samples(ctx context.Context, modelVersion string) (Samples, error)

	// ExportJSON exports all feedback to a JSON writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON imports feedback, skipping entries that already exist.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)

	// Close closes the store and releases resources.
	Close() error
}

// FeedbackExport represents the JSON export format.
type FeedbackExport struct {
	Version    string      `json:"version"`
	ExportedAt time.Time   `json:"exported_at"`
	Count      int         `json:"count"`
	Feedback   []*Feedback `json:"feedback"`
}

const exportVersion = "1.0"

// maxExportLimit is the maximum number of entries to export at once.
const maxExportLimit = 1000000

func exportJSON(ctx context.Context, s Store, writer io.Writer) error {
	all, err := s.List(ctx, maxExportLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list feedback: %w", err)
	}
	if all == nil {
		all = []*Feedback{}
	}

	export := &FeedbackExport{
		Version:    exportVersion,
		ExportedAt: time.Now().UTC(),
		Count:      len(all),
		Feedback:   all,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

func importJSON(ctx context.Context, s Store, reader io.Reader) (imported int, skipped int, err error) {
	var export FeedbackExport
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("failed to decode JSON: %w", err)
	}

	for _, fb := range export.Feedback {
		if fb == nil || fb.Validate() != nil {
			skipped++
			continue
		}

		existing, err := s.Get(ctx, fb.CaseID, fb.DiseaseID)
		if err != nil {
			return imported, skipped, fmt.Errorf("failed to check existing: %w", err)
		}
		if existing != nil {
			skipped++
			continue
		}

		fb.ID = 0
		if err := s.Save(ctx, fb); err != nil {
			return imported, skipped, fmt.Errorf("failed to save: %w", err)
		}
		imported++
	}
	return imported, skipped, nil
}
