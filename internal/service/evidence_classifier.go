package service

import (
	"fmt"

	"github.com/ddx-reasoning-core/internal/domain"
)

// EvidenceClassifier tags every finding of a case against one candidate.
type EvidenceClassifier struct {
	lowFrequency float64
}

// NewEvidenceClassifier creates an evidence classifier
func NewEvidenceClassifier(cfg domain.DiagnosisConfig) *EvidenceClassifier {
	return &EvidenceClassifier{lowFrequency: cfg.LowFrequency}
}

// Classify returns exactly one evidence item per finding, in case order. A finding is
// supporting when the disease lists it at or above the low-frequency threshold, contradicting
// when it is exclusionary or documented as rare for the disease, and neutral otherwise.
func (c *EvidenceClassifier) Classify(snapshot domain.KnowledgeSnapshot, diseaseID string, profile *domain.NormalizedCase) ([]domain.Evidence, error) {
	findings := profile.AllFindings()
	out := make([]domain.Evidence, 0, len(findings))
	for _, f := range findings {
		set, err := snapshot.Lookup(f.Code)
		if err != nil {
			return nil, domain.NewKnowledgeUnavailableError(err)
		}

		ev := domain.Evidence{FindingCode: f.Code, DiseaseID: diseaseID, Kind: domain.EvidenceNeutral}
		a, ok := set.For(diseaseID)
		switch {
		case !ok:
			ev.Rationale = "no documented association"
		case a.Exclusionary:
			ev.Kind = domain.EvidenceContradicting
			ev.Weight = a.Specificity
			ev.Rationale = "finding argues against this diagnosis"
		case a.Frequency < c.lowFrequency:
			ev.Kind = domain.EvidenceContradicting
			ev.Weight = a.Weight()
			ev.Rationale = fmt.Sprintf("seen in only %.0f%% of cases", 100*a.Frequency)
		default:
			ev.Kind = domain.EvidenceSupporting
			ev.Weight = a.Weight()
			ev.Rationale = fmt.Sprintf("present in %.0f%% of cases, specificity %.2f", 100*a.Frequency, a.Specificity)
		}
		out = append(out, ev)
	}
	return out, nil
}

// DistinguishingFeatures lists the findings classified differently for two candidates. Both
// evidence lists must come from Classify on the same case.
func (c *EvidenceClassifier) DistinguishingFeatures(a, b domain.RankedDiagnosis) domain.DistinguishingFeatures {
	df := domain.DistinguishingFeatures{
		DiseaseA: a.Candidate.DiseaseID,
		DiseaseB: b.Candidate.DiseaseID,
		Findings: []domain.DistinguishingFinding{},
	}

	kindsB := make(map[string]domain.EvidenceKind, len(b.Evidence))
	for _, e := range b.Evidence {
		kindsB[e.FindingCode] = e.Kind
	}
	for _, e := range a.Evidence {
		kb, ok := kindsB[e.FindingCode]
		if !ok || kb == e.Kind {
			continue
		}
		df.Findings = append(df.Findings, domain.DistinguishingFinding{
			FindingCode: e.FindingCode,
			KindA:       e.Kind,
			KindB:       kb,
		})
	}
	return df
}
