package service

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/ddx-reasoning-core/internal/domain"
)

// CandidateGenerator turns a normalized case into the ordered list of diseases worth scoring.
type CandidateGenerator struct {
	qualityThreshold float64
	temporalBoost    float64
	logger           *logrus.Logger
}

// NewCandidateGenerator creates a candidate generator
func NewCandidateGenerator(cfg domain.DiagnosisConfig, logger *logrus.Logger) *CandidateGenerator {
	return &CandidateGenerator{
		qualityThreshold: cfg.QualityThreshold,
		temporalBoost:    cfg.TemporalBoost,
		logger:           logger,
	}
}

// Generate matches every finding of the case against the snapshot and returns the candidates
// sorted by descending raw score, ties broken by disease ID.
//
// A case without the upstream quality flag, or scoring below the threshold, is refused with an
// INPUT_QUALITY error. A snapshot lookup failure is fatal and returns KNOWLEDGE_UNAVAILABLE.
func (g *CandidateGenerator) Generate(ctx context.Context, snapshot domain.KnowledgeSnapshot, profile *domain.NormalizedCase) ([]domain.DiseaseCandidate, error) {
	if !profile.QualityValidated || profile.QualityScore < g.qualityThreshold {
		return nil, domain.NewInputQualityError(profile.QualityScore, g.qualityThreshold, profile.QualityValidated)
	}

	findings := profile.AllFindings()
	if len(findings) == 0 {
		return nil, nil
	}
	early := earlyOnsetFlags(findings)

	scores := make(map[string]float64)
	matched := make(map[string]int)
	for i, f := range findings {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		set, err := snapshot.Lookup(f.Code)
		if err != nil {
			return nil, domain.NewKnowledgeUnavailableError(err)
		}

		for _, a := range set.Associations {
			if a.Exclusionary {
				continue
			}
			w := a.Weight() * g.temporalFactor(a, f, early[i])
			if w <= 0 {
				continue
			}
			scores[a.DiseaseID] += w
			matched[a.DiseaseID]++
		}
	}

	n := float64(len(findings))
	candidates := make([]domain.DiseaseCandidate, 0, len(scores))
	for id, total := range scores {
		name := id
		if d, ok := snapshot.Disease(id); ok && d.Name != "" {
			name = d.Name
		}
		candidates = append(candidates, domain.DiseaseCandidate{
			DiseaseID:       id,
			Name:            name,
			RawScore:        total / n,
			MatchedFindings: matched[id],
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].RawScore != candidates[j].RawScore {
			return candidates[i].RawScore > candidates[j].RawScore
		}
		return candidates[i].DiseaseID < candidates[j].DiseaseID
	})

	g.logger.WithFields(logrus.Fields{
		"case_id":           profile.ID,
		"findings":          len(findings),
		"candidates":        len(candidates),
		"knowledge_version": snapshot.Version(),
	}).Debug("Generated disease candidates")

	return candidates, nil
}

// temporalFactor scales an association's weight by how well the finding's timing and trend fit
// the signature recorded for the disease. Undeclared signatures and unknown trends are neutral.
func (g *CandidateGenerator) temporalFactor(a domain.Association, f domain.Finding, early bool) float64 {
	factor := 1.0
	if a.Onset != domain.OnsetAny {
		if (a.Onset == domain.OnsetEarly) == early {
			factor *= 1 + g.temporalBoost
		} else {
			factor *= 1 - g.temporalBoost
		}
	}
	if a.Trend != domain.TrendUnknown && f.Trend != domain.TrendUnknown {
		if a.Trend == f.Trend {
			factor *= 1 + g.temporalBoost
		} else {
			factor *= 1 - g.temporalBoost
		}
	}
	return factor
}

// earlyOnsetFlags marks findings whose onset rank falls in the first half of the case. Equal
// onsets keep their recorded order.
func earlyOnsetFlags(findings []domain.Finding) []bool {
	order := make([]int, len(findings))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return findings[order[i]].Onset < findings[order[j]].Onset
	})

	early := make([]bool, len(findings))
	for rank, idx := range order {
		early[idx] = 2*rank < len(findings)
	}
	return early
}
