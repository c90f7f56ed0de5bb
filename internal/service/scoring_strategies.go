package service

import (
	"math"

	"github.com/ddx-reasoning-core/internal/domain"
)

// Strategy names
const (
	StrategyFrequency  = "frequency"
	StrategyCoverage   = "coverage"
	StrategyNaiveBayes = "naive_bayes"
)

// minLikelihood keeps every strategy output strictly positive.
const minLikelihood = 1e-9

// DefaultStrategies returns the ensemble used when none is configured.
func DefaultStrategies() []domain.ScoringStrategy {
	return []domain.ScoringStrategy{
		FrequencyStrategy{},
		CoverageStrategy{},
		NaiveBayesStrategy{},
	}
}

// FrequencyStrategy saturates the generator's raw association score.
type FrequencyStrategy struct{}

func (FrequencyStrategy) Name() string { return StrategyFrequency }

func (FrequencyStrategy) Score(candidate domain.DiseaseCandidate, _ *domain.NormalizedCase, _ domain.KnowledgeSnapshot) (float64, error) {
	return clampLikelihood(1 - math.Exp(-3*candidate.RawScore)), nil
}

// CoverageStrategy rewards candidates that explain a large share of the case's findings,
// with Laplace smoothing.
type CoverageStrategy struct{}

func (CoverageStrategy) Name() string { return StrategyCoverage }

func (CoverageStrategy) Score(candidate domain.DiseaseCandidate, profile *domain.NormalizedCase, _ domain.KnowledgeSnapshot) (float64, error) {
	n := float64(profile.FindingCount())
	return clampLikelihood((float64(candidate.MatchedFindings) + 0.5) / (n + 1)), nil
}

// NaiveBayesStrategy treats findings as conditionally independent given the disease and returns
// the geometric mean of the per-finding probabilities, so cases with many findings stay on the
// same scale as cases with few.
type NaiveBayesStrategy struct{}

const (
	unassociatedProbability = 0.05
	exclusionaryProbability = 0.01
)

func (NaiveBayesStrategy) Name() string { return StrategyNaiveBayes }

func (NaiveBayesStrategy) Score(candidate domain.DiseaseCandidate, profile *domain.NormalizedCase, snapshot domain.KnowledgeSnapshot) (float64, error) {
	findings := profile.AllFindings()
	if len(findings) == 0 {
		return minLikelihood, nil
	}

	var logSum float64
	for _, f := range findings {
		set, err := snapshot.Lookup(f.Code)
		if err != nil {
			return 0, err
		}

		p := unassociatedProbability
		if a, ok := set.For(candidate.DiseaseID); ok {
			if a.Exclusionary {
				p = exclusionaryProbability
			} else {
				p = math.Max(a.Frequency, exclusionaryProbability)
			}
		}
		logSum += math.Log(p)
	}
	return clampLikelihood(math.Exp(logSum / float64(len(findings)))), nil
}

func clampLikelihood(v float64) float64 {
	if math.IsNaN(v) || v < minLikelihood {
		return minLikelihood
	}
	if v > 1 {
		return 1
	}
	return v
}
