package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/ddx-reasoning-core/internal/domain"
)

// EnsembleKey is the Likelihoods entry holding the combined ensemble likelihood.
const EnsembleKey = "ensemble"

// ConfidenceCalculator turns candidates into calibrated confidence intervals.
type ConfidenceCalculator struct {
	strategies []domain.ScoringStrategy
	weights    []float64
	calibrator domain.Calibrator
	cfg        domain.DiagnosisConfig
	logger     *logrus.Logger
}

// NewConfidenceCalculator creates a calculator. A nil strategy list selects DefaultStrategies and
// a nil calibrator is built from cfg. Strategies without a configured weight get weight 1.
func NewConfidenceCalculator(
	cfg domain.DiagnosisConfig,
	strategies []domain.ScoringStrategy,
	calibrator domain.Calibrator,
	logger *logrus.Logger,
) (*ConfidenceCalculator, error) {
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	if calibrator == nil {
		var err error
		calibrator, err = NewCalibrator(cfg)
		if err != nil {
			return nil, err
		}
	}

	weights := make([]float64, len(strategies))
	var total float64
	for i, s := range strategies {
		w, ok := cfg.EnsembleWeights[s.Name()]
		if !ok {
			w = 1
		}
		if w < 0 {
			return nil, fmt.Errorf("ensemble weight for %s must not be negative", s.Name())
		}
		weights[i] = w
		total += w
	}
	if total == 0 {
		return nil, fmt.Errorf("ensemble weights sum to zero")
	}

	return &ConfidenceCalculator{
		strategies: strategies,
		weights:    weights,
		calibrator: calibrator,
		cfg:        cfg,
		logger:     logger,
	}, nil
}

// StrategyNames returns the ensemble members in evaluation order.
func (c *ConfidenceCalculator) StrategyNames() []string {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	return names
}

// CalibrationMethod describes the configured calibrator.
func (c *ConfidenceCalculator) CalibrationMethod() string {
	return c.calibrator.Method()
}

type ensembleScore struct {
	likelihood   float64
	disagreement float64
	byStrategy   map[string]float64
}

// Score computes a calibrated interval for every candidate with at least one matched finding.
//
// The posterior of each candidate is prior^alpha * likelihood, renormalized across all scored
// candidates, then calibrated and renormalized again. The interval half-width grows with missing
// case quality and with disagreement between strategies.
func (c *ConfidenceCalculator) Score(ctx context.Context, snapshot domain.KnowledgeSnapshot, candidates []domain.DiseaseCandidate, profile *domain.NormalizedCase) ([]domain.ScoredCandidate, error) {
	kept := make([]domain.DiseaseCandidate, 0, len(candidates))
	for _, cand := range candidates {
		if cand.MatchedFindings > 0 {
			kept = append(kept, cand)
		}
	}
	if len(kept) == 0 {
		return nil, nil
	}

	ensembles := make([]ensembleScore, len(kept))
	priors := make([]float64, len(kept))
	profiles := make([]domain.DiseaseProfile, len(kept))
	for i, cand := range kept {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		es, err := c.ensemble(cand, profile, snapshot)
		if err != nil {
			return nil, err
		}
		ensembles[i] = es

		prevalence, err := snapshot.Prevalence(cand.DiseaseID)
		if err != nil {
			return nil, domain.NewKnowledgeUnavailableError(err)
		}
		priors[i] = prevalence

		dp, ok := snapshot.Disease(cand.DiseaseID)
		if !ok || !dp.Urgency.IsValid() {
			c.logger.WithField("disease_id", cand.DiseaseID).Warn("Disease has no valid urgency in snapshot, treating as low")
			dp.Urgency = domain.UrgencyLow
		}
		profiles[i] = dp
	}

	joint := make([]float64, len(kept))
	likelihoodOnly := make([]float64, len(kept))
	for i := range kept {
		prior := math.Max(priors[i], c.cfg.PrevalenceFloor)
		joint[i] = math.Pow(prior, c.cfg.PriorExponent) * ensembles[i].likelihood
		likelihoodOnly[i] = ensembles[i].likelihood
	}
	posterior := normalize(c.calibrator.Calibrate(normalize(joint)))
	withoutPrior := normalize(c.calibrator.Calibrate(normalize(likelihoodOnly)))

	qualityTerm := c.cfg.QualityWeight * (100 - clamp(profile.QualityScore, 0, 100)) / 100

	scored := make([]domain.ScoredCandidate, len(kept))
	for i, cand := range kept {
		point := 100 * posterior[i]
		disagreementTerm := c.cfg.DisagreementWeight * ensembles[i].disagreement
		halfWidth := c.cfg.BaseHalfWidth + qualityTerm + disagreementTerm
		if c.cfg.MaxHalfWidth > 0 && halfWidth > c.cfg.MaxHalfWidth {
			halfWidth = c.cfg.MaxHalfWidth
		}

		scored[i] = domain.ScoredCandidate{
			Candidate:  cand,
			Interval:   domain.NewConfidenceInterval(point, halfWidth),
			Prevalence: priors[i],
			Urgency:    profiles[i].Urgency,
			Uncertainty: domain.UncertaintyBreakdown{
				QualityTerm:      qualityTerm,
				DisagreementTerm: disagreementTerm,
				PriorShift:       point - 100*withoutPrior[i],
				Disagreement:     ensembles[i].disagreement,
			},
			Likelihoods: ensembles[i].byStrategy,
		}
	}

	c.logger.WithFields(logrus.Fields{
		"case_id":     profile.ID,
		"scored":      len(scored),
		"dropped":     len(candidates) - len(kept),
		"calibration": c.calibrator.Method(),
	}).Debug("Scored candidates")

	return scored, nil
}

// ensemble combines every strategy's likelihood as a weighted mean. Disagreement is the weighted
// standard deviation around that mean.
func (c *ConfidenceCalculator) ensemble(cand domain.DiseaseCandidate, profile *domain.NormalizedCase, snapshot domain.KnowledgeSnapshot) (ensembleScore, error) {
	values := make([]float64, len(c.strategies))
	byStrategy := make(map[string]float64, len(c.strategies)+1)

	var sumW, mean float64
	for i, s := range c.strategies {
		v, err := s.Score(cand, profile, snapshot)
		if err != nil {
			var de *domain.DiagnosticError
			if errors.As(err, &de) {
				return ensembleScore{}, err
			}
			return ensembleScore{}, domain.NewKnowledgeUnavailableError(fmt.Errorf("strategy %s: %w", s.Name(), err))
		}
		v = clampLikelihood(v)
		values[i] = v
		byStrategy[s.Name()] = v
		sumW += c.weights[i]
		mean += c.weights[i] * v
	}
	mean /= sumW

	var variance float64
	for i, v := range values {
		variance += c.weights[i] * (v - mean) * (v - mean)
	}
	variance /= sumW

	byStrategy[EnsembleKey] = mean
	return ensembleScore{
		likelihood:   clampLikelihood(mean),
		disagreement: math.Sqrt(variance),
		byStrategy:   byStrategy,
	}, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
