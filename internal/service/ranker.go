package service

import (
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/ddx-reasoning-core/internal/domain"
)

// RankResult is the ordered differential before explanation.
type RankResult struct {
	Diagnoses    []domain.RankedDiagnosis
	BelowMinimum bool
	RareIncluded int
}

// Ranker orders scored candidates into the differential.
type Ranker struct {
	cfg    domain.DiagnosisConfig
	logger *logrus.Logger
}

// NewRanker creates a ranker
func NewRanker(cfg domain.DiagnosisConfig, logger *logrus.Logger) *Ranker {
	return &Ranker{cfg: cfg, logger: logger}
}

// Rank orders candidates by calibrated point estimate, reorders near-ties by urgency, cuts the
// list to size and appends rare diseases that cleared the inclusion threshold. Ranks are dense
// and 1-based. Any candidate with a malformed interval fails the whole ranking.
func (r *Ranker) Rank(scored []domain.ScoredCandidate) (*RankResult, error) {
	if len(scored) == 0 {
		return nil, domain.NewInsufficientEvidenceError("no candidate survived scoring")
	}
	for _, sc := range scored {
		if err := sc.Interval.Validate(); err != nil {
			return nil, fmt.Errorf("candidate %s: %w", sc.Candidate.DiseaseID, err)
		}
	}

	ordered := make([]domain.ScoredCandidate, len(scored))
	copy(ordered, scored)
	sort.Slice(ordered, func(i, j int) bool {
		return byConfidence(ordered[i], ordered[j])
	})
	ordered = r.applyUrgencyBands(ordered)

	cutoff := r.cfg.MinimumSize
	if r.cfg.MaxDifferentialSize > cutoff {
		cutoff = r.cfg.MaxDifferentialSize
	}
	if cutoff <= 0 || cutoff > len(ordered) {
		cutoff = len(ordered)
	}

	result := &RankResult{
		Diagnoses:    make([]domain.RankedDiagnosis, 0, cutoff),
		BelowMinimum: len(ordered) < r.cfg.MinimumSize,
	}
	for _, sc := range ordered[:cutoff] {
		result.Diagnoses = append(result.Diagnoses, r.toRanked(sc, false))
	}
	for _, sc := range ordered[cutoff:] {
		if r.isRare(sc) && sc.Interval.Point > r.cfg.RareMinConfidence {
			result.Diagnoses = append(result.Diagnoses, r.toRanked(sc, true))
			result.RareIncluded++
		}
	}

	for i := range result.Diagnoses {
		result.Diagnoses[i].Rank = i + 1
	}

	r.logger.WithFields(logrus.Fields{
		"input":         len(scored),
		"ranked":        len(result.Diagnoses),
		"rare_included": result.RareIncluded,
		"below_minimum": result.BelowMinimum,
	}).Debug("Ranked differential")

	return result, nil
}

// applyUrgencyBands reorders the confidence-sorted list so that, for any two candidates within
// the tie band of each other, the more urgent one comes first. Those pairs are the only hard
// constraints; every other pair keeps confidence order unless a chain of in-band constraints
// forces it. Urgency is a strict order, so the constraint graph has no cycles.
//
// Each step emits the highest-confidence candidate that no unplaced, in-band, more urgent
// candidate still has to precede.
func (r *Ranker) applyUrgencyBands(ordered []domain.ScoredCandidate) []domain.ScoredCandidate {
	n := len(ordered)
	blockers := make([]int, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j && r.mustPrecede(ordered[j], ordered[i]) {
				blockers[i]++
			}
		}
	}

	out := make([]domain.ScoredCandidate, 0, n)
	placed := make([]bool, n)
	for len(out) < n {
		next := -1
		for i := 0; i < n; i++ {
			if !placed[i] && blockers[i] == 0 {
				next = i
				break
			}
		}
		placed[next] = true
		out = append(out, ordered[next])
		for i := 0; i < n; i++ {
			if !placed[i] && r.mustPrecede(ordered[next], ordered[i]) {
				blockers[i]--
			}
		}
	}
	return out
}

// mustPrecede reports whether a has to rank above b regardless of confidence.
func (r *Ranker) mustPrecede(a, b domain.ScoredCandidate) bool {
	return a.Urgency.Rank() > b.Urgency.Rank() && math.Abs(a.Interval.Point-b.Interval.Point) <= r.cfg.TieBand
}

func (r *Ranker) isRare(sc domain.ScoredCandidate) bool {
	return sc.Prevalence < r.cfg.RareThreshold
}

func (r *Ranker) toRanked(sc domain.ScoredCandidate, rareInclusion bool) domain.RankedDiagnosis {
	return domain.RankedDiagnosis{
		Candidate:   sc.Candidate,
		Confidence:  sc.Interval,
		Urgency:     sc.Urgency,
		Prevalence:  sc.Prevalence,
		Rare:        r.isRare(sc),
		RareInclude: rareInclusion,
		Uncertainty: sc.Uncertainty,
	}
}

func byConfidence(a, b domain.ScoredCandidate) bool {
	if a.Interval.Point != b.Interval.Point {
		return a.Interval.Point > b.Interval.Point
	}
	return a.Candidate.DiseaseID < b.Candidate.DiseaseID
}
