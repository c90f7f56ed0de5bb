package domain

import (
	"fmt"
	"math"
	"time"
)

// Finding is one coded clinical observation. Onset is the finding's position in the case's
// temporal ordering (0 = first observed); Severity ranges 1-10.
type Finding struct {
	Code     string      `json:"code" yaml:"code"`
	Kind     FindingKind `json:"kind" yaml:"kind"`
	Onset    int         `json:"onset" yaml:"onset"`
	Severity int         `json:"severity" yaml:"severity"`
	Trend    Trend       `json:"trend,omitempty" yaml:"trend,omitempty"`
	Value    float64     `json:"value,omitempty" yaml:"value,omitempty"`
	Unit     string      `json:"unit,omitempty" yaml:"unit,omitempty"`
}

// Demographics carries the de-identified demographic context of a case.
type Demographics struct {
	AgeYears int    `json:"age_years" yaml:"age_years"`
	Sex      string `json:"sex" yaml:"sex"`
}

// NormalizedCase is the immutable input of one diagnostic request. It has already passed
// upstream quality validation and de-identification; QualityValidated records that contract.
type NormalizedCase struct {
	ID               string       `json:"id"`
	Findings         []Finding    `json:"findings"`
	LabResults       []Finding    `json:"lab_results,omitempty"`
	ImagingFindings  []Finding    `json:"imaging_findings,omitempty"`
	Demographics     Demographics `json:"demographics"`
	QualityScore     float64      `json:"quality_score"`
	QualityValidated bool         `json:"quality_validated"`
	ReceivedAt       time.Time    `json:"received_at"`
}

// AllFindings returns every finding of the case in a fresh slice: symptoms first, then labs,
// then imaging, each in their recorded order.
func (c *NormalizedCase) AllFindings() []Finding {
	all := make([]Finding, 0, len(c.Findings)+len(c.LabResults)+len(c.ImagingFindings))
	all = append(all, c.Findings...)
	all = append(all, c.LabResults...)
	all = append(all, c.ImagingFindings...)
	return all
}

// FindingCount returns the total number of findings across all categories.
func (c *NormalizedCase) FindingCount() int {
	return len(c.Findings) + len(c.LabResults) + len(c.ImagingFindings)
}

// DiseaseCandidate is a disease under consideration paired with its raw match score.
type DiseaseCandidate struct {
	DiseaseID       string  `json:"disease_id"`
	Name            string  `json:"name"`
	RawScore        float64 `json:"raw_score"`
	MatchedFindings int     `json:"matched_findings"`
}

// ConfidenceLevel95 is the fixed coverage level of every interval the core produces.
const ConfidenceLevel95 = 0.95

// ConfidenceInterval is a calibrated point estimate with 95% bounds, all in percent.
type ConfidenceInterval struct {
	Point float64 `json:"point"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Level float64 `json:"level"`
}

// NewConfidenceInterval builds an interval around point with the given half-width, clamping
// every bound to [0,100].
func NewConfidenceInterval(point, halfWidth float64) ConfidenceInterval {
	point = clampPercent(point)
	if halfWidth < 0 {
		halfWidth = 0
	}
	return ConfidenceInterval{
		Point: point,
		Lower: clampPercent(point - halfWidth),
		Upper: clampPercent(point + halfWidth),
		Level: ConfidenceLevel95,
	}
}

// Width returns Upper - Lower.
func (ci ConfidenceInterval) Width() float64 {
	return ci.Upper - ci.Lower
}

// Validate checks lower <= point <= upper, all within [0,100].
func (ci ConfidenceInterval) Validate() error {
	if ci.Lower < 0 || ci.Upper > 100 {
		return fmt.Errorf("interval bounds out of range: [%.4f, %.4f]", ci.Lower, ci.Upper)
	}
	if ci.Lower > ci.Point || ci.Point > ci.Upper {
		return fmt.Errorf("interval not ordered: %.4f <= %.4f <= %.4f", ci.Lower, ci.Point, ci.Upper)
	}
	return nil
}

func clampPercent(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

// UncertaintyBreakdown records how much each source contributed, in percentage points.
// QualityTerm and DisagreementTerm widen the interval. PriorShift is the signed move the
// prevalence prior applied to the likelihood-only estimate (negative when it lowered it).
type UncertaintyBreakdown struct {
	QualityTerm      float64 `json:"quality_term"`
	DisagreementTerm float64 `json:"disagreement_term"`
	PriorShift       float64 `json:"prior_shift"`
	Disagreement     float64 `json:"disagreement"`
}

// Dominant returns the largest uncertainty source. Ties resolve in the order
// data quality, model disagreement, prevalence prior.
func (u UncertaintyBreakdown) Dominant() UncertaintySource {
	dominant := UncertaintyDataQuality
	best := u.QualityTerm
	if u.DisagreementTerm > best {
		dominant, best = UncertaintyModelDisagreement, u.DisagreementTerm
	}
	if math.Abs(u.PriorShift) > best {
		dominant = UncertaintyPrevalencePrior
	}
	return dominant
}

// ScoredCandidate is the Confidence Calculator's output for one candidate, carrying the
// knowledge attributes the ranker needs.
type ScoredCandidate struct {
	Candidate   DiseaseCandidate     `json:"candidate"`
	Interval    ConfidenceInterval   `json:"interval"`
	Prevalence  float64              `json:"prevalence"`
	Urgency     UrgencyLevel         `json:"urgency"`
	Uncertainty UncertaintyBreakdown `json:"uncertainty"`
	Likelihoods map[string]float64   `json:"likelihoods,omitempty"`
}
