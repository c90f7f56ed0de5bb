// Package domain contains the core entities of the diagnostic reasoning core: normalized
// clinical cases, disease candidates, calibrated confidence intervals, evidence attribution and
// the ranked differential diagnosis handed back to callers.
//
// All per-request values in this package are treated as immutable once constructed. The
// pipeline never mutates a NormalizedCase or a returned DifferentialDiagnosis in place.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// UrgencyLevel expresses how time-critical a disease is if present.
// The ordering critical > high > moderate > low drives the ranker's tie-break.
type UrgencyLevel string

const (
	UrgencyCritical UrgencyLevel = "critical"
	UrgencyHigh     UrgencyLevel = "high"
	UrgencyModerate UrgencyLevel = "moderate"
	UrgencyLow      UrgencyLevel = "low"
)

// EvidenceKind is the closed set of tags a finding can receive against a candidate.
type EvidenceKind string

const (
	EvidenceSupporting    EvidenceKind = "supporting"
	EvidenceContradicting EvidenceKind = "contradicting"
	EvidenceNeutral       EvidenceKind = "neutral"
)

// FindingKind distinguishes symptoms from lab and imaging results.
type FindingKind string

const (
	FindingSymptom FindingKind = "symptom"
	FindingLab     FindingKind = "lab"
	FindingImaging FindingKind = "imaging"
)

// Trend is the progression of a finding over time.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendWorsening Trend = "worsening"
	TrendUnknown   Trend = ""
)

// OnsetPattern is the temporal signature a knowledge entry may declare for a finding.
type OnsetPattern string

const (
	OnsetEarly OnsetPattern = "early"
	OnsetLate  OnsetPattern = "late"
	OnsetAny   OnsetPattern = ""
)

// UncertaintySource names a contributor to interval width or to the point estimate.
type UncertaintySource string

const (
	UncertaintyDataQuality       UncertaintySource = "data_quality"
	UncertaintyModelDisagreement UncertaintySource = "model_disagreement"
	UncertaintyPrevalencePrior   UncertaintySource = "prevalence_prior"
)

// Validation errors for knowledge and case integrity
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidUrgency     = errors.New("invalid urgency level")
	ErrInvalidTrend       = errors.New("invalid progression trend")
	ErrInvalidFindingKind = errors.New("invalid finding kind")
	ErrInvalidOnset       = errors.New("invalid onset pattern")
)

// IsValid reports whether u is one of the four defined urgency levels.
func (u UrgencyLevel) IsValid() bool {
	switch u {
	case UrgencyCritical, UrgencyHigh, UrgencyModerate, UrgencyLow:
		return true
	default:
		return false
	}
}

// Rank returns a comparable weight: higher means more urgent. Unknown levels rank lowest.
func (u UrgencyLevel) Rank() int {
	switch u {
	case UrgencyCritical:
		return 4
	case UrgencyHigh:
		return 3
	case UrgencyModerate:
		return 2
	case UrgencyLow:
		return 1
	default:
		return 0
	}
}

// IsUrgent reports whether the level warrants an urgent flag on the differential.
func (u UrgencyLevel) IsUrgent() bool {
	return u == UrgencyCritical || u == UrgencyHigh
}

func (u UrgencyLevel) String() string {
	return string(u)
}

// ParseUrgencyLevel parses a case-insensitive urgency name.
func ParseUrgencyLevel(s string) (UrgencyLevel, error) {
	u := UrgencyLevel(strings.ToLower(strings.TrimSpace(s)))
	if !u.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidUrgency, s)
	}
	return u, nil
}

// IsValid reports whether k is one of the three evidence tags.
func (k EvidenceKind) IsValid() bool {
	switch k {
	case EvidenceSupporting, EvidenceContradicting, EvidenceNeutral:
		return true
	default:
		return false
	}
}

// Sign returns the direction an evidence item pushes confidence: +1, -1 or 0.
func (k EvidenceKind) Sign() float64 {
	switch k {
	case EvidenceSupporting:
		return 1
	case EvidenceContradicting:
		return -1
	default:
		return 0
	}
}

func (k EvidenceKind) String() string {
	return string(k)
}

// IsValid reports whether k is a known finding kind.
func (k FindingKind) IsValid() bool {
	switch k {
	case FindingSymptom, FindingLab, FindingImaging:
		return true
	default:
		return false
	}
}

// IsValid reports whether t is a known trend. The empty trend is accepted as unknown.
func (t Trend) IsValid() bool {
	switch t {
	case TrendImproving, TrendStable, TrendWorsening, TrendUnknown:
		return true
	default:
		return false
	}
}

// IsValid reports whether o is a known onset pattern.
func (o OnsetPattern) IsValid() bool {
	switch o {
	case OnsetEarly, OnsetLate, OnsetAny:
		return true
	default:
		return false
	}
}

// Describe returns clinical-display wording for an uncertainty source.
func (s UncertaintySource) Describe() string {
	switch s {
	case UncertaintyDataQuality:
		return "limited case data quality"
	case UncertaintyModelDisagreement:
		return "disagreement between scoring strategies"
	case UncertaintyPrevalencePrior:
		return "the population prevalence prior"
	default:
		return "unspecified uncertainty"
	}
}
