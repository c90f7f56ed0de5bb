package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ddx-reasoning-core/internal/domain"
)

// maxCitationFindings bounds how many supporting findings are sent to literature retrieval.
const maxCitationFindings = 3

// minStepContribution keeps evidence steps signed when the prior accounts for the whole point.
const minStepContribution = 0.1

// ReasoningChainBuilder explains a ranked diagnosis.
type ReasoningChainBuilder struct {
	literature domain.LiteratureRetriever
	timeout    time.Duration
	logger     *logrus.Logger
}

// NewReasoningChainBuilder creates a builder. literature may be nil, in which case chains carry
// an empty citation list.
func NewReasoningChainBuilder(cfg domain.DiagnosisConfig, literature domain.LiteratureRetriever, logger *logrus.Logger) *ReasoningChainBuilder {
	timeout := cfg.LiteratureTimeout
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	return &ReasoningChainBuilder{literature: literature, timeout: timeout, logger: logger}
}

type evidenceGroup struct {
	kind  domain.FindingKind
	items []domain.Evidence
	total float64
}

// Build produces the reasoning chain for diagnosis, whose Evidence must already be classified.
// An empty evidence list is an internal defect and returns CHAIN_CONSTRUCTION.
func (b *ReasoningChainBuilder) Build(ctx context.Context, diagnosis domain.RankedDiagnosis, profile *domain.NormalizedCase) (*domain.ReasoningChain, error) {
	if len(diagnosis.Evidence) == 0 {
		err := domain.NewChainConstructionError(diagnosis.Candidate.DiseaseID)
		b.logger.WithFields(logrus.Fields{
			"case_id":    profile.ID,
			"disease_id": diagnosis.Candidate.DiseaseID,
		}).Error("Reasoning chain requested for diagnosis without evidence")
		return nil, err
	}

	kinds := make(map[string]domain.FindingKind, profile.FindingCount())
	for _, f := range profile.AllFindings() {
		kinds[f.Code] = f.Kind
	}
	partition := domain.PartitionEvidence(diagnosis.Evidence)
	supporting := groupByFindingKind(partition.Supporting, kinds)
	contradicting := groupByFindingKind(partition.Contradicting, kinds)

	var mass float64
	for _, g := range append(append([]evidenceGroup{}, supporting...), contradicting...) {
		mass += g.total
	}
	likelihoodPoint := math.Max(diagnosis.Confidence.Point-diagnosis.Uncertainty.PriorShift, 0)

	chain := &domain.ReasoningChain{
		DominantUncertainty: diagnosis.Uncertainty.Dominant(),
		Citations:           []domain.Citation{},
	}
	addStep := func(desc string, evidence []domain.Evidence, contribution float64) {
		chain.Steps = append(chain.Steps, domain.ReasoningStep{
			Order:        len(chain.Steps) + 1,
			Description:  desc,
			Evidence:     evidence,
			Contribution: contribution,
		})
	}

	for _, g := range supporting {
		addStep(fmt.Sprintf("Supporting %s findings: %s", g.kind, joinCodes(g.items)),
			g.items, math.Max(share(likelihoodPoint, g.total, mass), minStepContribution))
	}
	for _, g := range contradicting {
		addStep(fmt.Sprintf("Contradicting %s findings: %s", g.kind, joinCodes(g.items)),
			g.items, -math.Max(share(likelihoodPoint, g.total, mass), minStepContribution))
	}

	direction := "raised"
	if diagnosis.Uncertainty.PriorShift < 0 {
		direction = "lowered"
	}
	addStep(fmt.Sprintf("Population prevalence %s %s confidence by %.1f points",
		formatPrevalence(diagnosis.Prevalence), direction, math.Abs(diagnosis.Uncertainty.PriorShift)),
		nil, diagnosis.Uncertainty.PriorShift)
	addStep(fmt.Sprintf("Case data quality %.0f/100 widened the interval by %.1f points",
		profile.QualityScore, diagnosis.Uncertainty.QualityTerm),
		nil, 0)

	chain.ConfidenceExplanation = fmt.Sprintf(
		"Confidence %.1f%% (95%% interval %.1f%% to %.1f%%). The main source of uncertainty is %s.",
		diagnosis.Confidence.Point, diagnosis.Confidence.Lower, diagnosis.Confidence.Upper,
		chain.DominantUncertainty.Describe())

	b.attachCitations(ctx, chain, diagnosis, partition.Supporting)
	return chain, nil
}

// attachCitations asks the literature retriever for citations within the builder's timeout.
// Failures leave the citation list empty and mark the chain degraded.
func (b *ReasoningChainBuilder) attachCitations(ctx context.Context, chain *domain.ReasoningChain, diagnosis domain.RankedDiagnosis, supporting []domain.Evidence) {
	if b.literature == nil {
		return
	}

	top := make([]domain.Evidence, len(supporting))
	copy(top, supporting)
	sort.SliceStable(top, func(i, j int) bool { return top[i].Weight > top[j].Weight })
	if len(top) > maxCitationFindings {
		top = top[:maxCitationFindings]
	}
	codes := make([]string, len(top))
	for i, e := range top {
		codes[i] = e.FindingCode
	}

	litCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	citations, err := b.literature.CitationsFor(litCtx, diagnosis.Candidate.DiseaseID, codes)
	if err != nil {
		b.logger.WithError(err).WithField("disease_id", diagnosis.Candidate.DiseaseID).
			Warn("Literature retrieval failed, continuing without citations")
		chain.DegradedExplainability = true
		return
	}
	if citations != nil {
		chain.Citations = citations
	}
}

// groupByFindingKind groups evidence by finding kind. Items within a group are ordered by
// weight, groups by total weight, both descending.
func groupByFindingKind(items []domain.Evidence, kinds map[string]domain.FindingKind) []evidenceGroup {
	order := []domain.FindingKind{domain.FindingSymptom, domain.FindingLab, domain.FindingImaging}
	byKind := make(map[domain.FindingKind]*evidenceGroup, len(order))
	for _, e := range items {
		k := kinds[e.FindingCode]
		if k == "" {
			k = domain.FindingSymptom
		}
		g, ok := byKind[k]
		if !ok {
			g = &evidenceGroup{kind: k}
			byKind[k] = g
		}
		g.items = append(g.items, e)
		g.total += e.Weight
	}

	groups := make([]evidenceGroup, 0, len(byKind))
	for _, k := range order {
		if g, ok := byKind[k]; ok {
			sort.SliceStable(g.items, func(i, j int) bool { return g.items[i].Weight > g.items[j].Weight })
			groups = append(groups, *g)
		}
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].total > groups[j].total })
	return groups
}

func share(points, part, whole float64) float64 {
	if whole <= 0 {
		return 0
	}
	return points * part / whole
}

func joinCodes(items []domain.Evidence) string {
	codes := make([]string, len(items))
	for i, e := range items {
		codes[i] = e.FindingCode
	}
	return strings.Join(codes, ", ")
}

func formatPrevalence(p float64) string {
	if p <= 0 {
		return "unknown"
	}
	if p >= 0.001 {
		return fmt.Sprintf("%.2f%%", 100*p)
	}
	return fmt.Sprintf("1 in %.0f", 1/p)
}
