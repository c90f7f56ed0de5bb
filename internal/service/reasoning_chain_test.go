package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ddx-reasoning-core/internal/domain"
)

func classifiedDiagnosis(t *testing.T, diseaseID string) (domain.RankedDiagnosis, *domain.NormalizedCase) {
	t.Helper()
	c := chestCase(domain.TrendWorsening)
	evidence, err := NewEvidenceClassifier(testConfig()).Classify(chestSnapshot(t), diseaseID, c)
	require.NoError(t, err)

	return domain.RankedDiagnosis{
		Rank:       1,
		Candidate:  domain.DiseaseCandidate{DiseaseID: diseaseID, Name: diseaseID, MatchedFindings: 2},
		Confidence: domain.NewConfidenceInterval(38, 6),
		Urgency:    domain.UrgencyCritical,
		Prevalence: 0.003,
		Uncertainty: domain.UncertaintyBreakdown{
			QualityTerm:      4,
			DisagreementTerm: 1.5,
			PriorShift:       -9,
		},
		Evidence: evidence,
	}, c
}

func TestBuildChainSteps(t *testing.T) {
	lit := new(MockLiteratureRetriever)
	citations := []domain.Citation{{PMID: "12345", Title: "Acute coronary syndromes", Source: "static"}}
	lit.On("CitationsFor", mock.Anything, "ACS", []string{"chest_pain", "dyspnea"}).Return(citations, nil)

	builder := NewReasoningChainBuilder(testConfig(), lit, testLogger())
	diagnosis, c := classifiedDiagnosis(t, "ACS")

	chain, err := builder.Build(context.Background(), diagnosis, c)
	require.NoError(t, err)
	lit.AssertExpectations(t)

	// supporting symptoms, contradicting imaging, prior, data quality
	require.Len(t, chain.Steps, 4)
	for i, s := range chain.Steps {
		assert.Equal(t, i+1, s.Order)
	}
	assert.Greater(t, chain.Steps[0].Contribution, 0.0)
	assert.Equal(t, "chest_pain", chain.Steps[0].Evidence[0].FindingCode)
	assert.Less(t, chain.Steps[1].Contribution, 0.0)
	assert.Equal(t, "reproducible_tenderness", chain.Steps[1].Evidence[0].FindingCode)
	assert.Equal(t, -9.0, chain.Steps[2].Contribution)
	assert.Contains(t, chain.Steps[2].Description, "lowered")
	assert.Equal(t, 0.0, chain.Steps[3].Contribution)

	assert.Equal(t, domain.UncertaintyPrevalencePrior, chain.DominantUncertainty)
	assert.Contains(t, chain.ConfidenceExplanation, "population prevalence prior")
	assert.Equal(t, citations, chain.Citations)
	assert.False(t, chain.DegradedExplainability)
}

func TestBuildChainKeepsEvidenceSignsWhenPriorDominates(t *testing.T) {
	builder := NewReasoningChainBuilder(testConfig(), nil, testLogger())
	diagnosis, c := classifiedDiagnosis(t, "ACS")
	diagnosis.Confidence = domain.NewConfidenceInterval(4, 3)
	diagnosis.Uncertainty.PriorShift = 12

	chain, err := builder.Build(context.Background(), diagnosis, c)
	require.NoError(t, err)
	require.Len(t, chain.Steps, 4)
	assert.Greater(t, chain.Steps[0].Contribution, 0.0)
	assert.Less(t, chain.Steps[1].Contribution, 0.0)
	assert.Equal(t, 12.0, chain.Steps[2].Contribution)
}

func TestBuildChainLiteratureFailureDegrades(t *testing.T) {
	lit := new(MockLiteratureRetriever)
	lit.On("CitationsFor", mock.Anything, "PE", mock.Anything).Return(nil, errors.New("pubmed unavailable"))

	builder := NewReasoningChainBuilder(testConfig(), lit, testLogger())
	diagnosis, c := classifiedDiagnosis(t, "PE")

	chain, err := builder.Build(context.Background(), diagnosis, c)
	require.NoError(t, err)
	assert.True(t, chain.DegradedExplainability)
	assert.NotNil(t, chain.Citations)
	assert.Empty(t, chain.Citations)
}

func TestBuildChainLiteratureTimeoutDegrades(t *testing.T) {
	cfg := testConfig()
	cfg.LiteratureTimeout = 20 * time.Millisecond
	builder := NewReasoningChainBuilder(cfg, blockingLiterature{}, testLogger())
	diagnosis, c := classifiedDiagnosis(t, "PE")

	start := time.Now()
	chain, err := builder.Build(context.Background(), diagnosis, c)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, chain.DegradedExplainability)
	assert.NotNil(t, chain.Citations)
}

func TestBuildChainWithoutRetriever(t *testing.T) {
	builder := NewReasoningChainBuilder(testConfig(), nil, testLogger())
	diagnosis, c := classifiedDiagnosis(t, "COSTO")

	chain, err := builder.Build(context.Background(), diagnosis, c)
	require.NoError(t, err)
	assert.NotNil(t, chain.Citations)
	assert.False(t, chain.DegradedExplainability)
	assert.NotEmpty(t, chain.ConfidenceExplanation)
}

func TestBuildChainWithoutEvidence(t *testing.T) {
	builder := NewReasoningChainBuilder(testConfig(), nil, testLogger())
	diagnosis, c := classifiedDiagnosis(t, "PE")
	diagnosis.Evidence = nil

	chain, err := builder.Build(context.Background(), diagnosis, c)
	assert.Nil(t, chain)
	assert.True(t, domain.IsCode(err, domain.ErrChainConstruction))
}

func TestFormatPrevalence(t *testing.T) {
	assert.Equal(t, "1.00%", formatPrevalence(0.01))
	assert.Equal(t, "1 in 50000", formatPrevalence(0.00002))
	assert.Equal(t, "unknown", formatPrevalence(0))
}
