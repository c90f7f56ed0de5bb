package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddx-reasoning-core/internal/domain"
)

func TestGenerateRefusesLowQuality(t *testing.T) {
	gen := NewCandidateGenerator(testConfig(), testLogger())
	snap := chestSnapshot(t)

	tests := []struct {
		name      string
		quality   float64
		validated bool
	}{
		{"quality 25", 25, true},
		{"just below threshold", 39.9, true},
		{"missing validation flag", 95, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := chestCase(domain.TrendWorsening)
			c.QualityScore = tt.quality
			c.QualityValidated = tt.validated

			candidates, err := gen.Generate(context.Background(), snap, c)
			assert.Nil(t, candidates)
			assert.True(t, domain.IsCode(err, domain.ErrInputQuality), "got %v", err)
		})
	}
}

func TestGenerateScoresAndOrders(t *testing.T) {
	gen := NewCandidateGenerator(testConfig(), testLogger())

	candidates, err := gen.Generate(context.Background(), chestSnapshot(t), chestCase(domain.TrendWorsening))
	require.NoError(t, err)
	require.Len(t, candidates, 4)

	ids := []string{candidates[0].DiseaseID, candidates[1].DiseaseID, candidates[2].DiseaseID, candidates[3].DiseaseID}
	assert.Equal(t, []string{"COSTO", "PE", "ACS", "GERD"}, ids)

	// COSTO: 0.95*0.4 + 0.9*0.8 over three findings
	assert.InDelta(t, (0.38+0.72)/3, candidates[0].RawScore, 1e-9)
	// PE: dyspnea trend matches the recorded worsening signature
	assert.InDelta(t, (0.18+0.4*1.25)/3, candidates[1].RawScore, 1e-9)
	// ACS: early chest pain boosted, exclusionary tenderness adds nothing
	assert.InDelta(t, (0.27*1.25+0.12)/3, candidates[2].RawScore, 1e-9)
	assert.Equal(t, 2, candidates[2].MatchedFindings)
	assert.Equal(t, "Acute coronary syndrome", candidates[2].Name)
}

func TestGenerateTemporalDivergence(t *testing.T) {
	gen := NewCandidateGenerator(testConfig(), testLogger())
	snap := chestSnapshot(t)

	worsening, err := gen.Generate(context.Background(), snap, chestCase(domain.TrendWorsening))
	require.NoError(t, err)
	improving, err := gen.Generate(context.Background(), snap, chestCase(domain.TrendImproving))
	require.NoError(t, err)

	find := func(cs []domain.DiseaseCandidate, id string) domain.DiseaseCandidate {
		for _, c := range cs {
			if c.DiseaseID == id {
				return c
			}
		}
		t.Fatalf("candidate %s missing", id)
		return domain.DiseaseCandidate{}
	}

	pw, pi := find(worsening, "PE"), find(improving, "PE")
	assert.Greater(t, pw.RawScore, pi.RawScore)
	assert.InDelta(t, (0.18+0.4*0.75)/3, pi.RawScore, 1e-9)

	// diseases without a trend signature are unaffected
	assert.Equal(t, find(worsening, "COSTO").RawScore, find(improving, "COSTO").RawScore)
}

func TestGenerateLateOnsetPenalty(t *testing.T) {
	gen := NewCandidateGenerator(testConfig(), testLogger())
	c := chestCase(domain.TrendUnknown)
	// chest pain now observed last
	c.Findings[0].Onset = 5

	candidates, err := gen.Generate(context.Background(), chestSnapshot(t), c)
	require.NoError(t, err)
	for _, cand := range candidates {
		if cand.DiseaseID == "ACS" {
			assert.InDelta(t, (0.27*0.75+0.12)/3, cand.RawScore, 1e-9)
		}
	}
}

func TestGenerateSnapshotFailure(t *testing.T) {
	gen := NewCandidateGenerator(testConfig(), testLogger())

	_, err := gen.Generate(context.Background(), failingSnapshot{}, chestCase(domain.TrendUnknown))
	assert.True(t, domain.IsCode(err, domain.ErrKnowledgeUnavailable))
	assert.True(t, errors.Is(err, errSnapshotDown))
}

func TestGenerateUnknownFindings(t *testing.T) {
	gen := NewCandidateGenerator(testConfig(), testLogger())
	c := &domain.NormalizedCase{
		ID:               "case-unknown",
		Findings:         []domain.Finding{{Code: "left_ear_itch"}},
		QualityScore:     90,
		QualityValidated: true,
	}

	candidates, err := gen.Generate(context.Background(), chestSnapshot(t), c)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestGenerateHonoursCancellation(t *testing.T) {
	gen := NewCandidateGenerator(testConfig(), testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gen.Generate(ctx, chestSnapshot(t), chestCase(domain.TrendUnknown))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEarlyOnsetFlags(t *testing.T) {
	findings := []domain.Finding{
		{Code: "a", Onset: 4},
		{Code: "b", Onset: 0},
		{Code: "c", Onset: 2},
		{Code: "d", Onset: 2},
	}
	assert.Equal(t, []bool{false, true, true, false}, earlyOnsetFlags(findings))
	assert.Equal(t, []bool{true}, earlyOnsetFlags([]domain.Finding{{Code: "only"}}))
}
