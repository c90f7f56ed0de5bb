package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddx-reasoning-core/internal/domain"
	"github.com/ddx-reasoning-core/internal/knowledge"
)

func kinds(evidence []domain.Evidence) map[string]domain.EvidenceKind {
	out := make(map[string]domain.EvidenceKind, len(evidence))
	for _, e := range evidence {
		out[e.FindingCode] = e.Kind
	}
	return out
}

func TestClassifyTagsEveryFinding(t *testing.T) {
	classifier := NewEvidenceClassifier(testConfig())
	snap := chestSnapshot(t)
	c := chestCase(domain.TrendWorsening)

	tests := []struct {
		disease  string
		expected map[string]domain.EvidenceKind
	}{
		{"ACS", map[string]domain.EvidenceKind{
			"chest_pain":              domain.EvidenceSupporting,
			"dyspnea":                 domain.EvidenceSupporting,
			"reproducible_tenderness": domain.EvidenceContradicting,
		}},
		{"GERD", map[string]domain.EvidenceKind{
			"chest_pain":              domain.EvidenceSupporting,
			"dyspnea":                 domain.EvidenceNeutral,
			"reproducible_tenderness": domain.EvidenceNeutral,
		}},
		{"COSTO", map[string]domain.EvidenceKind{
			"chest_pain":              domain.EvidenceSupporting,
			"dyspnea":                 domain.EvidenceNeutral,
			"reproducible_tenderness": domain.EvidenceSupporting,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.disease, func(t *testing.T) {
			evidence, err := classifier.Classify(snap, tt.disease, c)
			require.NoError(t, err)
			require.Len(t, evidence, c.FindingCount())

			// case order is preserved
			for i, f := range c.AllFindings() {
				assert.Equal(t, f.Code, evidence[i].FindingCode)
				assert.Equal(t, tt.disease, evidence[i].DiseaseID)
				assert.True(t, evidence[i].Kind.IsValid())
			}
			assert.Equal(t, tt.expected, kinds(evidence))

			// the three buckets cover exactly the finding set
			p := domain.PartitionEvidence(evidence)
			assert.Len(t, p.FindingCodes(), c.FindingCount())
			assert.Equal(t, c.FindingCount(), len(p.Supporting)+len(p.Contradicting)+len(p.Neutral))
		})
	}
}

func TestClassifyLowFrequencyContradicts(t *testing.T) {
	snap, err := knowledge.NewMemorySnapshot(&knowledge.Document{
		Version:  "low-freq",
		Diseases: []domain.DiseaseProfile{{ID: "X", Prevalence: 0.01, Urgency: domain.UrgencyLow}},
		Associations: []knowledge.FindingAssociations{
			{FindingCode: "fever", Diseases: []domain.Association{{DiseaseID: "X", Frequency: 0.05, Specificity: 0.2}}},
			{FindingCode: "rash", Diseases: []domain.Association{{DiseaseID: "X", Frequency: 0.1, Specificity: 0.2}}},
		},
	})
	require.NoError(t, err)

	c := &domain.NormalizedCase{ID: "c", Findings: []domain.Finding{{Code: "fever"}, {Code: "rash"}}}
	evidence, err := NewEvidenceClassifier(testConfig()).Classify(snap, "X", c)
	require.NoError(t, err)

	assert.Equal(t, domain.EvidenceContradicting, evidence[0].Kind)
	assert.Equal(t, domain.EvidenceSupporting, evidence[1].Kind)
}

func TestClassifySnapshotFailure(t *testing.T) {
	_, err := NewEvidenceClassifier(testConfig()).Classify(failingSnapshot{}, "PE", chestCase(domain.TrendUnknown))
	assert.True(t, domain.IsCode(err, domain.ErrKnowledgeUnavailable))
}

func TestDistinguishingFeatures(t *testing.T) {
	classifier := NewEvidenceClassifier(testConfig())
	snap := chestSnapshot(t)
	c := chestCase(domain.TrendWorsening)

	peEvidence, err := classifier.Classify(snap, "PE", c)
	require.NoError(t, err)
	costoEvidence, err := classifier.Classify(snap, "COSTO", c)
	require.NoError(t, err)

	df := classifier.DistinguishingFeatures(
		domain.RankedDiagnosis{Candidate: domain.DiseaseCandidate{DiseaseID: "PE"}, Evidence: peEvidence},
		domain.RankedDiagnosis{Candidate: domain.DiseaseCandidate{DiseaseID: "COSTO"}, Evidence: costoEvidence},
	)

	assert.Equal(t, "PE", df.DiseaseA)
	assert.Equal(t, "COSTO", df.DiseaseB)
	assert.Equal(t, []domain.DistinguishingFinding{
		{FindingCode: "dyspnea", KindA: domain.EvidenceSupporting, KindB: domain.EvidenceNeutral},
		{FindingCode: "reproducible_tenderness", KindA: domain.EvidenceNeutral, KindB: domain.EvidenceSupporting},
	}, df.Findings)
}
