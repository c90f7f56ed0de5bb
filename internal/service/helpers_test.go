package service

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ddx-reasoning-core/internal/domain"
	"github.com/ddx-reasoning-core/internal/knowledge"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testConfig() domain.DiagnosisConfig {
	return domain.DefaultDiagnosisConfig()
}

func chestDocument() *knowledge.Document {
	return &knowledge.Document{
		Version: "test-chest-1",
		Diseases: []domain.DiseaseProfile{
			{ID: "PE", Name: "Pulmonary embolism", Prevalence: 0.0006, Urgency: domain.UrgencyCritical},
			{ID: "COSTO", Name: "Costochondritis", Prevalence: 0.01, Urgency: domain.UrgencyLow},
			{ID: "ACS", Name: "Acute coronary syndrome", Prevalence: 0.003, Urgency: domain.UrgencyCritical},
			{ID: "GERD", Name: "Gastroesophageal reflux disease", Prevalence: 0.2, Urgency: domain.UrgencyLow},
		},
		Associations: []knowledge.FindingAssociations{
			{FindingCode: "chest_pain", Diseases: []domain.Association{
				{DiseaseID: "PE", Frequency: 0.6, Specificity: 0.3},
				{DiseaseID: "COSTO", Frequency: 0.95, Specificity: 0.4},
				{DiseaseID: "ACS", Frequency: 0.9, Specificity: 0.3, Onset: domain.OnsetEarly},
				{DiseaseID: "GERD", Frequency: 0.5, Specificity: 0.2},
			}},
			{FindingCode: "dyspnea", Diseases: []domain.Association{
				{DiseaseID: "PE", Frequency: 0.8, Specificity: 0.5, Trend: domain.TrendWorsening},
				{DiseaseID: "ACS", Frequency: 0.4, Specificity: 0.3},
			}},
			{FindingCode: "reproducible_tenderness", Diseases: []domain.Association{
				{DiseaseID: "COSTO", Frequency: 0.9, Specificity: 0.8},
				{DiseaseID: "ACS", Frequency: 0.05, Specificity: 0.5, Exclusionary: true},
			}},
		},
	}
}

func chestSnapshot(t *testing.T) *knowledge.MemorySnapshot {
	t.Helper()
	snap, err := knowledge.NewMemorySnapshot(chestDocument())
	require.NoError(t, err)
	return snap
}

func chestStore(t *testing.T) *knowledge.Store {
	t.Helper()
	store := knowledge.NewStore(0, testLogger())
	store.Publish(chestSnapshot(t))
	return store
}

// chestCase has three findings in onset order; dyspnea carries the given trend.
func chestCase(dyspneaTrend domain.Trend) *domain.NormalizedCase {
	return &domain.NormalizedCase{
		ID: "case-chest",
		Findings: []domain.Finding{
			{Code: "chest_pain", Kind: domain.FindingSymptom, Onset: 0, Severity: 7},
			{Code: "dyspnea", Kind: domain.FindingSymptom, Onset: 1, Severity: 5, Trend: dyspneaTrend},
		},
		ImagingFindings: []domain.Finding{
			{Code: "reproducible_tenderness", Kind: domain.FindingImaging, Onset: 2, Severity: 3},
		},
		QualityScore:     80,
		QualityValidated: true,
	}
}

// failingSnapshot fails every lookup.
type failingSnapshot struct{}

var errSnapshotDown = errors.New("snapshot backend unreachable")

func (failingSnapshot) Lookup(string) (domain.AssociationSet, error) {
	return domain.AssociationSet{}, errSnapshotDown
}
func (failingSnapshot) Prevalence(string) (float64, error)         { return 0, errSnapshotDown }
func (failingSnapshot) Disease(string) (domain.DiseaseProfile, bool) { return domain.DiseaseProfile{}, false }
func (failingSnapshot) Version() string                              { return "broken" }

// MockLiteratureRetriever is a testify mock of domain.LiteratureRetriever
type MockLiteratureRetriever struct {
	mock.Mock
}

func (m *MockLiteratureRetriever) CitationsFor(ctx context.Context, diseaseID string, topFindings []string) ([]domain.Citation, error) {
	args := m.Called(ctx, diseaseID, topFindings)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Citation), args.Error(1)
}

// blockingLiterature never answers before its context is done.
type blockingLiterature struct{}

func (blockingLiterature) CitationsFor(ctx context.Context, _ string, _ []string) ([]domain.Citation, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func scoredCandidate(id string, point float64, urgency domain.UrgencyLevel, prevalence float64) domain.ScoredCandidate {
	return domain.ScoredCandidate{
		Candidate:  domain.DiseaseCandidate{DiseaseID: id, Name: id, RawScore: point / 100, MatchedFindings: 1},
		Interval:   domain.NewConfidenceInterval(point, 5),
		Prevalence: prevalence,
		Urgency:    urgency,
	}
}
