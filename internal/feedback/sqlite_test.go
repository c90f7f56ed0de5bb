package feedback

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "feedback.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleFeedback(caseID, diseaseID string, confidence float64, outcome Outcome) *Feedback {
	return &Feedback{
		CaseID:              caseID,
		DifferentialID:      "dd-" + caseID,
		DiseaseID:           diseaseID,
		Rank:                1,
		PredictedConfidence: confidence,
		Outcome:             outcome,
		KnowledgeVersion:    "2026.09-chest",
		ModelVersion:        "ddx-core-1.0.0",
	}
}

func TestNewSQLiteStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NotNil(t, store)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "Database file should exist")
}

func TestSQLiteStore_SaveAndGet(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	fb := sampleFeedback("case-1", "PE", 38, OutcomeConfirmed)
	fb.Notes = "CT angiography positive"
	require.NoError(t, store.Save(ctx, fb))
	assert.NotZero(t, fb.ID)
	assert.False(t, fb.CreatedAt.IsZero())

	got, err := store.Get(ctx, "case-1", "PE")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, fb.ID, got.ID)
	assert.Equal(t, 38.0, got.PredictedConfidence)
	assert.Equal(t, OutcomeConfirmed, got.Outcome)
	assert.Equal(t, "CT angiography positive", got.Notes)
	assert.Equal(t, "dd-case-1", got.DifferentialID)
}

func TestSQLiteStore_SaveUpdatesExisting(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	first := sampleFeedback("case-1", "PE", 38, OutcomeConfirmed)
	require.NoError(t, store.Save(ctx, first))

	second := sampleFeedback("case-1", "PE", 38, OutcomeRefuted)
	require.NoError(t, store.Save(ctx, second))
	assert.Equal(t, first.ID, second.ID)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	got, err := store.Get(ctx, "case-1", "PE")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRefuted, got.Outcome)
}

func TestSQLiteStore_SaveRejectsInvalid(t *testing.T) {
	store := createTestStore(t)

	tests := []struct {
		name string
		fb   *Feedback
	}{
		{"missing case", sampleFeedback("", "PE", 10, OutcomeConfirmed)},
		{"missing disease", sampleFeedback("c", "", 10, OutcomeConfirmed)},
		{"confidence above 100", sampleFeedback("c", "PE", 120, OutcomeConfirmed)},
		{"unknown outcome", sampleFeedback("c", "PE", 10, Outcome("maybe"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, store.Save(context.Background(), tt.fb))
		})
	}
}

func TestSQLiteStore_GetMissing(t *testing.T) {
	store := createTestStore(t)
	got, err := store.Get(context.Background(), "none", "PE")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteStore_ListCountDelete(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"PE", "ACS", "GERD"} {
		require.NoError(t, store.Save(ctx, sampleFeedback("case-1", id, 20, OutcomeRefuted)))
	}

	page, err := store.List(ctx, 2, 0)
	require.NoError(t, err)
	assert.Len(t, page, 2)

	rest, err := store.List(ctx, 2, 2)
	require.NoError(t, err)
	assert.Len(t, rest, 1)

	require.NoError(t, store.Delete(ctx, rest[0].ID))
	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestSQLiteStore_Samples(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleFeedback("c1", "PE", 80, OutcomeConfirmed)))
	require.NoError(t, store.Save(ctx, sampleFeedback("c2", "PE", 20, OutcomeRefuted)))
	other := sampleFeedback("c3", "ACS", 50, OutcomeConfirmed)
	other.ModelVersion = "ddx-core-0.9.0"
	require.NoError(t, store.Save(ctx, other))

	all, err := store.Samples(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 3, all.Len())
	assert.Equal(t, []float64{0.8, 0.2, 0.5}, all.Predictions)
	assert.Equal(t, []bool{true, false, true}, all.Outcomes)

	current, err := store.Samples(ctx, "ddx-core-1.0.0")
	require.NoError(t, err)
	assert.Equal(t, 2, current.Len())
}

func TestSQLiteStore_ExportImport(t *testing.T) {
	source := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, source.Save(ctx, sampleFeedback("c1", "PE", 80, OutcomeConfirmed)))
	require.NoError(t, source.Save(ctx, sampleFeedback("c2", "GERD", 30, OutcomeRefuted)))

	var buf bytes.Buffer
	require.NoError(t, source.ExportJSON(ctx, &buf))

	var export FeedbackExport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &export))
	assert.Equal(t, "1.0", export.Version)
	assert.Equal(t, 2, export.Count)

	target := createTestStore(t)
	require.NoError(t, target.Save(ctx, sampleFeedback("c1", "PE", 80, OutcomeConfirmed)))

	imported, skipped, err := target.ImportJSON(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 1, imported)
	assert.Equal(t, 1, skipped)

	count, err := target.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestSQLiteStore_ImportRejectsGarbage(t *testing.T) {
	store := createTestStore(t)
	_, _, err := store.ImportJSON(context.Background(), bytes.NewReader([]byte("not json")))
	assert.Error(t, err)
}
