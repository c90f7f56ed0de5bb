package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddx-reasoning-core/internal/domain"
	"github.com/ddx-reasoning-core/internal/feedback"
)

var snapshotPath = filepath.Join("..", "..", "internal", "knowledge", "testdata", "chest_pain.yaml")

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeCase(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "case.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDiagnoseCommand(t *testing.T) {
	casePath := writeCase(t, `
id: case-chest
quality_score: 80
quality_validated: true
findings:
  - code: chest_pain
    severity: 7
  - code: dyspnea
    onset: 1
    severity: 5
    trend: worsening
imaging_findings:
  - code: reproducible_tenderness
    onset: 2
    severity: 3
`)

	out, err := execute(t, "diagnose", "--case", casePath, "--snapshot", snapshotPath)
	require.NoError(t, err)

	var dd domain.DifferentialDiagnosis
	require.NoError(t, json.Unmarshal([]byte(out), &dd))
	assert.Equal(t, "case-chest", dd.CaseID)
	require.NotEmpty(t, dd.Diagnoses)
	assert.Equal(t, 1, dd.Diagnoses[0].Rank)
	assert.Equal(t, "2026.09-chest", dd.Metadata.KnowledgeVersion)
}

func TestDiagnoseCommand_Refusal(t *testing.T) {
	casePath := writeCase(t, `
id: case-low
quality_score: 20
findings:
  - code: chest_pain
`)

	_, err := execute(t, "diagnose", "--case", casePath, "--snapshot", snapshotPath)
	require.Error(t, err)
	var de *domain.DiagnosticError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, domain.ErrInputQuality, de.Code)
}

func TestDiagnoseCommand_RequiresFlags(t *testing.T) {
	_, err := execute(t, "diagnose")
	assert.Error(t, err)
}

func TestSnapshotValidateCommand(t *testing.T) {
	out, err := execute(t, "snapshot", "validate", snapshotPath)
	require.NoError(t, err)
	assert.Contains(t, out, `"version": "2026.09-chest"`)

	_, err = execute(t, "snapshot", "validate", filepath.Join("..", "..", "internal", "knowledge", "testdata", "invalid.json"))
	assert.Error(t, err)
}

func TestCalibrateCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "feedback.db")
	store, err := feedback.NewSQLiteStore(dbPath)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		outcome := feedback.OutcomeRefuted
		if i < 3 {
			outcome = feedback.OutcomeConfirmed
		}
		require.NoError(t, store.Save(ctx, &feedback.Feedback{
			CaseID:              fmt.Sprintf("case-%d", i),
			DifferentialID:      fmt.Sprintf("dd-%d", i),
			DiseaseID:           "PE",
			Rank:                1,
			PredictedConfidence: 30,
			Outcome:             outcome,
			KnowledgeVersion:    "2026.09-chest",
			ModelVersion:        "ddx-core-1.0.0",
		}))
	}
	require.NoError(t, store.Close())

	out, err := execute(t, "calibrate", "--db", dbPath, "--min-count", "5")
	require.NoError(t, err)

	var audit map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &audit))
	assert.Equal(t, float64(10), audit["samples"])
	assert.Equal(t, true, audit["within_tolerance"])

	_, err = execute(t, "calibrate", "--db", dbPath, "--bins", "0")
	assert.Error(t, err)

	_, err = execute(t, "calibrate", "--db", dbPath, "--model-version", "other")
	assert.ErrorIs(t, err, feedback.ErrNoSamples)
}
