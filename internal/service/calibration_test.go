package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddx-reasoning-core/internal/domain"
)

func TestTemperatureCalibrator(t *testing.T) {
	identity := TemperatureCalibrator{Temperature: 1}.Calibrate([]float64{0.6, 0.3, 0.1})
	assert.InDeltaSlice(t, []float64{0.6, 0.3, 0.1}, identity, 1e-12)

	sharp := TemperatureCalibrator{Temperature: 0.5}.Calibrate([]float64{0.6, 0.4})
	assert.InDeltaSlice(t, []float64{0.36 / 0.52, 0.16 / 0.52}, sharp, 1e-12)

	flat := TemperatureCalibrator{Temperature: 4}.Calibrate([]float64{0.9, 0.1})
	assert.Less(t, flat[0], 0.9)

	zero := TemperatureCalibrator{Temperature: 1}.Calibrate([]float64{0, 0})
	assert.Equal(t, []float64{0, 0}, zero)
}

func TestPlattCalibrator(t *testing.T) {
	identity := PlattCalibrator{A: 1, B: 0}.Calibrate([]float64{0.7, 0.2, 0.1})
	assert.InDeltaSlice(t, []float64{0.7, 0.2, 0.1}, identity, 1e-9)

	out := PlattCalibrator{A: 0.5, B: -0.2}.Calibrate([]float64{0.8, 0.15, 0.05})
	var sum float64
	for _, v := range out {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
	assert.Greater(t, out[0], out[1])
	assert.Greater(t, out[1], out[2])
}

func TestNewCalibrator(t *testing.T) {
	cfg := testConfig()

	c, err := NewCalibrator(cfg)
	require.NoError(t, err)
	assert.Equal(t, "temperature(T=1)", c.Method())

	cfg.CalibrationMethod = "Platt"
	cfg.PlattA, cfg.PlattB = 0.8, 0.1
	c, err = NewCalibrator(cfg)
	require.NoError(t, err)
	assert.IsType(t, PlattCalibrator{}, c)

	cfg.CalibrationMethod = "isotonic"
	_, err = NewCalibrator(cfg)
	assert.Error(t, err)

	cfg = domain.DefaultDiagnosisConfig()
	cfg.Temperature = 0
	c, err = NewCalibrator(cfg)
	require.NoError(t, err)
	assert.Equal(t, TemperatureCalibrator{Temperature: 1}, c)
}

// labelled builds n predictions at pct of which hits are confirmed.
func labelled(pct float64, n, hits int) ([]float64, []bool) {
	preds := make([]float64, n)
	outcomes := make([]bool, n)
	for i := 0; i < n; i++ {
		preds[i] = pct
		outcomes[i] = i < hits
	}
	return preds, outcomes
}

func TestEvaluateCalibrationWellCalibrated(t *testing.T) {
	p1, o1 := labelled(75, 100, 75)
	p2, o2 := labelled(22, 50, 11)
	preds := append(p1, p2...)
	outcomes := append(o1, o2...)

	report, err := EvaluateCalibration(preds, outcomes, 10, 20, 10)
	require.NoError(t, err)

	bin := report.Bins[7]
	assert.Equal(t, 70.0, bin.Lower)
	assert.Equal(t, 80.0, bin.Upper)
	assert.Equal(t, 100, bin.Count)
	assert.InDelta(t, 75, bin.ObservedRate, 1e-9)
	assert.InDelta(t, 0, bin.AbsError, 1e-9)

	assert.Equal(t, 50, report.Bins[2].Count)
	assert.InDelta(t, 0, report.ECE, 1e-9)
	assert.True(t, report.WithinTolerance)
	assert.Equal(t, 150, report.Samples)
}

func TestEvaluateCalibrationOverconfident(t *testing.T) {
	preds, outcomes := labelled(95, 40, 20)
	report, err := EvaluateCalibration(preds, outcomes, 10, 10, 10)
	require.NoError(t, err)

	assert.InDelta(t, 45, report.MaxError, 1e-9)
	assert.InDelta(t, 45, report.ECE, 1e-9)
	assert.False(t, report.WithinTolerance)
}

func TestEvaluateCalibrationSparseBinsIgnored(t *testing.T) {
	preds, outcomes := labelled(35, 3, 0)
	report, err := EvaluateCalibration(preds, outcomes, 10, 10, 5)
	require.NoError(t, err)
	assert.Equal(t, 0.0, report.MaxError)
	assert.True(t, report.WithinTolerance)
	assert.Greater(t, report.ECE, 0.0)
}

func TestEvaluateCalibrationEdges(t *testing.T) {
	report, err := EvaluateCalibration([]float64{100, 0}, []bool{true, false}, 10, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Bins[9].Count)
	assert.Equal(t, 1, report.Bins[0].Count)

	_, err = EvaluateCalibration([]float64{50}, []bool{true, false}, 10, 1, 5)
	assert.Error(t, err)
	_, err = EvaluateCalibration(nil, nil, 10, 1, 5)
	assert.Error(t, err)
}

func TestFitTemperature(t *testing.T) {
	// predictions of 90% that are right only 60% of the time need flattening
	preds, outcomes := labelled(90, 100, 60)
	temp, loss, err := FitTemperature(preds, outcomes, nil)
	require.NoError(t, err)
	assert.Greater(t, temp, 1.0)
	assert.Greater(t, loss, 0.0)

	// predictions of 60% that are right 95% of the time need sharpening
	preds, outcomes = labelled(60, 100, 95)
	temp, _, err = FitTemperature(preds, outcomes, []float64{0.25, 0.5, 1, 2})
	require.NoError(t, err)
	assert.Less(t, temp, 1.0)

	_, _, err = FitTemperature(nil, nil, nil)
	assert.Error(t, err)
}
