package service

import (
	"fmt"
	"math"
	"strings"

	"github.com/ddx-reasoning-core/internal/domain"
)

// Calibration methods
const (
	CalibrationTemperature = "temperature"
	CalibrationPlatt       = "platt"
)

// NewCalibrator builds the calibrator named by cfg.CalibrationMethod.
func NewCalibrator(cfg domain.DiagnosisConfig) (domain.Calibrator, error) {
	switch strings.ToLower(cfg.CalibrationMethod) {
	case "", CalibrationTemperature:
		t := cfg.Temperature
		if t <= 0 {
			t = 1
		}
		return TemperatureCalibrator{Temperature: t}, nil
	case CalibrationPlatt:
		return PlattCalibrator{A: cfg.PlattA, B: cfg.PlattB}, nil
	default:
		return nil, fmt.Errorf("unsupported calibration method: %s", cfg.CalibrationMethod)
	}
}

// TemperatureCalibrator sharpens (T<1) or flattens (T>1) a probability vector. T=1 is the
// identity.
type TemperatureCalibrator struct {
	Temperature float64
}

func (c TemperatureCalibrator) Method() string {
	return fmt.Sprintf("%s(T=%.3g)", CalibrationTemperature, c.Temperature)
}

func (c TemperatureCalibrator) Calibrate(probabilities []float64) []float64 {
	out := make([]float64, len(probabilities))
	inv := 1 / c.Temperature
	for i, p := range probabilities {
		if p > 0 {
			out[i] = math.Pow(p, inv)
		}
	}
	return normalize(out)
}

// PlattCalibrator applies sigmoid(A*logit(p)+B) element-wise and renormalizes.
type PlattCalibrator struct {
	A float64
	B float64
}

func (c PlattCalibrator) Method() string {
	return fmt.Sprintf("%s(A=%.3g,B=%.3g)", CalibrationPlatt, c.A, c.B)
}

func (c PlattCalibrator) Calibrate(probabilities []float64) []float64 {
	out := make([]float64, len(probabilities))
	for i, p := range probabilities {
		out[i] = sigmoid(c.A*logit(p) + c.B)
	}
	return normalize(out)
}

// normalize rescales v in place to sum to 1. A zero vector is returned unchanged.
func normalize(v []float64) []float64 {
	var sum float64
	for _, x := range v {
		sum += x
	}
	if sum <= 0 {
		return v
	}
	for i := range v {
		v[i] /= sum
	}
	return v
}

func logit(p float64) float64 {
	const eps = 1e-12
	p = math.Min(math.Max(p, eps), 1-eps)
	return math.Log(p / (1 - p))
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// CalibrationBin summarizes predictions whose point estimate fell inside [Lower, Upper).
type CalibrationBin struct {
	Lower         float64 `json:"lower"`
	Upper         float64 `json:"upper"`
	Count         int     `json:"count"`
	MeanPredicted float64 `json:"mean_predicted"`
	ObservedRate  float64 `json:"observed_rate"`
	AbsError      float64 `json:"abs_error"`
}

// CalibrationReport compares predicted confidence against confirmed outcomes. All values are in
// percent.
type CalibrationReport struct {
	Bins            []CalibrationBin `json:"bins"`
	Samples         int              `json:"samples"`
	ECE             float64          `json:"expected_calibration_error"`
	MaxError        float64          `json:"max_error"`
	Tolerance       float64          `json:"tolerance"`
	WithinTolerance bool             `json:"within_tolerance"`
}

// EvaluateCalibration bins predictions (percent, 0-100) into equal-width bins and compares each
// bin's mean prediction with the observed rate of confirmed outcomes. Bins with fewer than
// minCount samples are reported but excluded from MaxError and the tolerance check.
func EvaluateCalibration(predictions []float64, outcomes []bool, bins, minCount int, tolerance float64) (*CalibrationReport, error) {
	if len(predictions) != len(outcomes) {
		return nil, fmt.Errorf("predictions and outcomes differ in length: %d vs %d", len(predictions), len(outcomes))
	}
	if len(predictions) == 0 {
		return nil, fmt.Errorf("no labelled predictions to evaluate")
	}
	if bins <= 0 {
		bins = 10
	}

	width := 100.0 / float64(bins)
	report := &CalibrationReport{
		Bins:      make([]CalibrationBin, bins),
		Samples:   len(predictions),
		Tolerance: tolerance,
	}
	sums := make([]float64, bins)
	hits := make([]int, bins)
	for i := range report.Bins {
		report.Bins[i].Lower = float64(i) * width
		report.Bins[i].Upper = float64(i+1) * width
	}

	for i, p := range predictions {
		p = math.Min(math.Max(p, 0), 100)
		idx := int(p / width)
		if idx >= bins {
			idx = bins - 1
		}
		report.Bins[idx].Count++
		sums[idx] += p
		if outcomes[i] {
			hits[idx]++
		}
	}

	report.WithinTolerance = true
	for i := range report.Bins {
		b := &report.Bins[i]
		if b.Count == 0 {
			continue
		}
		b.MeanPredicted = sums[i] / float64(b.Count)
		b.ObservedRate = 100 * float64(hits[i]) / float64(b.Count)
		b.AbsError = math.Abs(b.MeanPredicted - b.ObservedRate)
		report.ECE += b.AbsError * float64(b.Count) / float64(len(predictions))

		if b.Count < minCount {
			continue
		}
		if b.AbsError > report.MaxError {
			report.MaxError = b.AbsError
		}
		if b.AbsError > tolerance {
			report.WithinTolerance = false
		}
	}
	return report, nil
}

// FitTemperature grid-searches the temperature that minimizes the binary negative
// log-likelihood of labelled predictions (percent). It returns the best temperature and its
// mean loss.
func FitTemperature(predictions []float64, outcomes []bool, grid []float64) (float64, float64, error) {
	if len(predictions) != len(outcomes) || len(predictions) == 0 {
		return 0, 0, fmt.Errorf("need equal-length, non-empty predictions and outcomes")
	}
	if len(grid) == 0 {
		for t := 0.25; t <= 4.0001; t += 0.05 {
			grid = append(grid, t)
		}
	}

	bestT, bestLoss := 1.0, math.Inf(1)
	for _, t := range grid {
		if t <= 0 {
			continue
		}
		var loss float64
		for i, pct := range predictions {
			q := binaryTemperature(pct/100, t)
			q = math.Min(math.Max(q, 1e-12), 1-1e-12)
			if outcomes[i] {
				loss -= math.Log(q)
			} else {
				loss -= math.Log(1 - q)
			}
		}
		loss /= float64(len(predictions))
		if loss < bestLoss {
			bestT, bestLoss = t, loss
		}
	}
	return bestT, bestLoss, nil
}

// binaryTemperature is temperature scaling of a single probability against its complement.
func binaryTemperature(p, t float64) float64 {
	v := TemperatureCalibrator{Temperature: t}.Calibrate([]float64{p, 1 - p})
	return v[0]
}
