package feedback

import (
	"context"
	"errors"
	"fmt"

	"github.com/ddx-reasoning-core/internal/service"
)

// ErrNoSamples is returned when no labelled feedback exists for the requested model.
var ErrNoSamples = errors.New("no labelled feedback")

// AuditOptions controls calibration binning.
type AuditOptions struct {
	ModelVersion string
	Bins         int
	MinCount     int
	Tolerance    float64 // percentage points
}

// DefaultAuditOptions bins into tenths and tolerates a 5 point gap in bins with 20+ samples.
func DefaultAuditOptions() AuditOptions {
	return AuditOptions{Bins: 10, MinCount: 20, Tolerance: 5}
}

// Audit is a calibration report plus the temperature that would best fit the same feedback.
type Audit struct {
	*service.CalibrationReport
	ModelVersion         string  `json:"model_version,omitempty"`
	SuggestedTemperature float64 `json:"suggested_temperature"`
	Loss                 float64 `json:"log_loss"`
}

// Evaluate compares stored predictions against clinician outcomes.
func Evaluate(ctx context.Context, s Store, opts AuditOptions) (*Audit, error) {
	samples, err := s.Samples(ctx, opts.ModelVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to load feedback samples: %w", err)
	}
	if samples.Len() == 0 {
		return nil, ErrNoSamples
	}

	percent := make([]float64, samples.Len())
	for i, p := range samples.Predictions {
		percent[i] = p * 100
	}

	report, err := service.EvaluateCalibration(percent, samples.Outcomes, opts.Bins, opts.MinCount, opts.Tolerance)
	if err != nil {
		return nil, err
	}
	temperature, loss, err := service.FitTemperature(percent, samples.Outcomes, nil)
	if err != nil {
		return nil, err
	}
	return &Audit{
		CalibrationReport:    report,
		ModelVersion:         opts.ModelVersion,
		SuggestedTemperature: temperature,
		Loss:                 loss,
	}, nil
}
