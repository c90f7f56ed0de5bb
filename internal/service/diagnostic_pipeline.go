package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ddx-reasoning-core/internal/domain"
)

// SnapshotSource yields the knowledge snapshot a request should pin.
type SnapshotSource interface {
	Current() (domain.KnowledgeSnapshot, error)
}

// DiagnosticPipeline runs one case through candidate generation, scoring, ranking and
// explanation under a hard deadline.
type DiagnosticPipeline struct {
	cfg        domain.DiagnosisConfig
	source     SnapshotSource
	generator  *CandidateGenerator
	calculator *ConfidenceCalculator
	ranker     *Ranker
	classifier *EvidenceClassifier
	chains     *ReasoningChainBuilder
	admission  *AdmissionController
	logger     *logrus.Logger
}

// PipelineOption customizes a DiagnosticPipeline.
type PipelineOption func(*pipelineOptions)

type pipelineOptions struct {
	strategies []domain.ScoringStrategy
	calibrator domain.Calibrator
	admission  *AdmissionController
}

// WithStrategies replaces the default scoring ensemble.
func WithStrategies(strategies ...domain.ScoringStrategy) PipelineOption {
	return func(o *pipelineOptions) { o.strategies = strategies }
}

// WithCalibrator replaces the calibrator built from configuration.
func WithCalibrator(c domain.Calibrator) PipelineOption {
	return func(o *pipelineOptions) { o.calibrator = c }
}

// WithAdmission routes every diagnosis through an admission controller.
func WithAdmission(a *AdmissionController) PipelineOption {
	return func(o *pipelineOptions) { o.admission = a }
}

// NewDiagnosticPipeline wires the reasoning components. literature may be nil.
func NewDiagnosticPipeline(
	cfg domain.DiagnosisConfig,
	source SnapshotSource,
	literature domain.LiteratureRetriever,
	logger *logrus.Logger,
	opts ...PipelineOption,
) (*DiagnosticPipeline, error) {
	var o pipelineOptions
	for _, opt := range opts {
		opt(&o)
	}

	calculator, err := NewConfidenceCalculator(cfg, o.strategies, o.calibrator, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create confidence calculator: %w", err)
	}
	if cfg.ExplainParallelism <= 0 {
		cfg.ExplainParallelism = 8
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = 30 * time.Second
	}

	return &DiagnosticPipeline{
		cfg:        cfg,
		source:     source,
		generator:  NewCandidateGenerator(cfg, logger),
		calculator: calculator,
		ranker:     NewRanker(cfg, logger),
		classifier: NewEvidenceClassifier(cfg),
		chains:     NewReasoningChainBuilder(cfg, literature, logger),
		admission:  o.admission,
		logger:     logger,
	}, nil
}

// Admission returns the pipeline's admission controller, or nil.
func (p *DiagnosticPipeline) Admission() *AdmissionController {
	return p.admission
}

// Diagnose produces the differential for profile. It either returns a complete differential or
// an error; a deadline overrun always yields TIMEOUT and never a partial result.
func (p *DiagnosticPipeline) Diagnose(ctx context.Context, profile *domain.NormalizedCase) (*domain.DifferentialDiagnosis, error) {
	if profile == nil {
		return nil, domain.NewDiagnosticError(domain.ErrInvalidInput, "case is nil", "No case was supplied.", nil)
	}

	// the deadline covers time spent queued for a worker
	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, p.cfg.Deadline)
	defer cancel()

	if p.admission != nil {
		release, err := p.admission.Acquire(runCtx)
		if err != nil {
			if ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
				p.logger.WithField("case_id", profile.ID).Warn("Deadline passed while queued for a worker")
				return nil, domain.NewTimeoutError(p.cfg.Deadline, runCtx.Err())
			}
			return nil, err
		}
		defer release()
	}

	snapshot, err := p.source.Current()
	if err != nil {
		var de *domain.DiagnosticError
		if !errors.As(err, &de) {
			err = domain.NewKnowledgeUnavailableError(err)
		}
		p.logger.WithError(err).WithField("case_id", profile.ID).Error("No knowledge snapshot available")
		return nil, err
	}

	logger := p.logger.WithFields(logrus.Fields{
		"case_id":           profile.ID,
		"knowledge_version": snapshot.Version(),
	})
	logger.Info("Starting differential diagnosis")

	dd, err := p.run(runCtx, snapshot, profile)
	if runErr := runCtx.Err(); errors.Is(runErr, context.DeadlineExceeded) {
		logger.WithField("deadline", p.cfg.Deadline).Warn("Differential diagnosis exceeded deadline")
		return nil, domain.NewTimeoutError(p.cfg.Deadline, runErr)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("diagnosis aborted: %w", ctx.Err())
		}
		if de, ok := domain.AsDiagnosticError(err); ok && de.IsRefusal() {
			logger.WithField("code", de.Code).Info("Differential diagnosis refused")
		} else {
			logger.WithError(err).Error("Differential diagnosis failed")
		}
		return nil, err
	}

	dd.Metadata.Elapsed = time.Since(start)
	logger.WithFields(logrus.Fields{
		"diagnoses":     len(dd.Diagnoses),
		"urgent_flags":  len(dd.UrgentFlags),
		"below_minimum": dd.BelowMinimum,
		"degraded":      dd.DegradedExplainability,
		"elapsed":       dd.Metadata.Elapsed,
	}).Info("Differential diagnosis completed")

	return dd, nil
}

func (p *DiagnosticPipeline) run(ctx context.Context, snapshot domain.KnowledgeSnapshot, profile *domain.NormalizedCase) (*domain.DifferentialDiagnosis, error) {
	candidates, err := p.generator.Generate(ctx, snapshot, profile)
	if err != nil {
		return nil, err
	}

	scored, err := p.calculator.Score(ctx, snapshot, candidates, profile)
	if err != nil {
		return nil, err
	}

	ranked, err := p.ranker.Rank(scored)
	if err != nil {
		return nil, err
	}

	if err := p.explain(ctx, snapshot, profile, ranked.Diagnoses); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dd := &domain.DifferentialDiagnosis{
		ID:           uuid.New().String(),
		CaseID:       profile.ID,
		Diagnoses:    ranked.Diagnoses,
		UrgentFlags:  []domain.UrgentFlag{},
		BelowMinimum: ranked.BelowMinimum,
		Metadata: domain.ProcessingMetadata{
			ModelVersion:       p.cfg.ModelVersion,
			KnowledgeVersion:   snapshot.Version(),
			CalibrationMethod:  p.calculator.CalibrationMethod(),
			EnsembleStrategies: p.calculator.StrategyNames(),
			CandidatesScored:   len(scored),
			GeneratedAt:        time.Now().UTC(),
		},
	}
	for _, rd := range dd.Diagnoses {
		if rd.Urgency.IsUrgent() {
			dd.UrgentFlags = append(dd.UrgentFlags, domain.UrgentFlag{
				DiseaseID: rd.Candidate.DiseaseID,
				Name:      rd.Candidate.Name,
				Urgency:   rd.Urgency,
				Rank:      rd.Rank,
			})
		}
		if rd.Chain != nil && rd.Chain.DegradedExplainability {
			dd.DegradedExplainability = true
		}
	}
	dd.DistinguishingFeatures = p.distinguishTies(dd.Diagnoses)
	return dd, nil
}

// distinguishTies compares every pair of diagnoses whose point estimates sit within the tie band,
// in rank order, and keeps the pairs that some finding tells apart.
func (p *DiagnosticPipeline) distinguishTies(diagnoses []domain.RankedDiagnosis) []domain.DistinguishingFeatures {
	var out []domain.DistinguishingFeatures
	for i := 0; i < len(diagnoses); i++ {
		for j := i + 1; j < len(diagnoses); j++ {
			a, b := diagnoses[i], diagnoses[j]
			if math.Abs(a.Confidence.Point-b.Confidence.Point) > p.cfg.TieBand {
				continue
			}
			if df := p.classifier.DistinguishingFeatures(a, b); len(df.Findings) > 0 {
				out = append(out, df)
			}
		}
	}
	return out
}

// explain classifies evidence and builds the reasoning chain for every diagnosis concurrently.
// Each goroutine writes only its own index, so output order stays deterministic.
func (p *DiagnosticPipeline) explain(ctx context.Context, snapshot domain.KnowledgeSnapshot, profile *domain.NormalizedCase, diagnoses []domain.RankedDiagnosis) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.ExplainParallelism)
	for i := range diagnoses {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			evidence, err := p.classifier.Classify(snapshot, diagnoses[i].Candidate.DiseaseID, profile)
			if err != nil {
				return err
			}
			diagnoses[i].Evidence = evidence

			chain, err := p.chains.Build(gctx, diagnoses[i], profile)
			if err != nil {
				return err
			}
			diagnoses[i].Chain = chain
			return nil
		})
	}
	return g.Wait()
}
