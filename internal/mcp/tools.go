package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/ddx-reasoning-core/internal/cache"
	"github.com/ddx-reasoning-core/internal/domain"
	"github.com/ddx-reasoning-core/internal/feedback"
)

func (s *LiteServer) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "diagnose_case",
		Description: "Produce a ranked differential diagnosis with calibrated confidence intervals, urgent flags and reasoning chains for a normalized, de-identified case.",
	}, s.handleDiagnoseCase)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "record_feedback",
		Description: "Record whether a diagnosis from a differential was confirmed or refuted by the clinician.",
	}, s.handleRecordFeedback)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "calibration_report",
		Description: "Compare predicted confidence against recorded clinician outcomes and suggest a calibration temperature.",
	}, s.handleCalibrationReport)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "knowledge_info",
		Description: "Describe the loaded knowledge snapshot: version, disease and finding counts.",
	}, s.handleKnowledgeInfo)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "export_feedback",
		Description: "Export all recorded feedback to a JSON file in the data directory.",
	}, s.handleExportFeedback)

	s.logger.WithField("tool_count", 5).Info("Registered MCP tools")
}

// FindingParams is a single finding as supplied to diagnose_case.
type FindingParams struct {
	Code     string  `json:"code" jsonschema:"normalized finding code, e.g. chest_pain"`
	Onset    int     `json:"onset,omitempty" jsonschema:"days since onset"`
	Severity int     `json:"severity,omitempty" jsonschema:"severity 1-10"`
	Trend    string  `json:"trend,omitempty" jsonschema:"improving, stable or worsening"`
	Value    float64 `json:"value,omitempty" jsonschema:"numeric value for lab results"`
	Unit     string  `json:"unit,omitempty" jsonschema:"unit of value"`
}

// DiagnoseCaseParams defines parameters for the diagnose_case tool
type DiagnoseCaseParams struct {
	CaseID           string          `json:"case_id" jsonschema:"case identifier"`
	Findings         []FindingParams `json:"findings" jsonschema:"reported symptoms"`
	LabResults       []FindingParams `json:"lab_results,omitempty" jsonschema:"laboratory findings"`
	ImagingFindings  []FindingParams `json:"imaging_findings,omitempty" jsonschema:"imaging findings"`
	AgeYears         int             `json:"age_years,omitempty" jsonschema:"patient age in years"`
	Sex              string          `json:"sex,omitempty" jsonschema:"patient sex"`
	QualityScore     float64         `json:"quality_score" jsonschema:"upstream data quality score 0-100"`
	QualityValidated bool            `json:"quality_validated" jsonschema:"true when upstream quality validation ran"`
}

// DiagnoseCaseResult defines the result structure for diagnose_case
type DiagnoseCaseResult struct {
	Differential *domain.DifferentialDiagnosis `json:"differential"`
	Cached       bool                          `json:"cached"`
}

// RecordFeedbackParams defines parameters for the record_feedback tool
type RecordFeedbackParams struct {
	DifferentialID      string  `json:"differential_id,omitempty" jsonschema:"differential returned by diagnose_case"`
	CaseID              string  `json:"case_id,omitempty" jsonschema:"case identifier, required without differential_id"`
	DiseaseID           string  `json:"disease_id" jsonschema:"disease the verdict applies to"`
	Outcome             string  `json:"outcome" jsonschema:"confirmed or refuted"`
	PredictedConfidence float64 `json:"predicted_confidence,omitempty" jsonschema:"predicted point estimate 0-100, required without differential_id"`
	Notes               string  `json:"notes,omitempty" jsonschema:"free-text clinician notes"`
}

// CalibrationReportParams defines parameters for the calibration_report tool
type CalibrationReportParams struct {
	ModelVersion string `json:"model_version,omitempty" jsonschema:"restrict to one model version"`
	Bins         int    `json:"bins,omitempty" jsonschema:"number of equal-width bins (default 10)"`
}

// KnowledgeInfoParams takes no arguments
type KnowledgeInfoParams struct{}

// ExportFeedbackParams takes no arguments
type ExportFeedbackParams struct{}

// ExportFeedbackResult defines the result of export_feedback
type ExportFeedbackResult struct {
	FilePath string `json:"file_path"`
	Count    int64  `json:"count"`
}

func (p DiagnoseCaseParams) document() *domain.CaseDocument {
	return &domain.CaseDocument{
		ID:               p.CaseID,
		Findings:         toFindings(p.Findings),
		LabResults:       toFindings(p.LabResults),
		ImagingFindings:  toFindings(p.ImagingFindings),
		Demographics:     domain.Demographics{AgeYears: p.AgeYears, Sex: p.Sex},
		QualityScore:     p.QualityScore,
		QualityValidated: p.QualityValidated,
	}
}

func toFindings(in []FindingParams) []domain.Finding {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.Finding, len(in))
	for i, f := range in {
		out[i] = domain.Finding{
			Code:     f.Code,
			Onset:    f.Onset,
			Severity: f.Severity,
			Trend:    domain.Trend(f.Trend),
			Value:    f.Value,
			Unit:     f.Unit,
		}
	}
	return out
}

func (s *LiteServer) handleDiagnoseCase(ctx context.Context, _ *mcp.CallToolRequest, params DiagnoseCaseParams) (*mcp.CallToolResult, any, error) {
	logger := s.logger.WithFields(logrus.Fields{"tool": "diagnose_case", "case_id": params.CaseID})
	logger.Info("Tool invoked")

	profile, err := params.document().ToNormalizedCase()
	if err != nil {
		return errorResult(domain.NewDiagnosticError(domain.ErrInvalidInput, err.Error(), "The case is incomplete or malformed.", err)), nil, nil
	}

	var key string
	if snapshot, err := s.knowledge.Current(); err == nil {
		key, err = cache.Key(profile, snapshot.Version(), s.config.Diagnosis().ModelVersion)
		if err != nil {
			logger.WithError(err).Warn("Failed to fingerprint case, skipping result cache")
		} else if dd, ok := s.cache.Get(key); ok {
			logger.WithField("differential_id", dd.ID).Debug("Serving cached differential")
			return jsonResult(DiagnoseCaseResult{Differential: dd, Cached: true})
		}
	}

	dd, err := s.pipeline.Diagnose(ctx, profile)
	if err != nil {
		return errorResult(err), nil, nil
	}

	if err := s.differentials.Save(ctx, dd); err != nil {
		logger.WithError(err).Error("Failed to retain differential")
	}
	// Only the snapshot version the differential was produced against is a valid key.
	if key != "" && dd.Metadata.KnowledgeVersion != "" {
		if key, err = cache.Key(profile, dd.Metadata.KnowledgeVersion, dd.Metadata.ModelVersion); err == nil {
			s.cache.Set(key, dd)
		}
	}
	return jsonResult(DiagnoseCaseResult{Differential: dd})
}

func (s *LiteServer) handleRecordFeedback(ctx context.Context, _ *mcp.CallToolRequest, params RecordFeedbackParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithFields(logrus.Fields{"tool": "record_feedback", "disease_id": params.DiseaseID}).Info("Tool invoked")

	fb := &feedback.Feedback{
		CaseID:              params.CaseID,
		DiseaseID:           params.DiseaseID,
		Outcome:             feedback.Outcome(params.Outcome),
		PredictedConfidence: params.PredictedConfidence,
		Notes:               params.Notes,
	}
	if params.DifferentialID != "" {
		dd, err := s.differentials.GetByID(ctx, params.DifferentialID)
		if err != nil {
			return textError(fmt.Sprintf("differential %s is not available: diagnose the case again or supply case_id and predicted_confidence", params.DifferentialID)), nil, nil
		}
		if err := fb.FillFrom(dd); err != nil {
			return textError(err.Error()), nil, nil
		}
	}
	if err := fb.Validate(); err != nil {
		return textError(err.Error()), nil, nil
	}
	if err := s.feedbackStore.Save(ctx, fb); err != nil {
		s.logger.WithError(err).Error("Failed to save feedback")
		return textError("failed to save feedback"), nil, nil
	}
	return jsonResult(fb)
}

func (s *LiteServer) handleCalibrationReport(ctx context.Context, _ *mcp.CallToolRequest, params CalibrationReportParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "calibration_report").Info("Tool invoked")

	opts := feedback.DefaultAuditOptions()
	opts.ModelVersion = params.ModelVersion
	if params.Bins > 0 {
		opts.Bins = params.Bins
	}
	audit, err := feedback.Evaluate(ctx, s.feedbackStore, opts)
	if errors.Is(err, feedback.ErrNoSamples) {
		return textError("no clinician feedback recorded yet; use record_feedback first"), nil, nil
	}
	if err != nil {
		s.logger.WithError(err).Error("Calibration evaluation failed")
		return textError(err.Error()), nil, nil
	}
	return jsonResult(audit)
}

func (s *LiteServer) handleKnowledgeInfo(_ context.Context, _ *mcp.CallToolRequest, _ KnowledgeInfoParams) (*mcp.CallToolResult, any, error) {
	summary, err := s.knowledge.Describe(s.config.Diagnosis().RareThreshold)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return jsonResult(summary)
}

func (s *LiteServer) handleExportFeedback(ctx context.Context, _ *mcp.CallToolRequest, _ ExportFeedbackParams) (*mcp.CallToolResult, any, error) {
	dir := s.config.ExportDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return textError(fmt.Sprintf("failed to create export directory: %v", err)), nil, nil
	}

	path := filepath.Join(dir, fmt.Sprintf("feedback_export_%s.json", time.Now().Format("20060102_150405")))
	file, err := os.Create(path)
	if err != nil {
		return textError(fmt.Sprintf("failed to create export file: %v", err)), nil, nil
	}
	defer file.Close()

	if err := s.feedbackStore.ExportJSON(ctx, file); err != nil {
		s.logger.WithError(err).Error("Failed to export feedback")
		return textError("failed to export feedback"), nil, nil
	}
	count, _ := s.feedbackStore.Count(ctx)
	return jsonResult(ExportFeedbackResult{FilePath: path, Count: count})
}

func jsonResult(v interface{}) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, v, nil
}

// errorResult renders a refusal with its code and clinical explanation so the calling model
// can relay it verbatim.
func errorResult(err error) *mcp.CallToolResult {
	de, ok := domain.AsDiagnosticError(err)
	if !ok {
		return textError(err.Error())
	}
	data, _ := json.MarshalIndent(map[string]interface{}{
		"code":        de.Code,
		"message":     de.Message,
		"explanation": de.Explanation,
		"retryable":   de.Retryable,
		"retry_after": de.RetryAfter.String(),
	}, "", "  ")
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}

func textError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
	}
}
