package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// CaseDocument is the on-disk and on-the-wire form of a normalized case. It is decoded from YAML
// or JSON by the CLI, the HTTP API and the MCP tools, then converted with ToNormalizedCase.
type CaseDocument struct {
	ID               string       `json:"id" yaml:"id"`
	Findings         []Finding    `json:"findings" yaml:"findings"`
	LabResults       []Finding    `json:"lab_results,omitempty" yaml:"lab_results,omitempty"`
	ImagingFindings  []Finding    `json:"imaging_findings,omitempty" yaml:"imaging_findings,omitempty"`
	Demographics     Demographics `json:"demographics" yaml:"demographics"`
	QualityScore     float64      `json:"quality_score" yaml:"quality_score"`
	QualityValidated bool         `json:"quality_validated" yaml:"quality_validated"`
}

// ParseCaseDocument decodes data as JSON when it looks like a JSON object and as YAML otherwise.
func ParseCaseDocument(data []byte) (*CaseDocument, error) {
	var doc CaseDocument
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode case JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode case YAML: %w", err)
		}
	}
	return &doc, nil
}

// Validate checks structural integrity. It does not apply the quality threshold; that is the
// candidate generator's decision.
func (d *CaseDocument) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return NewValidationError("id", "case id is required", d.ID)
	}
	if len(d.Findings)+len(d.LabResults)+len(d.ImagingFindings) == 0 {
		return NewValidationError("findings", "at least one finding is required", nil)
	}
	if d.QualityScore < 0 || d.QualityScore > 100 {
		return NewValidationError("quality_score", "must be between 0 and 100", d.QualityScore)
	}

	groups := []struct {
		field string
		kind  FindingKind
		items []Finding
	}{
		{"findings", FindingSymptom, d.Findings},
		{"lab_results", FindingLab, d.LabResults},
		{"imaging_findings", FindingImaging, d.ImagingFindings},
	}
	seen := make(map[string]struct{})
	for _, g := range groups {
		for i, f := range g.items {
			field := fmt.Sprintf("%s[%d]", g.field, i)
			if strings.TrimSpace(f.Code) == "" {
				return NewValidationError(field+".code", "finding code is required", f.Code)
			}
			if _, dup := seen[f.Code]; dup {
				return NewValidationError(field+".code", "duplicate finding code", f.Code)
			}
			seen[f.Code] = struct{}{}
			if f.Kind != "" && f.Kind != g.kind {
				return NewValidationError(field+".kind", fmt.Sprintf("expected %s", g.kind), f.Kind)
			}
			if f.Onset < 0 {
				return NewValidationError(field+".onset", "onset must be non-negative", f.Onset)
			}
			if f.Severity != 0 && (f.Severity < 1 || f.Severity > 10) {
				return NewValidationError(field+".severity", "severity must be between 1 and 10", f.Severity)
			}
			if !f.Trend.IsValid() {
				return NewValidationError(field+".trend", ErrInvalidTrend.Error(), f.Trend)
			}
		}
	}
	return nil
}

// ToNormalizedCase validates the document and produces the immutable pipeline input. Finding
// kinds left blank are filled from the group they were listed under.
func (d *CaseDocument) ToNormalizedCase() (*NormalizedCase, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &NormalizedCase{
		ID:               d.ID,
		Findings:         withKind(d.Findings, FindingSymptom),
		LabResults:       withKind(d.LabResults, FindingLab),
		ImagingFindings:  withKind(d.ImagingFindings, FindingImaging),
		Demographics:     d.Demographics,
		QualityScore:     d.QualityScore,
		QualityValidated: d.QualityValidated,
		ReceivedAt:       time.Now().UTC(),
	}, nil
}

func withKind(items []Finding, kind FindingKind) []Finding {
	if len(items) == 0 {
		return nil
	}
	out := make([]Finding, len(items))
	for i, f := range items {
		if f.Kind == "" {
			f.Kind = kind
		}
		out[i] = f
	}
	return out
}
