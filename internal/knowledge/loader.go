package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ddx-reasoning-core/internal/domain"
)

// LoadFile reads a snapshot document from path. Files ending in .json are decoded as JSON,
// everything else as YAML.
func LoadFile(path string) (*MemorySnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge snapshot %s: %w", path, err)
	}

	format := "yaml"
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = "json"
	}

	doc, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("failed to parse knowledge snapshot %s: %w", path, err)
	}
	return NewMemorySnapshot(doc)
}

// Parse decodes a snapshot document in the given format ("yaml" or "json").
func Parse(data []byte, format string) (*Document, error) {
	var doc Document
	switch strings.ToLower(format) {
	case "json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	case "yaml", "yml", "":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported snapshot format: %s", format)
	}
	return &doc, nil
}

// Validate checks the integrity of a snapshot document.
func Validate(doc *Document) error {
	if doc == nil {
		return domain.NewValidationError("document", "snapshot document is nil", nil)
	}
	if strings.TrimSpace(doc.Version) == "" {
		return domain.NewValidationError("version", "snapshot version is required", doc.Version)
	}
	if len(doc.Diseases) == 0 {
		return domain.NewValidationError("diseases", "snapshot must define at least one disease", nil)
	}

	ids := make(map[string]struct{}, len(doc.Diseases))
	for i, d := range doc.Diseases {
		field := fmt.Sprintf("diseases[%d]", i)
		if strings.TrimSpace(d.ID) == "" {
			return domain.NewValidationError(field+".id", "disease id is required", d.ID)
		}
		if _, dup := ids[d.ID]; dup {
			return domain.NewValidationError(field+".id", "duplicate disease id", d.ID)
		}
		ids[d.ID] = struct{}{}
		if d.Prevalence <= 0 || d.Prevalence > 1 {
			return domain.NewValidationError(field+".prevalence", "prevalence must be in (0,1]", d.Prevalence)
		}
		if !d.Urgency.IsValid() {
			return domain.NewValidationError(field+".urgency", domain.ErrInvalidUrgency.Error(), d.Urgency)
		}
	}

	for i, fa := range doc.Associations {
		field := fmt.Sprintf("associations[%d]", i)
		if strings.TrimSpace(fa.FindingCode) == "" {
			return domain.NewValidationError(field+".finding_code", "finding code is required", fa.FindingCode)
		}
		seen := make(map[string]struct{}, len(fa.Diseases))
		for j, a := range fa.Diseases {
			af := fmt.Sprintf("%s.diseases[%d]", field, j)
			if _, ok := ids[a.DiseaseID]; !ok {
				return domain.NewValidationError(af+".disease_id", "references unknown disease", a.DiseaseID)
			}
			if _, dup := seen[a.DiseaseID]; dup {
				return domain.NewValidationError(af+".disease_id", "duplicate association", a.DiseaseID)
			}
			seen[a.DiseaseID] = struct{}{}
			if a.Frequency < 0 || a.Frequency > 1 {
				return domain.NewValidationError(af+".frequency", "frequency must be in [0,1]", a.Frequency)
			}
			if a.Specificity < 0 || a.Specificity > 1 {
				return domain.NewValidationError(af+".specificity", "specificity must be in [0,1]", a.Specificity)
			}
			if !a.Onset.IsValid() {
				return domain.NewValidationError(af+".onset", domain.ErrInvalidOnset.Error(), a.Onset)
			}
			if !a.Trend.IsValid() {
				return domain.NewValidationError(af+".trend", domain.ErrInvalidTrend.Error(), a.Trend)
			}
		}
	}
	return nil
}
