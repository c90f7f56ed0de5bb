// Package knowledge adapts versioned, read-only disease knowledge snapshots to the diagnostic
// core. A snapshot is loaded from a YAML or JSON document, validated, optionally fronted by an
// LRU lookup cache and published through a Store that swaps versions atomically.
package knowledge

import (
	"fmt"
	"sort"

	"github.com/ddx-reasoning-core/internal/domain"
)

// Document is the serialized form of a knowledge snapshot.
type Document struct {
	Version      string                  `json:"version" yaml:"version"`
	Diseases     []domain.DiseaseProfile `json:"diseases" yaml:"diseases"`
	Associations []FindingAssociations   `json:"associations" yaml:"associations"`
}

// FindingAssociations lists every disease linked to one finding code.
type FindingAssociations struct {
	FindingCode string               `json:"finding_code" yaml:"finding_code"`
	Diseases    []domain.Association `json:"diseases" yaml:"diseases"`
}

// MemorySnapshot is an immutable in-memory knowledge snapshot.
type MemorySnapshot struct {
	version      string
	diseases     map[string]domain.DiseaseProfile
	associations map[string][]domain.Association
}

// NewMemorySnapshot validates doc and indexes it. The document is copied; later changes to it do
// not affect the snapshot.
func NewMemorySnapshot(doc *Document) (*MemorySnapshot, error) {
	if err := Validate(doc); err != nil {
		return nil, err
	}

	s := &MemorySnapshot{
		version:      doc.Version,
		diseases:     make(map[string]domain.DiseaseProfile, len(doc.Diseases)),
		associations: make(map[string][]domain.Association, len(doc.Associations)),
	}
	for _, d := range doc.Diseases {
		s.diseases[d.ID] = d
	}
	for _, fa := range doc.Associations {
		assocs := make([]domain.Association, len(fa.Diseases))
		copy(assocs, fa.Diseases)
		sort.SliceStable(assocs, func(i, j int) bool { return assocs[i].DiseaseID < assocs[j].DiseaseID })
		s.associations[fa.FindingCode] = append(s.associations[fa.FindingCode], assocs...)
	}
	return s, nil
}

// Lookup returns the associations for a finding code. Unknown codes yield an empty set.
func (s *MemorySnapshot) Lookup(findingCode string) (domain.AssociationSet, error) {
	assocs := s.associations[findingCode]
	out := make([]domain.Association, len(assocs))
	copy(out, assocs)
	return domain.AssociationSet{FindingCode: findingCode, Associations: out}, nil
}

// Prevalence returns the population prevalence of a disease.
func (s *MemorySnapshot) Prevalence(diseaseID string) (float64, error) {
	d, ok := s.diseases[diseaseID]
	if !ok {
		return 0, fmt.Errorf("disease %s: %w", diseaseID, domain.ErrNotFound)
	}
	return d.Prevalence, nil
}

// Disease returns the disease profile for diseaseID.
func (s *MemorySnapshot) Disease(diseaseID string) (domain.DiseaseProfile, bool) {
	d, ok := s.diseases[diseaseID]
	return d, ok
}

// Version returns the snapshot version stamp.
func (s *MemorySnapshot) Version() string {
	return s.version
}

// Stats summarizes a snapshot for operators.
type Stats struct {
	Version      string `json:"version"`
	Diseases     int    `json:"diseases"`
	FindingCodes int    `json:"finding_codes"`
	Associations int    `json:"associations"`
	RareDiseases int    `json:"rare_diseases"`
}

// Stats returns counts over the snapshot. rareThreshold is the prevalence below which a disease
// counts as rare.
func (s *MemorySnapshot) Stats(rareThreshold float64) Stats {
	st := Stats{
		Version:      s.version,
		Diseases:     len(s.diseases),
		FindingCodes: len(s.associations),
	}
	for _, assocs := range s.associations {
		st.Associations += len(assocs)
	}
	for _, d := range s.diseases {
		if d.Prevalence < rareThreshold {
			st.RareDiseases++
		}
	}
	return st
}
