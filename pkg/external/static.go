package external

import (
	"context"
	"sort"
	"strings"

	"github.com/ddx-reasoning-core/internal/domain"
)

// StaticLiterature serves a fixed citation set keyed by disease ID. Used offline and in tests.
type StaticLiterature struct {
	byDisease map[string][]domain.Citation
}

// NewStaticLiterature copies the supplied table.
func NewStaticLiterature(table map[string][]domain.Citation) *StaticLiterature {
	s := &StaticLiterature{byDisease: make(map[string][]domain.Citation, len(table))}
	for id, cites := range table {
		cp := make([]domain.Citation, len(cites))
		copy(cp, cites)
		for i := range cp {
			if cp[i].Source == "" {
				cp[i].Source = "static"
			}
		}
		s.byDisease[id] = cp
	}
	return s
}

// CitationsFor returns the disease's citations, those whose titles mention a finding first.
func (s *StaticLiterature) CitationsFor(ctx context.Context, diseaseID string, topFindings []string) ([]domain.Citation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cites := s.byDisease[diseaseID]
	out := make([]domain.Citation, len(cites))
	copy(out, cites)
	for i := range out {
		out[i].Relevance = assessRelevance(out[i].Title, topFindings)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return relevanceRank(out[i].Relevance) > relevanceRank(out[j].Relevance)
	})
	return out, nil
}

func relevanceRank(r string) int {
	switch strings.ToLower(r) {
	case "high":
		return 2
	case "moderate":
		return 1
	default:
		return 0
	}
}
