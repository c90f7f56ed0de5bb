package domain

import (
	"time"
)

// Evidence tags one finding against one disease. It owns neither; it is a pure relation.
type Evidence struct {
	FindingCode string       `json:"finding_code"`
	DiseaseID   string       `json:"disease_id"`
	Kind        EvidenceKind `json:"kind"`
	Weight      float64      `json:"weight"`
	Rationale   string       `json:"rationale,omitempty"`
}

// EvidencePartition splits evidence for one candidate into its three buckets.
type EvidencePartition struct {
	Supporting    []Evidence `json:"supporting"`
	Contradicting []Evidence `json:"contradicting"`
	Neutral       []Evidence `json:"neutral"`
}

// PartitionEvidence groups items by kind, preserving their order within each bucket.
func PartitionEvidence(items []Evidence) EvidencePartition {
	var p EvidencePartition
	for _, e := range items {
		switch e.Kind {
		case EvidenceSupporting:
			p.Supporting = append(p.Supporting, e)
		case EvidenceContradicting:
			p.Contradicting = append(p.Contradicting, e)
		default:
			p.Neutral = append(p.Neutral, e)
		}
	}
	return p
}

// FindingCodes returns the set of finding codes covered by all three buckets.
func (p EvidencePartition) FindingCodes() map[string]struct{} {
	codes := make(map[string]struct{}, len(p.Supporting)+len(p.Contradicting)+len(p.Neutral))
	for _, bucket := range [][]Evidence{p.Supporting, p.Contradicting, p.Neutral} {
		for _, e := range bucket {
			codes[e.FindingCode] = struct{}{}
		}
	}
	return codes
}

// DistinguishingFeatures lists the findings whose classification differs between two
// candidates that sit inside the urgency tie band.
type DistinguishingFeatures struct {
	DiseaseA string                 `json:"disease_a"`
	DiseaseB string                 `json:"disease_b"`
	Findings []DistinguishingFinding `json:"findings"`
}

// DistinguishingFinding records how one finding reads against each of the two candidates.
type DistinguishingFinding struct {
	FindingCode string       `json:"finding_code"`
	KindA       EvidenceKind `json:"kind_a"`
	KindB       EvidenceKind `json:"kind_b"`
}

// Citation represents a single literature citation
type Citation struct {
	PMID      string    `json:"pmid"`
	DOI       string    `json:"doi,omitempty"`
	Title     string    `json:"title"`
	Authors   []string  `json:"authors"`
	Journal   string    `json:"journal"`
	Year      int       `json:"year"`
	Source    string    `json:"source"`    // PubMed, static, cache
	Relevance string    `json:"relevance"` // high, moderate, low
	Retrieved time.Time `json:"retrieved"`
}
