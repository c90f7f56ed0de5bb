package domain

// Association links a finding code to a disease in a knowledge snapshot.
//
// Frequency is how often the finding occurs with the disease (0-1). Specificity is how
// discriminating the finding is for the disease (0-1). Exclusionary marks findings that argue
// against the disease. Onset and Trend optionally declare the temporal signature the finding
// shows for this disease.
type Association struct {
	DiseaseID    string       `json:"disease_id" yaml:"disease_id"`
	Frequency    float64      `json:"frequency" yaml:"frequency"`
	Specificity  float64      `json:"specificity" yaml:"specificity"`
	Exclusionary bool         `json:"exclusionary,omitempty" yaml:"exclusionary,omitempty"`
	Onset        OnsetPattern `json:"onset,omitempty" yaml:"onset,omitempty"`
	Trend        Trend        `json:"trend,omitempty" yaml:"trend,omitempty"`
}

// Weight is the base association weight used by candidate generation.
func (a Association) Weight() float64 {
	return a.Frequency * a.Specificity
}

// AssociationSet is every association recorded for one finding code.
type AssociationSet struct {
	FindingCode  string        `json:"finding_code"`
	Associations []Association `json:"associations"`
}

// For returns the association for diseaseID, if any.
func (s AssociationSet) For(diseaseID string) (Association, bool) {
	for _, a := range s.Associations {
		if a.DiseaseID == diseaseID {
			return a, true
		}
	}
	return Association{}, false
}

// DiseaseProfile is the per-disease entry of a snapshot.
type DiseaseProfile struct {
	ID          string       `json:"id" yaml:"id"`
	Name        string       `json:"name" yaml:"name"`
	Prevalence  float64      `json:"prevalence" yaml:"prevalence"`
	Urgency     UrgencyLevel `json:"urgency" yaml:"urgency"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
}
