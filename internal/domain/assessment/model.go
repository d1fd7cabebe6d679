package assessment

import (
	"github.com/sarcrisk/sarcrisk/internal/domain/risk"
)

// ObservationKind tags the ClinicalObservation variant.
type ObservationKind string

const (
	KindClinical  ObservationKind = "clinical"
	KindMolecular ObservationKind = "molecular"
	KindImaging   ObservationKind = "imaging"
)

// Code is a single coding-system code with its display text.
type Code struct {
	System  string `json:"system"`
	Code    string `json:"code"`
	Display string `json:"display"`
}

// Quantity is a numeric value with a unit.
type Quantity struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// ObservationValue holds exactly one of Quantity or Text.
type ObservationValue struct {
	Quantity *Quantity `json:"quantity,omitempty"`
	Text     *string   `json:"text,omitempty"`
}

// ClinicalObservation backs one data category of an assessment.
type ClinicalObservation struct {
	ID        string           `json:"id"`
	Kind      ObservationKind  `json:"kind"`
	Status    string           `json:"status"`
	Code      Code             `json:"code"`
	PatientID string           `json:"patient_id"`
	Value     ObservationValue `json:"value"`
}

// Extension is an ordered key/value pair on a RiskAssessmentRecord.
type Extension struct {
	URL      string    `json:"url"`
	Text     *string   `json:"text,omitempty"`
	Quantity *Quantity `json:"quantity,omitempty"`
}

// Prediction is the single predicted outcome of an assessment.
type Prediction struct {
	Outcome     risk.Category `json:"outcome"`
	Probability float64       `json:"probability"`
}

// RiskAssessmentRecord is built fresh per request and never mutated.
type RiskAssessmentRecord struct {
	ID         string      `json:"id"`
	PatientID  string      `json:"patient_id"`
	Status     string      `json:"status"`
	Code       Code        `json:"code"`
	Prediction Prediction  `json:"prediction"`
	Extensions []Extension `json:"extensions"`
	Basis      []string    `json:"basis"`
}

// PatientResource is the mapped patient identity.
type PatientResource struct {
	ID     string   `json:"id"`
	Use    string   `json:"use"`
	Family string   `json:"family"`
	Given  []string `json:"given"`
}

// Records is the complete output of one mapping.
type Records struct {
	Patient        PatientResource       `json:"patient"`
	RiskAssessment RiskAssessmentRecord  `json:"risk_assessment"`
	Observations   []ClinicalObservation `json:"observations"`
}

// Observation returns the observation of the given kind.
func (r Records) Observation(kind ObservationKind) (ClinicalObservation, bool) {
	for _, o := range r.Observations {
		if o.Kind == kind {
			return o, true
		}
	}
	return ClinicalObservation{}, false
}

// Extension returns the extension with url.
func (r RiskAssessmentRecord) Extension(url string) (Extension, bool) {
	for _, e := range r.Extensions {
		if e.URL == url {
			return e, true
		}
	}
	return Extension{}, false
}

func strPtr(s string) *string { return &s }
