package risk

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidInput marks patient data that is missing a required section.
var ErrInvalidInput = errors.New("invalid input")

// InvalidInput returns an error wrapping ErrInvalidInput for field.
func InvalidInput(field, reason string) error {
	return fmt.Errorf("%w: %s %s", ErrInvalidInput, field, reason)
}

// Finding names read by the scorer and mapper.
const (
	KeyVEGFLevel      = "VEGF_level"
	KeyCDKN2AMutation = "CDKN2A_mutation"
	KeyTP53Mutation   = "TP53_mutation"

	KeyPain      = "pain"
	KeySwelling  = "swelling"
	KeyFever     = "fever"
	KeyTumorSize = "tumor_size"

	KeyMRIAbnormalities    = "mri_abnormalities"
	KeyCTScanAbnormalities = "ct_scan_abnormalities"
	KeyPETScanHighActivity = "pet_scan_high_activity"
	KeyXRayFindings        = "x_ray_findings"
)

// Name is the patient's official name.
type Name struct {
	Family string   `json:"family"`
	Given  []string `json:"given"`
}

// PatientRecord is the input to scoring and mapping. It is never mutated
// after construction.
type PatientRecord struct {
	ID        string  `json:"id,omitempty"`
	Name      Name    `json:"name"`
	Molecular Section `json:"molecular_data"`
	Clinical  Section `json:"clinical_data"`
	Imaging   Section `json:"imaging_data"`
}

// FHIR id: 1-64 of [A-Za-z0-9-.].
var idPattern = regexp.MustCompile(`^[A-Za-z0-9\-.]{1,64}$`)

// ValidID reports whether id can be used as a FHIR resource id.
func ValidID(id string) bool { return idPattern.MatchString(id) }

// Validate checks the patient id, which every produced resource references,
// and that every data section was supplied. Individual findings may still be
// missing; they score as neutral.
func (p PatientRecord) Validate() error {
	if p.ID == "" {
		return InvalidInput("id", "is required")
	}
	if !ValidID(p.ID) {
		return InvalidInput("id", "is not a valid FHIR id")
	}
	if !p.Molecular.Present() {
		return InvalidInput("molecular_data", "is required")
	}
	if !p.Clinical.Present() {
		return InvalidInput("clinical_data", "is required")
	}
	if !p.Imaging.Present() {
		return InvalidInput("imaging_data", "is required")
	}
	return nil
}

// Category is the discrete risk band.
type Category string

const (
	CategoryLow    Category = "Low"
	CategoryMedium Category = "Medium"
	CategoryHigh   Category = "High"
)

// PercentScale converts the canonical 0-1 score to a percentage.
const PercentScale = 100

// Result is a derived, identity-less scoring outcome.
type Result struct {
	Score             float64  `json:"score"`
	Category          Category `json:"category"`
	SuspectedSubtypes []string `json:"suspected_subtypes"`
	Policy            string   `json:"policy"`
}

// Percent returns the score on the percentage scale.
func (r Result) Percent() float64 {
	return r.Score * PercentScale
}

// Probability clamps the score into [0,1] for FHIR probabilityDecimal.
func (r Result) Probability() float64 {
	switch {
	case r.Score < 0:
		return 0
	case r.Score > 1:
		return 1
	}
	return r.Score
}

// WithSubtypes returns a copy of r carrying subtypes.
func (r Result) WithSubtypes(subtypes []string) Result {
	out := r
	out.SuspectedSubtypes = append([]string(nil), subtypes...)
	return out
}
