package assessment

import (
	"strings"

	"github.com/sarcrisk/sarcrisk/internal/domain/risk"
	"github.com/sarcrisk/sarcrisk/pkg/fhirmodels"
)

// Extension URLs, in the order they appear on a RiskAssessmentRecord.
const (
	ExtSuspectedSubtypes = "http://example.com/suspected-sarcoma-subtypes"
	ExtTumorSize         = "http://example.com/tumor-size"
	ExtClinicalSymptoms  = "http://example.com/clinical-symptoms"
	ExtImagingFindings   = "http://example.com/imaging-findings"
)

const (
	clinicalSymptomsLabel = "Pain, Swelling, Fever: "
	imagingFindingsLabel  = "MRI Abnormalities, PET Scan Activity: "
)

// Observation identifiers.
const (
	ObsClinicalID  = "clinical-data"
	ObsMolecularID = "molecular-data"
	ObsImagingID   = "imaging-findings"
)

var (
	sarcomaRiskCode = Code{System: fhirmodels.SystemSNOMED, Code: "420324007", Display: "Sarcoma risk assessment"}
	tumorSizeCode   = Code{System: fhirmodels.SystemSNOMED, Code: "7530005", Display: "Tumor Size"}
	molecularCode   = Code{System: fhirmodels.SystemSNOMED, Code: "116148004", Display: "Molecular genetic procedure"}
	imagingCode     = Code{System: fhirmodels.SystemSNOMED, Code: "363679005", Display: "Imaging"}
)

// legacyBasis is the fixed reference list emitted regardless of which
// observations exist.
var legacyBasis = []string{
	"Observation/clinical-data",
	"Observation/molecular-data",
	"Observation/tumor-size",
	"Observation/clinical-symptoms",
	"Observation/imaging-findings",
}

// Options tune two behaviours whose intended semantics are unresolved.
type Options struct {
	// PositiveFindingsOnly lists only true-valued imaging findings in
	// summaries instead of every supplied key.
	PositiveFindingsOnly bool
	// LegacyBasis emits the fixed five basis references instead of the
	// observations actually built.
	LegacyBasis bool
}

// Mapper turns a scored patient into output records. It is pure and safe
// for concurrent use.
type Mapper struct {
	opts Options
}

func NewMapper(opts Options) *Mapper {
	return &Mapper{opts: opts}
}

// Build assembles the Patient, one Observation per data category and the
// RiskAssessment. It fails only when a data section is entirely absent.
func (m *Mapper) Build(p risk.PatientRecord, result risk.Result) (Records, error) {
	if err := p.Validate(); err != nil {
		return Records{}, err
	}

	observations := []ClinicalObservation{
		m.BuildObservation(KindClinical, p.ID, p.Clinical),
		m.BuildObservation(KindMolecular, p.ID, p.Molecular),
		m.BuildObservation(KindImaging, p.ID, p.Imaging),
	}

	return Records{
		Patient:        BuildPatient(p),
		RiskAssessment: m.buildRiskAssessment(p, result, observations),
		Observations:   observations,
	}, nil
}

// BuildPatient maps identity only.
func BuildPatient(p risk.PatientRecord) PatientResource {
	return PatientResource{
		ID:     p.ID,
		Use:    fhirmodels.NameUseOfficial,
		Family: p.Name.Family,
		Given:  append([]string(nil), p.Name.Given...),
	}
}

// BuildObservation maps one data section with category-specific coding.
func (m *Mapper) BuildObservation(kind ObservationKind, patientID string, data risk.Section) ClinicalObservation {
	obs := ClinicalObservation{
		Kind:      kind,
		Status:    fhirmodels.ObservationStatusFinal,
		PatientID: patientID,
	}
	switch kind {
	case KindClinical:
		obs.ID = ObsClinicalID
		obs.Code = tumorSizeCode
		obs.Value.Quantity = &Quantity{Value: data.Number(risk.KeyTumorSize), Unit: fhirmodels.UnitCentimeter}
	case KindMolecular:
		obs.ID = ObsMolecularID
		obs.Code = molecularCode
		obs.Value.Quantity = &Quantity{Value: data.Number(risk.KeyVEGFLevel), Unit: fhirmodels.UnitPicogramsPerML}
	case KindImaging:
		obs.ID = ObsImagingID
		obs.Code = imagingCode
		obs.Value.Text = strPtr(strings.Join(m.imagingKeys(data), ", "))
	}
	return obs
}

func (m *Mapper) buildRiskAssessment(p risk.PatientRecord, result risk.Result, observations []ClinicalObservation) RiskAssessmentRecord {
	// An empty CodeableConcept is not valid FHIR, so no subtypes means no
	// subtype extension.
	var extensions []Extension
	if subtypes := strings.Join(result.SuspectedSubtypes, ", "); subtypes != "" {
		extensions = append(extensions, Extension{URL: ExtSuspectedSubtypes, Text: strPtr(subtypes)})
	}
	extensions = append(extensions, []Extension{
		{URL: ExtTumorSize, Quantity: &Quantity{Value: p.Clinical.Number(risk.KeyTumorSize), Unit: fhirmodels.UnitCentimeter}},
		{URL: ExtClinicalSymptoms, Text: strPtr(clinicalSymptomsLabel + strings.Join(p.Clinical.Keys(), ", "))},
		{URL: ExtImagingFindings, Text: strPtr(imagingFindingsLabel + strings.Join(m.imagingKeys(p.Imaging), ", "))},
	}...)

	var basis []string
	if m.opts.LegacyBasis {
		basis = append(basis, legacyBasis...)
	} else {
		for _, o := range observations {
			basis = append(basis, "Observation/"+o.ID)
		}
	}

	return RiskAssessmentRecord{
		ID:        RiskAssessmentID(p.ID),
		PatientID: p.ID,
		Status:    fhirmodels.RiskAssessmentStatusFinal,
		Code:      sarcomaRiskCode,
		Prediction: Prediction{
			Outcome:     result.Category,
			Probability: result.Probability(),
		},
		Extensions: extensions,
		Basis:      basis,
	}
}

func (m *Mapper) imagingKeys(data risk.Section) []string {
	if m.opts.PositiveFindingsOnly {
		return data.PositiveKeys()
	}
	return data.Keys()
}

// RiskAssessmentID is the deterministic id of a patient's assessment.
func RiskAssessmentID(patientID string) string {
	if patientID == "" {
		return "sarcoma-risk"
	}
	return "sarcoma-risk-" + patientID
}
