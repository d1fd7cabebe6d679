package assessment

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sarcrisk/sarcrisk/internal/platform/fhir"
	"github.com/sarcrisk/sarcrisk/pkg/fhirmodels"
)

// FHIR rendering. The mapper above builds plain records; only this file
// knows the FHIR R4 JSON shapes.

func (c Code) toFHIR() *fhir.CodeableConcept {
	return &fhir.CodeableConcept{
		Coding: []fhir.Coding{{System: c.System, Code: c.Code, Display: c.Display}},
	}
}

func (q *Quantity) toFHIR() *fhir.Quantity {
	if q == nil {
		return nil
	}
	return fhir.NewQuantity(q.Value, q.Unit)
}

func patientRef(id string) fhir.Reference {
	return fhir.Reference{Reference: fhir.FormatReference("Patient", id)}
}

func (p PatientResource) ToFHIR() *fhir.Patient {
	return &fhir.Patient{
		ResourceType: "Patient",
		ID:           p.ID,
		Name: []fhir.HumanName{{
			Use:    p.Use,
			Family: p.Family,
			Given:  p.Given,
		}},
	}
}

var observationCategory = map[ObservationKind]string{
	KindClinical:  fhirmodels.ObsCategoryExam,
	KindMolecular: fhirmodels.ObsCategoryLaboratory,
	KindImaging:   fhirmodels.ObsCategoryImaging,
}

func (o ClinicalObservation) ToFHIR() *fhir.Observation {
	ref := patientRef(o.PatientID)
	out := &fhir.Observation{
		ResourceType: "Observation",
		ID:           o.ID,
		Status:       o.Status,
		Category: []fhir.CodeableConcept{{
			Coding: []fhir.Coding{{System: fhirmodels.SystemObservationCategory, Code: observationCategory[o.Kind]}},
		}},
		Code:    *o.Code.toFHIR(),
		Subject: &ref,
	}
	if o.Value.Quantity != nil {
		out.ValueQuantity = o.Value.Quantity.toFHIR()
	}
	if o.Value.Text != nil {
		out.ValueCodeableConcept = &fhir.CodeableConcept{Text: *o.Value.Text}
	}
	return out
}

func (r RiskAssessmentRecord) ToFHIR() *fhir.RiskAssessment {
	probability := r.Prediction.Probability
	out := &fhir.RiskAssessment{
		ResourceType: "RiskAssessment",
		ID:           r.ID,
		Status:       r.Status,
		Code:         r.Code.toFHIR(),
		Subject:      patientRef(r.PatientID),
		Prediction: []fhir.RiskAssessmentPrediction{{
			Outcome:            &fhir.CodeableConcept{Text: string(r.Prediction.Outcome)},
			ProbabilityDecimal: &probability,
		}},
	}
	for _, e := range r.Extensions {
		ext := fhir.Extension{URL: e.URL, ValueQuantity: e.Quantity.toFHIR()}
		if e.Text != nil {
			ext.ValueCodeableConcept = &fhir.CodeableConcept{Text: *e.Text}
		}
		out.Extension = append(out.Extension, ext)
	}
	for _, b := range r.Basis {
		out.Basis = append(out.Basis, fhir.Reference{Reference: b})
	}
	return out
}

// Bundle renders all records as a FHIR collection Bundle in the order
// Patient, Observations, RiskAssessment. base is the FHIR service base for
// entry fullUrls; empty gives urn:uuid entries.
func (r Records) Bundle(base string) (*fhir.Bundle, error) {
	resources := []interface{}{r.Patient.ToFHIR()}
	for _, o := range r.Observations {
		resources = append(resources, o.ToFHIR())
	}
	resources = append(resources, r.RiskAssessment.ToFHIR())
	return fhir.NewCollectionBundle(r.RiskAssessment.ID, base, resources...)
}

// SelfContained renders the RiskAssessment with its Observations embedded
// as contained resources and basis pointing at them ("#clinical-data").
// Basis references to observations that were not built are dropped. Used
// where the Observations are not stored alongside, such as the archive.
func (r Records) SelfContained() (*fhir.RiskAssessment, error) {
	out := r.RiskAssessment.ToFHIR()
	built := make(map[string]bool, len(r.Observations))
	for _, o := range r.Observations {
		raw, err := json.Marshal(o.ToFHIR())
		if err != nil {
			return nil, fmt.Errorf("encode contained %s: %w", o.ID, err)
		}
		out.Contained = append(out.Contained, raw)
		built[fhir.FormatReference("Observation", o.ID)] = true
	}

	var basis []fhir.Reference
	for _, b := range out.Basis {
		if !built[b.Reference] {
			continue
		}
		basis = append(basis, fhir.Reference{Reference: "#" + strings.TrimPrefix(b.Reference, "Observation/")})
	}
	out.Basis = basis
	return out, nil
}
