package fhirmodels

// Common FHIR value set constants used across the application.

// Coding systems.
const (
	SystemSNOMED              = "http://snomed.info/sct"
	SystemUCUM                = "http://unitsofmeasure.org"
	SystemObservationCategory = "http://terminology.hl7.org/CodeSystem/observation-category"
)

// ObservationStatus values per FHIR R4.
const (
	ObservationStatusRegistered  = "registered"
	ObservationStatusPreliminary = "preliminary"
	ObservationStatusFinal       = "final"
	ObservationStatusAmended     = "amended"
)

// RiskAssessmentStatus values per FHIR R4 (ObservationStatus subset).
const (
	RiskAssessmentStatusRegistered  = "registered"
	RiskAssessmentStatusPreliminary = "preliminary"
	RiskAssessmentStatusFinal       = "final"
)

// ObservationCategory codes.
const (
	ObsCategoryLaboratory = "laboratory"
	ObsCategoryImaging    = "imaging"
	ObsCategoryExam       = "exam"
)

// NameUse codes.
const (
	NameUseOfficial = "official"
	NameUseUsual    = "usual"
)

// BundleType codes.
const (
	BundleTypeCollection = "collection"
	BundleTypeSearchset  = "searchset"
)

// Units used by sarcoma risk observations.
const (
	UnitCentimeter     = "cm"
	UnitPicogramsPerML = "pg/mL"
)
