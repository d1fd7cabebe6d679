package risk

import "fmt"

// Weights are the contributions of each finding to the combined score. All
// weights must be non-negative so the score stays monotonic in its inputs.
type Weights struct {
	// Molecular
	Mutation      float64 // per present CDKN2A or TP53 mutation
	VEGFBaseline  float64 // VEGF at or below this contributes nothing
	VEGFDivisor   float64
	MolecularPart float64 // share of the molecular sub-score in the total

	// Clinical
	Pain           float64
	Swelling       float64
	Fever          float64
	TumorSizePerCM float64

	// Imaging
	MRI  float64
	PET  float64
	CT   float64
	XRay float64
}

// DefaultWeights returns the reference weighting.
func DefaultWeights() Weights {
	return Weights{
		Mutation:       0.5,
		VEGFBaseline:   100,
		VEGFDivisor:    100,
		MolecularPart:  0.5,
		Pain:           0.1,
		Swelling:       0.1,
		TumorSizePerCM: 0.02,
		MRI:            0.1,
		PET:            0.1,
	}
}

// Validate rejects weightings that would break monotonicity.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"mutation": w.Mutation, "vegf_divisor": w.VEGFDivisor, "molecular_part": w.MolecularPart,
		"pain": w.Pain, "swelling": w.Swelling, "fever": w.Fever, "tumor_size_per_cm": w.TumorSizePerCM,
		"mri": w.MRI, "pet": w.PET, "ct": w.CT, "x_ray": w.XRay,
	} {
		if v < 0 {
			return fmt.Errorf("weight %s must be non-negative, got %v", name, v)
		}
	}
	if w.VEGFDivisor == 0 {
		return fmt.Errorf("weight vegf_divisor must be positive")
	}
	return nil
}

// Scorer computes sarcoma risk from patient findings. It holds no mutable
// state and is safe for concurrent use.
type Scorer struct {
	w Weights
}

// NewScorer returns a Scorer using w.
func NewScorer(w Weights) (*Scorer, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{w: w}, nil
}

// DefaultScorer returns a Scorer with DefaultWeights.
func DefaultScorer() *Scorer {
	return &Scorer{w: DefaultWeights()}
}

// MolecularScore sums mutation increments with the VEGF excess over its
// baseline.
func (s *Scorer) MolecularScore(molecular Section) float64 {
	score := 0.0
	if molecular.Flag(KeyCDKN2AMutation) {
		score += s.w.Mutation
	}
	if molecular.Flag(KeyTP53Mutation) {
		score += s.w.Mutation
	}
	if excess := molecular.Number(KeyVEGFLevel) - s.w.VEGFBaseline; excess > 0 {
		score += excess / s.w.VEGFDivisor
	}
	return score
}

// ClinicalScore weights symptoms and tumor size in centimeters.
func (s *Scorer) ClinicalScore(clinical Section) float64 {
	score := 0.0
	if clinical.Flag(KeyPain) {
		score += s.w.Pain
	}
	if clinical.Flag(KeySwelling) {
		score += s.w.Swelling
	}
	if clinical.Flag(KeyFever) {
		score += s.w.Fever
	}
	if size := clinical.Number(KeyTumorSize); size > 0 {
		score += size * s.w.TumorSizePerCM
	}
	return score
}

// ImagingScore adds a flat increment per abnormal imaging finding.
func (s *Scorer) ImagingScore(imaging Section) float64 {
	score := 0.0
	if imaging.Flag(KeyMRIAbnormalities) {
		score += s.w.MRI
	}
	if imaging.Flag(KeyPETScanHighActivity) {
		score += s.w.PET
	}
	if imaging.Flag(KeyCTScanAbnormalities) {
		score += s.w.CT
	}
	if imaging.Flag(KeyXRayFindings) {
		score += s.w.XRay
	}
	return score
}

// Total combines the three sub-scores on the 0-1 scale.
func (s *Scorer) Total(molecular, clinical, imaging Section) float64 {
	return s.w.MolecularPart*s.MolecularScore(molecular) +
		s.ClinicalScore(clinical) +
		s.ImagingScore(imaging)
}

// Score computes the total and categorizes it under policy. Absent sections
// and missing keys contribute zero; Score never fails.
func (s *Scorer) Score(molecular, clinical, imaging Section, policy Policy) Result {
	total := s.Total(molecular, clinical, imaging)
	return Result{
		Score:    total,
		Category: policy.Categorize(total),
		Policy:   policy.Name,
	}
}

// ScoreRecord is Score over a PatientRecord's sections.
func (s *Scorer) ScoreRecord(p PatientRecord, policy Policy) Result {
	return s.Score(p.Molecular, p.Clinical, p.Imaging, policy)
}
