package assessment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sarcrisk/sarcrisk/internal/domain/risk"
	"github.com/sarcrisk/sarcrisk/internal/platform/fhir"
)

// PatientSource authenticates a bearer token and fetches patient data from
// the upstream EHR.
type PatientSource interface {
	Authenticate(ctx context.Context, token string) error
	GetPatient(ctx context.Context, token, patientID string) (risk.PatientRecord, error)
}

// Recorder receives one observation per computed assessment.
type Recorder interface {
	ObserveAssessment(policy string, category risk.Category, score float64)
}

// Input is a caller-supplied assessment request.
type Input struct {
	Patient           risk.PatientRecord
	SuspectedSubtypes []string
	Policy            risk.Policy
}

// Outcome is the full result of one assessment.
type Outcome struct {
	Result            risk.Result
	RecommendedAction string
	Records           Records
}

// Service orchestrates scoring, mapping and the optional archive.
type Service struct {
	scorer          *risk.Scorer
	mapper          *Mapper
	source          PatientSource
	archive         ArchiveRepository
	recorder        Recorder
	defaultPolicy   risk.Policy
	defaultSubtypes []string
	logger          zerolog.Logger
	now             func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithArchive stores every produced RiskAssessment.
func WithArchive(repo ArchiveRepository) ServiceOption {
	return func(s *Service) { s.archive = repo }
}

// WithRecorder reports every assessment to r.
func WithRecorder(r Recorder) ServiceOption {
	return func(s *Service) { s.recorder = r }
}

// WithDefaultPolicy sets the policy used when an Input carries none.
func WithDefaultPolicy(p risk.Policy) ServiceOption {
	return func(s *Service) { s.defaultPolicy = p }
}

// WithDefaultSubtypes sets the subtypes used when a caller supplies none.
func WithDefaultSubtypes(subtypes []string) ServiceOption {
	return func(s *Service) { s.defaultSubtypes = append([]string(nil), subtypes...) }
}

func NewService(scorer *risk.Scorer, mapper *Mapper, source PatientSource, logger zerolog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		scorer:        scorer,
		mapper:        mapper,
		source:        source,
		defaultPolicy: risk.OrchestrationPolicy,
		logger:        logger,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ArchiveEnabled reports whether assessments are persisted.
func (s *Service) ArchiveEnabled() bool {
	return s.archive != nil
}

// Assess scores and maps caller-supplied patient data.
func (s *Service) Assess(ctx context.Context, in Input) (*Outcome, error) {
	if err := in.Patient.Validate(); err != nil {
		return nil, err
	}

	policy := in.Policy
	if policy.Name == "" {
		policy = s.defaultPolicy
	}
	subtypes := in.SuspectedSubtypes
	if len(subtypes) == 0 {
		subtypes = s.defaultSubtypes
	}

	result := s.scorer.ScoreRecord(in.Patient, policy).WithSubtypes(subtypes)
	records, err := s.mapper.Build(in.Patient, result)
	if err != nil {
		return nil, err
	}

	out := &Outcome{
		Result:            result,
		RecommendedAction: risk.RecommendedAction(result.Category),
		Records:           records,
	}

	if s.archive != nil {
		if err := s.archiveRecord(ctx, out); err != nil {
			return nil, err
		}
	}
	if s.recorder != nil {
		s.recorder.ObserveAssessment(result.Policy, result.Category, result.Score)
	}

	s.logger.Info().
		Str("patient_id", in.Patient.ID).
		Str("policy", result.Policy).
		Str("category", string(result.Category)).
		Float64("score", result.Score).
		Msg("sarcoma risk assessed")

	return out, nil
}

// LookupRisk authenticates token upstream, fetches the patient and assesses
// it under the default policy.
func (s *Service) LookupRisk(ctx context.Context, token, patientID string) (*Outcome, error) {
	if s.source == nil {
		return nil, fmt.Errorf("no patient source configured")
	}
	if err := s.source.Authenticate(ctx, token); err != nil {
		return nil, err
	}
	p, err := s.source.GetPatient(ctx, token, patientID)
	if err != nil {
		return nil, err
	}
	if p.ID == "" {
		p.ID = patientID
	}
	return s.Assess(ctx, Input{Patient: p})
}

func (s *Service) archiveRecord(ctx context.Context, out *Outcome) error {
	id := uuid.New()
	a := &ArchivedAssessment{
		ID:        id,
		FHIRID:    id.String(),
		PatientID: out.Records.Patient.ID,
		Policy:    out.Result.Policy,
		Category:  string(out.Result.Category),
		Score:     out.Result.Score,
		CreatedAt: s.now().UTC(),
	}
	resource, err := out.Records.SelfContained()
	if err != nil {
		return err
	}
	resource.ID = a.FHIRID
	resource.Meta = &fhir.Meta{VersionID: "1", LastUpdated: &a.CreatedAt}
	raw, err := json.Marshal(resource)
	if err != nil {
		return fmt.Errorf("encode archived assessment: %w", err)
	}
	a.Resource = raw
	if err := s.archive.Create(ctx, a); err != nil {
		return fmt.Errorf("archive assessment: %w", err)
	}
	return nil
}

// GetArchived returns one archived RiskAssessment.
func (s *Service) GetArchived(ctx context.Context, fhirID string) (*ArchivedAssessment, error) {
	if s.archive == nil {
		return nil, ErrArchiveDisabled
	}
	return s.archive.GetByFHIRID(ctx, fhirID)
}

// ListArchived pages through archived assessments, newest first.
func (s *Service) ListArchived(ctx context.Context, limit, offset int) ([]*ArchivedAssessment, int, error) {
	if s.archive == nil {
		return nil, 0, ErrArchiveDisabled
	}
	return s.archive.List(ctx, limit, offset)
}

// ListArchivedByPatient pages through one patient's archived assessments.
func (s *Service) ListArchivedByPatient(ctx context.Context, patientID string, limit, offset int) ([]*ArchivedAssessment, int, error) {
	if s.archive == nil {
		return nil, 0, ErrArchiveDisabled
	}
	return s.archive.ListByPatient(ctx, patientID, limit, offset)
}
