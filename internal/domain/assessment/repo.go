package assessment

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("assessment not found")
	ErrArchiveDisabled = errors.New("assessment archive is not configured")
)

// ArchivedAssessment is a stored RiskAssessment. Resource holds the FHIR
// JSON exactly as it was rendered at archive time.
type ArchivedAssessment struct {
	ID        uuid.UUID       `db:"id"`
	FHIRID    string          `db:"fhir_id"`
	PatientID string          `db:"patient_id"`
	Policy    string          `db:"policy"`
	Category  string          `db:"category"`
	Score     float64         `db:"score"`
	Resource  json.RawMessage `db:"resource"`
	CreatedAt time.Time       `db:"created_at"`
}

type ArchiveRepository interface {
	Create(ctx context.Context, a *ArchivedAssessment) error
	GetByFHIRID(ctx context.Context, fhirID string) (*ArchivedAssessment, error)
	List(ctx context.Context, limit, offset int) ([]*ArchivedAssessment, int, error)
	ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*ArchivedAssessment, int, error)
}
