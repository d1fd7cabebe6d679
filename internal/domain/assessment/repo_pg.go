package assessment

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type archiveRepoPG struct{ db queryable }

func NewArchiveRepoPG(pool *pgxpool.Pool) ArchiveRepository { return &archiveRepoPG{db: pool} }

const archiveCols = `id, fhir_id, patient_id, policy, category, score, resource, created_at`

func scanArchived(row pgx.Row) (*ArchivedAssessment, error) {
	var a ArchivedAssessment
	err := row.Scan(&a.ID, &a.FHIRID, &a.PatientID, &a.Policy, &a.Category, &a.Score, &a.Resource, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &a, err
}

func (r *archiveRepoPG) Create(ctx context.Context, a *ArchivedAssessment) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO sarcoma_risk_assessment (id, fhir_id, patient_id, policy, category, score, resource, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		a.ID, a.FHIRID, a.PatientID, a.Policy, a.Category, a.Score, []byte(a.Resource), a.CreatedAt)
	return err
}

func (r *archiveRepoPG) GetByFHIRID(ctx context.Context, fhirID string) (*ArchivedAssessment, error) {
	return scanArchived(r.db.QueryRow(ctx, `SELECT `+archiveCols+` FROM sarcoma_risk_assessment WHERE fhir_id = $1`, fhirID))
}

func (r *archiveRepoPG) List(ctx context.Context, limit, offset int) ([]*ArchivedAssessment, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM sarcoma_risk_assessment`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `SELECT `+archiveCols+` FROM sarcoma_risk_assessment ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectArchived(rows)
	return items, total, err
}

func (r *archiveRepoPG) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*ArchivedAssessment, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM sarcoma_risk_assessment WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `SELECT `+archiveCols+` FROM sarcoma_risk_assessment WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectArchived(rows)
	return items, total, err
}

func collectArchived(rows pgx.Rows) ([]*ArchivedAssessment, error) {
	defer rows.Close()
	var items []*ArchivedAssessment
	for rows.Next() {
		a, err := scanArchived(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}
