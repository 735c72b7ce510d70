package coding

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/his/his/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const recordCols = `id, visit_id, patient_id, status, primary_diagnosis,
	diagnosis_codes, procedure_codes, coded_by, approved_by, approved_at,
	notes, created_at, updated_at`

func (r *repoPG) scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.VisitID, &rec.PatientID, &rec.Status, &rec.PrimaryDiagnosis,
		&rec.DiagnosisCodes, &rec.ProcedureCodes, &rec.CodedBy, &rec.ApprovedBy, &rec.ApprovedAt,
		&rec.Notes, &rec.CreatedAt, &rec.UpdatedAt)
	return &rec, err
}

func (r *repoPG) Create(ctx context.Context, rec *Record) error {
	rec.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO clinical_coding_records (id, visit_id, patient_id, status,
			primary_diagnosis, diagnosis_codes, procedure_codes, coded_by, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		rec.ID, rec.VisitID, rec.PatientID, rec.Status,
		rec.PrimaryDiagnosis, rec.DiagnosisCodes, rec.ProcedureCodes, rec.CodedBy, rec.Notes)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	return r.scanRecord(r.conn(ctx).QueryRow(ctx,
		`SELECT `+recordCols+` FROM clinical_coding_records WHERE id = $1`, id))
}

func (r *repoPG) GetByVisit(ctx context.Context, visitID uuid.UUID) (*Record, error) {
	return r.scanRecord(r.conn(ctx).QueryRow(ctx,
		`SELECT `+recordCols+` FROM clinical_coding_records WHERE visit_id = $1`, visitID))
}

func (r *repoPG) Update(ctx context.Context, rec *Record) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE clinical_coding_records SET status=$2, primary_diagnosis=$3,
			diagnosis_codes=$4, procedure_codes=$5, coded_by=$6,
			approved_by=$7, approved_at=$8, notes=$9, updated_at=NOW()
		WHERE id = $1`,
		rec.ID, rec.Status, rec.PrimaryDiagnosis,
		rec.DiagnosisCodes, rec.ProcedureCodes, rec.CodedBy,
		rec.ApprovedBy, rec.ApprovedAt, rec.Notes)
	return err
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Record, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM clinical_coding_records WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+recordCols+` FROM clinical_coding_records WHERE patient_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Record
	for rows.Next() {
		rec, err := r.scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rec)
	}
	return items, total, nil
}
