package surgery

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

const caseCols = `id, patient_id, visit_id, procedure_name, category, surgeon,
	theatre, status, scheduled_at, completed_at, duration_mins, created_at, updated_at`

func (r *repoPG) scanCase(row pgx.Row) (*Case, error) {
	var c Case
	err := row.Scan(&c.ID, &c.PatientID, &c.VisitID, &c.ProcedureName, &c.Category, &c.Surgeon,
		&c.Theatre, &c.Status, &c.ScheduledAt, &c.CompletedAt, &c.DurationMins, &c.CreatedAt, &c.UpdatedAt)
	return &c, err
}

func (r *repoPG) Create(ctx context.Context, c *Case) error {
	c.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO surgical_cases (id, patient_id, visit_id, procedure_name,
			category, surgeon, theatre, status, scheduled_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		c.ID, c.PatientID, c.VisitID, c.ProcedureName,
		c.Category, c.Surgeon, c.Theatre, c.Status, c.ScheduledAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Case, error) {
	return r.scanCase(r.conn(ctx).QueryRow(ctx,
		`SELECT `+caseCols+` FROM surgical_cases WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, c *Case) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE surgical_cases SET procedure_name=$2, category=$3, surgeon=$4,
			theatre=$5, status=$6, scheduled_at=$7, completed_at=$8,
			duration_mins=$9, updated_at=NOW()
		WHERE id = $1`,
		c.ID, c.ProcedureName, c.Category, c.Surgeon,
		c.Theatre, c.Status, c.ScheduledAt, c.CompletedAt, c.DurationMins)
	return err
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Case, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM surgical_cases WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+caseCols+` FROM surgical_cases WHERE patient_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Case
	for rows.Next() {
		c, err := r.scanCase(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, nil
}
