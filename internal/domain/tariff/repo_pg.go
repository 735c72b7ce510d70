package tariff

import (
	"context"
	"fmt"

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

const tariffCols = `id, service_type, category, description, rate, active,
	effective_from, effective_to, created_at, updated_at`

func (r *repoPG) scanTariff(row pgx.Row) (*Tariff, error) {
	var t Tariff
	err := row.Scan(&t.ID, &t.ServiceType, &t.Category, &t.Description, &t.Rate, &t.Active,
		&t.EffectiveFrom, &t.EffectiveTo, &t.CreatedAt, &t.UpdatedAt)
	return &t, err
}

func (r *repoPG) Create(ctx context.Context, t *Tariff) error {
	t.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO tariffs (id, service_type, category, description, rate, active,
			effective_from, effective_to)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		t.ID, t.ServiceType, t.Category, t.Description, t.Rate, t.Active,
		t.EffectiveFrom, t.EffectiveTo)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Tariff, error) {
	return r.scanTariff(r.conn(ctx).QueryRow(ctx,
		`SELECT `+tariffCols+` FROM tariffs WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, t *Tariff) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE tariffs SET service_type=$2, category=$3, description=$4, rate=$5,
			active=$6, effective_from=$7, effective_to=$8, updated_at=NOW()
		WHERE id = $1`,
		t.ID, t.ServiceType, t.Category, t.Description, t.Rate,
		t.Active, t.EffectiveFrom, t.EffectiveTo)
	return err
}

func (r *repoPG) List(ctx context.Context, serviceType string, limit, offset int) ([]*Tariff, int, error) {
	where := ``
	args := []interface{}{}
	if serviceType != "" {
		where = ` WHERE service_type = $1`
		args = append(args, serviceType)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM tariffs`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT `+tariffCols+` FROM tariffs`+where+
		` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, n+1, n+2)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Tariff
	for rows.Next() {
		t, err := r.scanTariff(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	return items, total, nil
}

func (r *repoPG) FindActive(ctx context.Context, serviceType, category string) (*Tariff, error) {
	return r.scanTariff(r.conn(ctx).QueryRow(ctx, `
		SELECT `+tariffCols+` FROM tariffs
		WHERE service_type = $1 AND category = $2 AND active = TRUE
			AND effective_from <= NOW()
			AND (effective_to IS NULL OR effective_to > NOW())
		ORDER BY effective_from DESC LIMIT 1`, serviceType, category))
}
