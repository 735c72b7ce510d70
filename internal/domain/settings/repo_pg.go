package settings

import (
	"context"

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

func (r *repoPG) Get(ctx context.Context) (*Settings, error) {
	var s Settings
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT clinical_coding_enabled, currency, updated_by, updated_at
		FROM system_settings WHERE id = 1`).
		Scan(&s.ClinicalCodingEnabled, &s.Currency, &s.UpdatedBy, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repoPG) Update(ctx context.Context, s *Settings) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO system_settings (id, clinical_coding_enabled, currency, updated_by, updated_at)
		VALUES (1, $1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET
			clinical_coding_enabled = EXCLUDED.clinical_coding_enabled,
			currency = EXCLUDED.currency,
			updated_by = EXCLUDED.updated_by,
			updated_at = NOW()`,
		s.ClinicalCodingEnabled, s.Currency, s.UpdatedBy)
	return err
}
