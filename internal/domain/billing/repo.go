package billing

import (
	"context"

	"github.com/google/uuid"
)

// BillRepository persists bills with their line items. Update performs an
// optimistic-concurrency write: it only applies when the stored version
// matches b.Version, returns ErrVersionConflict otherwise, and bumps the
// version on success.
type BillRepository interface {
	Create(ctx context.Context, b *Bill) error
	GetByID(ctx context.Context, id uuid.UUID) (*Bill, error)
	GetByNumber(ctx context.Context, billNumber string) (*Bill, error)
	Update(ctx context.Context, b *Bill) error
	GetLatestDraftByPatient(ctx context.Context, patientID uuid.UUID) (*Bill, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Bill, int, error)
	// NextSequence atomically increments and returns the bill number counter
	// for the given year/month.
	NextSequence(ctx context.Context, year, month int) (int64, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, p *Payment) error
	ListByBill(ctx context.Context, billID uuid.UUID) ([]*Payment, error)
}

type AuditRepository interface {
	Append(ctx context.Context, e *AuditEntry) error
	ListByBill(ctx context.Context, billID uuid.UUID, limit, offset int) ([]*AuditEntry, int, error)
}
