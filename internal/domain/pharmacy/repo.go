package pharmacy

import (
	"context"

	"github.com/google/uuid"
)

// BatchRepository persists inventory batches. DecrementBatch is guarded both
// by the version column and by a quantity floor, so concurrent dispenses can
// never drive stock negative.
type BatchRepository interface {
	Create(ctx context.Context, b *InventoryBatch) error
	GetByID(ctx context.Context, id uuid.UUID) (*InventoryBatch, error)
	Update(ctx context.Context, b *InventoryBatch) error
	ListByMedicine(ctx context.Context, medicineID uuid.UUID) ([]*InventoryBatch, error)
	List(ctx context.Context, status string, limit, offset int) ([]*InventoryBatch, int, error)
	DecrementBatch(ctx context.Context, id uuid.UUID, quantity, version int) error
}

type PrescriptionRepository interface {
	Create(ctx context.Context, p *Prescription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
	Update(ctx context.Context, p *Prescription) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error)
}

type DispenseRepository interface {
	Create(ctx context.Context, d *Dispense) error
	GetByID(ctx context.Context, id uuid.UUID) (*Dispense, error)
	GetByNumber(ctx context.Context, dispenseNumber string) (*Dispense, error)
	ListByPrescription(ctx context.Context, prescriptionID uuid.UUID) ([]*Dispense, error)
	// NextSequence atomically increments and returns the dispense number
	// counter for the given day.
	NextSequence(ctx context.Context, year, month, day int) (int64, error)
}
