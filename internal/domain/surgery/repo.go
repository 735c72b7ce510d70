package surgery

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, c *Case) error
	GetByID(ctx context.Context, id uuid.UUID) (*Case, error)
	Update(ctx context.Context, c *Case) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Case, int, error)
}
