package tariff

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, t *Tariff) error
	GetByID(ctx context.Context, id uuid.UUID) (*Tariff, error)
	Update(ctx context.Context, t *Tariff) error
	List(ctx context.Context, serviceType string, limit, offset int) ([]*Tariff, int, error)
	// FindActive returns the current active tariff for (serviceType, category)
	// whose effective window covers now, preferring the most recent one.
	FindActive(ctx context.Context, serviceType, category string) (*Tariff, error)
}
