package tariff

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, t *Tariff) error {
	if t.ServiceType == "" {
		return fmt.Errorf("service_type is required")
	}
	if t.Category == "" {
		return fmt.Errorf("category is required")
	}
	if t.Rate <= 0 {
		return fmt.Errorf("rate must be positive")
	}
	if !t.EffectiveFrom.IsZero() && t.EffectiveTo != nil && !t.EffectiveTo.After(t.EffectiveFrom) {
		return fmt.Errorf("effective_to must be after effective_from")
	}
	return s.repo.Create(ctx, t)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Tariff, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Update(ctx context.Context, t *Tariff) error {
	if t.Rate <= 0 {
		return fmt.Errorf("rate must be positive")
	}
	return s.repo.Update(ctx, t)
}

// Deactivate retires a tariff without deleting its pricing history.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) (*Tariff, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Active = false
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) List(ctx context.Context, serviceType string, limit, offset int) ([]*Tariff, int, error) {
	return s.repo.List(ctx, serviceType, limit, offset)
}

// FindActiveRate resolves the current rate for (serviceType, category).
// A missing tariff is not an error: the bool reports whether one was found
// so callers can decide to skip the charge.
func (s *Service) FindActiveRate(ctx context.Context, serviceType, category string) (float64, bool, error) {
	t, err := s.repo.FindActive(ctx, serviceType, category)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return t.Rate, true, nil
}
