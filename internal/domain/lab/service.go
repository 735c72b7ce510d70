package lab

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

func (s *Service) Create(ctx context.Context, o *Order) error {
	if o.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if o.TestName == "" {
		return fmt.Errorf("test_name is required")
	}
	if o.TestCode == "" {
		return fmt.Errorf("test_code is required")
	}
	o.Status = StatusOrdered
	return s.repo.Create(ctx, o)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Order, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Order, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// Complete records the result and closes the order.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, result string) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusOrdered {
		return nil, fmt.Errorf("cannot complete a %s lab order", o.Status)
	}
	now := s.now()
	o.Status = StatusCompleted
	o.CompletedAt = &now
	if result != "" {
		o.Result = &result
	}
	if err := s.repo.Update(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status == StatusCompleted {
		return nil, fmt.Errorf("cannot cancel a completed lab order")
	}
	o.Status = StatusCancelled
	if err := s.repo.Update(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}
