package surgery

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

func (s *Service) Schedule(ctx context.Context, c *Case) error {
	if c.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if c.ProcedureName == "" {
		return fmt.Errorf("procedure_name is required")
	}
	if c.Category == "" {
		return fmt.Errorf("category is required")
	}
	if c.Surgeon == "" {
		return fmt.Errorf("surgeon is required")
	}
	if c.ScheduledAt.IsZero() {
		c.ScheduledAt = s.now()
	}
	c.Status = StatusScheduled
	return s.repo.Create(ctx, c)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Case, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Case, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// Complete closes a scheduled case, recording when it finished and how long
// theatre time was used.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, durationMins int) (*Case, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != StatusScheduled {
		return nil, fmt.Errorf("cannot complete a %s surgical case", c.Status)
	}
	now := s.now()
	c.Status = StatusCompleted
	c.CompletedAt = &now
	if durationMins > 0 {
		c.DurationMins = &durationMins
	}
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Case, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status == StatusCompleted {
		return nil, fmt.Errorf("cannot cancel a completed surgical case")
	}
	c.Status = StatusCancelled
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}
