package admission

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

func (s *Service) Admit(ctx context.Context, a *Admission) error {
	if a.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if a.Ward == "" {
		return fmt.Errorf("ward is required")
	}
	if a.AdmittedAt.IsZero() {
		a.AdmittedAt = s.now()
	}
	a.Status = StatusAdmitted
	return s.repo.Create(ctx, a)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Admission, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Admission, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) Discharge(ctx context.Context, id uuid.UUID) (*Admission, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status == StatusDischarged {
		return nil, fmt.Errorf("admission is already discharged")
	}
	now := s.now()
	a.Status = StatusDischarged
	a.DischargedAt = &now
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}
