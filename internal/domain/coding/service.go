package coding

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

var validStatuses = map[string]bool{
	StatusAwaitingCoding: true, StatusInProgress: true,
	StatusApproved: true, StatusRejected: true,
}

// allowedTransitions maps each status to the statuses it may move to.
var allowedTransitions = map[string][]string{
	StatusAwaitingCoding: {StatusInProgress},
	StatusInProgress:     {StatusApproved, StatusRejected},
	StatusRejected:       {StatusInProgress},
}

func (s *Service) Create(ctx context.Context, r *Record) error {
	if r.VisitID == uuid.Nil {
		return fmt.Errorf("visit_id is required")
	}
	if r.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if r.Status == "" {
		r.Status = StatusAwaitingCoding
	}
	if !validStatuses[r.Status] {
		return fmt.Errorf("invalid coding status: %s", r.Status)
	}
	return s.repo.Create(ctx, r)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByVisit(ctx context.Context, visitID uuid.UUID) (*Record, error) {
	return s.repo.GetByVisit(ctx, visitID)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Record, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// UpdateStatus advances a record through the coding workflow. Approval
// records who approved and when.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, newStatus, userID string) (*Record, error) {
	if !validStatuses[newStatus] {
		return nil, fmt.Errorf("invalid coding status: %s", newStatus)
	}

	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !transitionAllowed(rec.Status, newStatus) {
		return nil, fmt.Errorf("cannot move coding record from %s to %s",
			StatusDisplay(rec.Status), StatusDisplay(newStatus))
	}

	rec.Status = newStatus
	switch newStatus {
	case StatusInProgress:
		rec.CodedBy = &userID
	case StatusApproved:
		now := s.now()
		rec.ApprovedBy = &userID
		rec.ApprovedAt = &now
	}

	if err := s.repo.Update(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// UpdateCodes replaces the diagnosis/procedure codes on a record that has not
// been approved yet.
func (s *Service) UpdateCodes(ctx context.Context, id uuid.UUID, primary *string, diagnoses, procedures []string) (*Record, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status == StatusApproved {
		return nil, fmt.Errorf("cannot modify codes on an approved record")
	}

	rec.PrimaryDiagnosis = primary
	rec.DiagnosisCodes = diagnoses
	rec.ProcedureCodes = procedures
	if err := s.repo.Update(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func transitionAllowed(from, to string) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
