package admission

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type mockRepo struct {
	admissions map[uuid.UUID]*Admission
}

func newMockRepo() *mockRepo {
	return &mockRepo{admissions: make(map[uuid.UUID]*Admission)}
}

func (m *mockRepo) Create(ctx context.Context, a *Admission) error {
	a.ID = uuid.New()
	m.admissions[a.ID] = a
	return nil
}

func (m *mockRepo) GetByID(ctx context.Context, id uuid.UUID) (*Admission, error) {
	a, ok := m.admissions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (m *mockRepo) Update(ctx context.Context, a *Admission) error {
	m.admissions[a.ID] = a
	return nil
}

func (m *mockRepo) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Admission, int, error) {
	var out []*Admission
	for _, a := range m.admissions {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	return out, len(out), nil
}

func newTestService() (*Service, *mockRepo) {
	repo := newMockRepo()
	svc := NewService(repo)
	svc.now = func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC) }
	return svc, repo
}

func TestAdmit_Defaults(t *testing.T) {
	svc, _ := newTestService()
	a := &Admission{PatientID: uuid.New(), Ward: "general-ward", AdmittedBy: "dr-1"}
	if err := svc.Admit(context.Background(), a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Status != StatusAdmitted {
		t.Errorf("expected status admitted, got %s", a.Status)
	}
	if a.AdmittedAt.IsZero() {
		t.Error("expected admitted_at to be set")
	}
}

func TestAdmit_RequiresWard(t *testing.T) {
	svc, _ := newTestService()
	if err := svc.Admit(context.Background(), &Admission{PatientID: uuid.New()}); err == nil {
		t.Error("expected error for missing ward")
	}
}

func TestDischarge(t *testing.T) {
	svc, _ := newTestService()
	a := &Admission{PatientID: uuid.New(), Ward: "icu", AdmittedBy: "dr-1"}
	if err := svc.Admit(context.Background(), a); err != nil {
		t.Fatalf("admit: %v", err)
	}

	got, err := svc.Discharge(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("discharge: %v", err)
	}
	if got.Status != StatusDischarged || got.DischargedAt == nil {
		t.Errorf("expected discharged with timestamp, got %s/%v", got.Status, got.DischargedAt)
	}

	if _, err := svc.Discharge(context.Background(), a.ID); err == nil {
		t.Error("expected error discharging twice")
	}
}

func TestDays(t *testing.T) {
	admitted := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 13, 9, 0, 0, 0, time.UTC)

	a := &Admission{AdmittedAt: admitted}
	if got := a.Days(now); got != 3 {
		t.Errorf("expected 3 days for an open stay, got %d", got)
	}

	discharged := admitted.Add(2 * time.Hour)
	a.DischargedAt = &discharged
	if got := a.Days(now); got != 1 {
		t.Errorf("same-day stay should bill 1 day, got %d", got)
	}
}
