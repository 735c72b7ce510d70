package coding

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
)

type mockRepo struct {
	records map[uuid.UUID]*Record
}

func newMockRepo() *mockRepo {
	return &mockRepo{records: make(map[uuid.UUID]*Record)}
}

func (m *mockRepo) Create(ctx context.Context, r *Record) error {
	r.ID = uuid.New()
	m.records[r.ID] = r
	return nil
}

func (m *mockRepo) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	r, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("no rows in result set")
	}
	cp := *r
	return &cp, nil
}

func (m *mockRepo) GetByVisit(ctx context.Context, visitID uuid.UUID) (*Record, error) {
	for _, r := range m.records {
		if r.VisitID == visitID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("no rows in result set")
}

func (m *mockRepo) Update(ctx context.Context, r *Record) error {
	m.records[r.ID] = r
	return nil
}

func (m *mockRepo) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Record, int, error) {
	var out []*Record
	for _, r := range m.records {
		if r.PatientID == patientID {
			out = append(out, r)
		}
	}
	return out, len(out), nil
}

func newTestService() (*Service, *mockRepo) {
	repo := newMockRepo()
	svc := NewService(repo)
	svc.now = func() time.Time { return time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC) }
	return svc, repo
}

func createRecord(t *testing.T, svc *Service, status string) *Record {
	t.Helper()
	rec := &Record{VisitID: uuid.New(), PatientID: uuid.New(), Status: status}
	if err := svc.Create(context.Background(), rec); err != nil {
		t.Fatalf("create record: %v", err)
	}
	return rec
}

func TestCreate_DefaultsStatus(t *testing.T) {
	svc, _ := newTestService()
	rec := &Record{VisitID: uuid.New(), PatientID: uuid.New()}
	if err := svc.Create(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Status != StatusAwaitingCoding {
		t.Errorf("expected default status %s, got %s", StatusAwaitingCoding, rec.Status)
	}
}

func TestCreate_RequiresVisit(t *testing.T) {
	svc, _ := newTestService()
	err := svc.Create(context.Background(), &Record{PatientID: uuid.New()})
	if err == nil {
		t.Error("expected error for missing visit_id")
	}
}

func TestUpdateStatus_WorkflowPath(t *testing.T) {
	svc, _ := newTestService()
	rec := createRecord(t, svc, StatusAwaitingCoding)

	got, err := svc.UpdateStatus(context.Background(), rec.ID, StatusInProgress, "coder-1")
	if err != nil {
		t.Fatalf("awaiting-coding -> in-progress: %v", err)
	}
	if got.CodedBy == nil || *got.CodedBy != "coder-1" {
		t.Errorf("expected coded_by coder-1, got %v", got.CodedBy)
	}

	got, err = svc.UpdateStatus(context.Background(), rec.ID, StatusApproved, "coder-2")
	if err != nil {
		t.Fatalf("in-progress -> approved: %v", err)
	}
	if got.ApprovedBy == nil || *got.ApprovedBy != "coder-2" {
		t.Errorf("expected approved_by coder-2, got %v", got.ApprovedBy)
	}
	if got.ApprovedAt == nil {
		t.Error("expected approved_at to be set")
	}
}

func TestUpdateStatus_IllegalJump(t *testing.T) {
	svc, _ := newTestService()
	rec := createRecord(t, svc, StatusAwaitingCoding)

	if _, err := svc.UpdateStatus(context.Background(), rec.ID, StatusApproved, "coder-1"); err == nil {
		t.Error("expected error jumping awaiting-coding -> approved")
	}
}

func TestUpdateStatus_RejectedCanResume(t *testing.T) {
	svc, repo := newTestService()
	rec := createRecord(t, svc, StatusAwaitingCoding)
	repo.records[rec.ID].Status = StatusRejected

	if _, err := svc.UpdateStatus(context.Background(), rec.ID, StatusInProgress, "coder-1"); err != nil {
		t.Errorf("rejected -> in-progress should be allowed: %v", err)
	}
}

func TestUpdateCodes_BlockedOnApproved(t *testing.T) {
	svc, repo := newTestService()
	rec := createRecord(t, svc, StatusAwaitingCoding)
	repo.records[rec.ID].Status = StatusApproved

	_, err := svc.UpdateCodes(context.Background(), rec.ID, nil, []string{"A00"}, nil)
	if err == nil {
		t.Error("expected error modifying codes on an approved record")
	}
}

func TestStatusDisplay(t *testing.T) {
	tests := []struct{ in, want string }{
		{"in-progress", "IN PROGRESS"},
		{"awaiting-coding", "AWAITING CODING"},
		{"approved", "APPROVED"},
	}
	for _, tt := range tests {
		if got := StatusDisplay(tt.in); got != tt.want {
			t.Errorf("StatusDisplay(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
