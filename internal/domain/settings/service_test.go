package settings

import (
	"context"
	"errors"
	"testing"
	"time"
)

type mockRepo struct {
	current *Settings
	getErr  error
}

func (m *mockRepo) Get(ctx context.Context) (*Settings, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.current, nil
}

func (m *mockRepo) Update(ctx context.Context, s *Settings) error {
	s.UpdatedAt = time.Now()
	m.current = s
	return nil
}

func TestUpdate_RequiresCurrency(t *testing.T) {
	svc := NewService(&mockRepo{})
	_, err := svc.Update(context.Background(), &Settings{}, "admin-1")
	if err == nil {
		t.Error("expected error for missing currency")
	}
}

func TestUpdate_RecordsUpdater(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo)

	got, err := svc.Update(context.Background(), &Settings{
		ClinicalCodingEnabled: true,
		Currency:              "INR",
	}, "admin-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.ClinicalCodingEnabled {
		t.Error("expected clinical coding enabled")
	}
	if got.UpdatedBy == nil || *got.UpdatedBy != "admin-1" {
		t.Errorf("expected updated_by admin-1, got %v", got.UpdatedBy)
	}
}

func TestClinicalCodingEnabled(t *testing.T) {
	repo := &mockRepo{current: &Settings{ClinicalCodingEnabled: true, Currency: "INR"}}
	svc := NewService(repo)

	enabled, err := svc.ClinicalCodingEnabled(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !enabled {
		t.Error("expected coding gate enabled")
	}
}

func TestClinicalCodingEnabled_UnreadableIsFatal(t *testing.T) {
	repo := &mockRepo{getErr: errors.New("connection refused")}
	svc := NewService(repo)

	if _, err := svc.ClinicalCodingEnabled(context.Background()); err == nil {
		t.Error("expected error when settings cannot be read")
	}
}
