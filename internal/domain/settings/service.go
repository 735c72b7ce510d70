package settings

import (
	"context"
	"fmt"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context) (*Settings, error) {
	return s.repo.Get(ctx)
}

func (s *Service) Update(ctx context.Context, in *Settings, updatedBy string) (*Settings, error) {
	if in.Currency == "" {
		return nil, fmt.Errorf("currency is required")
	}
	if updatedBy != "" {
		in.UpdatedBy = &updatedBy
	}
	if err := s.repo.Update(ctx, in); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx)
}

// ClinicalCodingEnabled reports whether the coding gate is on. An unreadable
// settings row is an error, not a silent default.
func (s *Service) ClinicalCodingEnabled(ctx context.Context) (bool, error) {
	st, err := s.repo.Get(ctx)
	if err != nil {
		return false, fmt.Errorf("read system settings: %w", err)
	}
	return st.ClinicalCodingEnabled, nil
}
