package companies

import (
	"context"
	"strings"

	"github.com/mdm-console/mdm-console/internal/masterdata/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Company, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, name string) (Company, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Company{}, shared.ErrInvalidID
	}
	return s.repo.Get(ctx, name)
}

func (s *Service) Create(ctx context.Context, company Company) (Company, error) {
	company, err := s.validate(company)
	if err != nil {
		return Company{}, err
	}
	return s.repo.Create(ctx, company)
}

func (s *Service) Update(ctx context.Context, name string, company Company) (Company, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Company{}, shared.ErrInvalidID
	}
	company, err := s.validate(company)
	if err != nil {
		return Company{}, err
	}
	return s.repo.Rename(ctx, name, company)
}

func (s *Service) Delete(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return shared.ErrInvalidID
	}
	return s.repo.Delete(ctx, name)
}
