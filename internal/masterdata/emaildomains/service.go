package emaildomains

import (
	"context"

	"github.com/mdm-console/mdm-console/internal/masterdata/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]EmailDomain, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Create(ctx context.Context, d EmailDomain) (EmailDomain, error) {
	d, err := s.validate(d)
	if err != nil {
		return EmailDomain{}, err
	}
	return s.repo.Create(ctx, d)
}

func (s *Service) Update(ctx context.Context, id int64, d EmailDomain) (EmailDomain, error) {
	if id <= 0 {
		return EmailDomain{}, shared.ErrInvalidID
	}
	d, err := s.validate(d)
	if err != nil {
		return EmailDomain{}, err
	}
	return s.repo.Update(ctx, id, d)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	return s.repo.Delete(ctx, id)
}

// Allows reports whether email belongs to a registered domain.
func (s *Service) Allows(ctx context.Context, email string) (bool, error) {
	domain, err := DomainOf(email)
	if err != nil {
		return false, err
	}
	return s.repo.Exists(ctx, domain)
}
