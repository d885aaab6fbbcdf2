package companies

import (
	"fmt"
	"strings"

	"github.com/mdm-console/mdm-console/internal/masterdata/shared"
	"github.com/mdm-console/mdm-console/internal/platform/httpx"
)

func (s *Service) validate(c Company) (Company, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return Company{}, fmt.Errorf("company name: %w", shared.ErrRequiredField)
	}
	if len(c.Name) > 200 {
		return Company{}, fmt.Errorf("%w: company name is too long", httpx.ErrValidation)
	}
	return c, nil
}
