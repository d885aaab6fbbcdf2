package shared

import (
	"fmt"

	"github.com/mdm-console/mdm-console/internal/platform/httpx"
)

var (
	ErrInvalidID     = fmt.Errorf("%w: invalid ID", httpx.ErrValidation)
	ErrRequiredField = fmt.Errorf("%w: field is required", httpx.ErrValidation)
)
