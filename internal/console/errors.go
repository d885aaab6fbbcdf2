package console

import (
	"fmt"

	"github.com/mdm-console/mdm-console/internal/apiclient"
	"github.com/mdm-console/mdm-console/internal/rbac"
)

func validationError(format string, args ...any) error {
	return &apiclient.Error{Kind: apiclient.KindValidation, Message: fmt.Sprintf(format, args...)}
}

func notFoundError(format string, args ...any) error {
	return &apiclient.Error{Kind: apiclient.KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// PartialCommitError reports a role that was saved while its staged
// assignments were not.
type PartialCommitError struct {
	Role rbac.RoleSummary
	Err  error
}

func (e *PartialCommitError) Error() string {
	return fmt.Sprintf("role %q saved but assigning permissions failed: %v", e.Role.Name, e.Err)
}

func (e *PartialCommitError) Unwrap() error { return e.Err }
