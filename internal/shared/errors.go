package shared

import (
	"errors"
	"strings"

	"github.com/mdm-console/mdm-console/internal/platform/httpx"
)

var (
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTokenRevoked indicates the bearer token was logged out.
	ErrTokenRevoked = errors.New("token revoked")
)

// UserSafeMessage returns a message suitable for API clients. Internal errors are
// collapsed to a generic text.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, httpx.ErrValidation),
		errors.Is(err, httpx.ErrNotFound),
		errors.Is(err, httpx.ErrDuplicate),
		errors.Is(err, httpx.ErrForbidden):
		return strings.TrimSpace(err.Error())
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid email or password"
	default:
		return "operation failed"
	}
}
