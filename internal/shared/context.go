package shared

import (
	"context"
	"time"
)

// Principal is the authenticated caller attached to a request.
type Principal struct {
	EmployeeID int64
	Email      string
	Name       string
	// Role is nil when no role is bound to the employee.
	Role      *string
	TokenID   string
	ExpiresAt time.Time
}

// RoleName returns the bound role or "" when none.
func (p Principal) RoleName() string {
	if p.Role == nil {
		return ""
	}
	return *p.Role
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}
