package auth

import "time"

// Account is an employee as seen by authentication.
type Account struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	// Role is nil when no role is bound.
	Role     *string
	IsActive bool
}

// LoginResult is returned to the client after a successful login.
type LoginResult struct {
	Token     string
	Email     string
	Name      string
	Role      *string
	ExpiresAt time.Time
}
