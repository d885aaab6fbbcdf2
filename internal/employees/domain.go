package employees

import "time"

// Employee is an account that may log in. Role is nil when unbound.
type Employee struct {
	ID        int64
	Name      string
	Email     string
	Company   *string
	Role      *string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RegisterInput carries a new employee's details.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Company  string
}

// UpdateInput carries editable profile fields. Nil fields are left unchanged.
type UpdateInput struct {
	Name     *string
	Email    *string
	Company  *string
	IsActive *bool
}
