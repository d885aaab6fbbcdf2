package session

import "time"

// User identifies the signed-in employee.
type User struct {
	Email       string `yaml:"email" json:"email"`
	DisplayName string `yaml:"emp_name" json:"emp_name"`
}

// Session is the token, user and role triad issued by login. A nil Role is the
// distinct "authenticated but no role bound" state.
type Session struct {
	Token     string    `yaml:"token" json:"token"`
	User      User      `yaml:"user" json:"user"`
	Role      *string   `yaml:"role" json:"role"`
	ExpiresAt time.Time `yaml:"expires_at,omitempty" json:"expires_at,omitempty"`
}

// Authenticated reports whether a token and user are present.
func (s Session) Authenticated() bool {
	return s.Token != "" && s.User.Email != ""
}

// HasRole reports whether a role is bound.
func (s Session) HasRole() bool {
	return s.Role != nil && *s.Role != ""
}

// RoleName returns the bound role or "".
func (s Session) RoleName() string {
	if s.Role == nil {
		return ""
	}
	return *s.Role
}

// Expired reports whether the session carries an expiry that has passed.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

func (s Session) clone() Session {
	if s.Role != nil {
		role := *s.Role
		s.Role = &role
	}
	return s
}
