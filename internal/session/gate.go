package session

import (
	"context"
	"time"
)

// Gate defaults.
const (
	DefaultRedirectDelay = 10 * time.Second
	DefaultRedirectTo    = "/"
)

// Denial reasons.
const (
	ReasonNotSignedIn = "not signed in"
	ReasonNoRole      = "You are not authorized"
	ReasonExpired     = "session expired"
)

// Decision is the outcome of an access check.
type Decision struct {
	Allowed       bool
	Reason        string
	RedirectTo    string
	RedirectAfter time.Duration
}

// Gate blocks protected content for sessions without a token or a role.
type Gate struct {
	Delay      time.Duration
	RedirectTo string
	Now        func() time.Time
}

// NewGate returns a Gate with the default delay and destination.
func NewGate() Gate {
	return Gate{Delay: DefaultRedirectDelay, RedirectTo: DefaultRedirectTo}
}

// Check decides whether s may see protected content. Priority plays no part.
func (g Gate) Check(s Session) Decision {
	deny := func(reason string) Decision {
		return Decision{Reason: reason, RedirectTo: g.redirectTo(), RedirectAfter: g.delay()}
	}
	if !s.Authenticated() {
		return deny(ReasonNotSignedIn)
	}
	if s.Expired(g.now()) {
		return deny(ReasonExpired)
	}
	if !s.HasRole() {
		return deny(ReasonNoRole)
	}
	return Decision{Allowed: true}
}

// Enforce checks s and, when denied, calls redirect after the delay unless ctx
// ends first. It blocks until the redirect fires or ctx is done.
func (g Gate) Enforce(ctx context.Context, s Session, redirect func(string)) Decision {
	d := g.Check(s)
	if d.Allowed {
		return d
	}
	timer := time.NewTimer(d.RedirectAfter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
		if redirect != nil {
			redirect(d.RedirectTo)
		}
	}
	return d
}

func (g Gate) delay() time.Duration {
	if g.Delay <= 0 {
		return DefaultRedirectDelay
	}
	return g.Delay
}

func (g Gate) redirectTo() string {
	if g.RedirectTo == "" {
		return DefaultRedirectTo
	}
	return g.RedirectTo
}

func (g Gate) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}
