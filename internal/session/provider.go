package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/mdm-console/mdm-console/internal/apiclient"
)

// ErrNotSignedIn is returned by operations that need a session.
var ErrNotSignedIn = errors.New("session: not signed in")

// Authenticator is the login boundary of the API.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (apiclient.LoginResult, error)
	Revoke(ctx context.Context, token string) error
}

// Provider owns the current session. Init hydrates it once from the store;
// Login and Logout are the only mutators. It is safe for concurrent use and
// doubles as an apiclient.TokenSource.
type Provider struct {
	store  Store
	api    Authenticator
	logger *slog.Logger

	initOnce sync.Once
	initErr  error

	mu      sync.RWMutex
	current Session
}

// NewProvider constructs a Provider.
func NewProvider(store Store, api Authenticator, logger *slog.Logger) *Provider {
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{store: store, api: api, logger: logger}
}

// Init loads the persisted session. Only the first call reads the store.
func (p *Provider) Init(ctx context.Context) error {
	p.initOnce.Do(func() {
		s, ok, err := p.store.Load(ctx)
		if err != nil {
			p.initErr = err
			p.logger.Warn("restore session", slog.Any("error", err))
			return
		}
		if !ok {
			return
		}
		p.mu.Lock()
		p.current = s.clone()
		p.mu.Unlock()
	})
	return p.initErr
}

// Login authenticates and persists the resulting session. A failed login leaves
// the previous session untouched.
func (p *Provider) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return Session{}, &apiclient.Error{Kind: apiclient.KindValidation, Message: "email and password are required"}
	}
	if p.api == nil {
		return Session{}, errors.New("session: no authenticator configured")
	}
	res, err := p.api.Login(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	s := Session{
		Token:     res.Token,
		User:      User{Email: res.Email, DisplayName: res.Name},
		Role:      res.Role,
		ExpiresAt: res.ExpiresAt,
	}
	if err := p.store.Save(ctx, s); err != nil {
		return Session{}, fmt.Errorf("persist session: %w", err)
	}
	p.mu.Lock()
	p.current = s.clone()
	p.mu.Unlock()
	// mark hydrated so a later Init does not overwrite the fresh session
	p.initOnce.Do(func() {})
	p.logger.Info("signed in", slog.String("email", s.User.Email), slog.Bool("role_bound", s.HasRole()))
	return s.clone(), nil
}

// Logout clears the session from memory and the store. Server-side revocation
// is attempted but its failure is only logged.
func (p *Provider) Logout(ctx context.Context) error {
	p.mu.Lock()
	token := p.current.Token
	p.current = Session{}
	p.mu.Unlock()
	p.initOnce.Do(func() {})

	if token != "" && p.api != nil {
		if err := p.api.Revoke(ctx, token); err != nil {
			p.logger.Warn("revoke token", slog.Any("error", err))
		}
	}
	return p.store.Clear(ctx)
}

// Current returns a copy of the session.
func (p *Provider) Current() Session {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current.clone()
}

// Token implements apiclient.TokenSource.
func (p *Provider) Token() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current.Token
}
