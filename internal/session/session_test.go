package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/mdm-console/mdm-console/internal/apiclient"
)

type stubAuth struct {
	result   apiclient.LoginResult
	err      error
	revoked  []string
	revokeEr error
}

func (s *stubAuth) Login(ctx context.Context, email, password string) (apiclient.LoginResult, error) {
	if s.err != nil {
		return apiclient.LoginResult{}, s.err
	}
	return s.result, nil
}

func (s *stubAuth) Revoke(ctx context.Context, token string) error {
	s.revoked = append(s.revoked, token)
	return s.revokeEr
}

func strPtr(s string) *string { return &s }

func TestFileStoreRoundTripKeepsNilRole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.yaml")
	store := NewFileStore(path)
	ctx := context.Background()

	_, ok, err := store.Load(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Save(ctx, Session{Token: "t", User: User{Email: "a@acme.test", DisplayName: "Ana"}}))
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, ok, err := store.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Nil(t, got.Role)
	require.Equal(t, "Ana", got.User.DisplayName)

	require.NoError(t, store.Clear(ctx))
	require.NoError(t, store.Clear(ctx))
	_, ok, err = store.Load(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	require.NoError(t, os.WriteFile(path, []byte("token: [unclosed"), 0o600))
	_, _, err := NewFileStore(path).Load(context.Background())
	require.Error(t, err)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisStore(client, "", time.Hour)
	ctx := context.Background()

	s := Session{Token: "t", User: User{Email: "a@acme.test"}, Role: strPtr("Editor")}
	require.NoError(t, store.Save(ctx, s))
	require.True(t, mr.Exists("mdm:console:session"))
	require.Equal(t, time.Hour, mr.TTL("mdm:console:session"))

	got, ok, err := store.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Editor", got.RoleName())

	require.NoError(t, store.Clear(ctx))
	_, ok, err = store.Load(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestProviderInitHydratesOnce(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, Session{Token: "t1", User: User{Email: "a@acme.test"}, Role: strPtr("Admin")}))

	p := NewProvider(store, nil, nil)
	require.NoError(t, p.Init(ctx))
	require.Equal(t, "t1", p.Token())

	require.NoError(t, store.Save(ctx, Session{Token: "t2", User: User{Email: "b@acme.test"}}))
	require.NoError(t, p.Init(ctx))
	require.Equal(t, "t1", p.Token())
}

func TestProviderLoginPersistsTriad(t *testing.T) {
	store := NewMemoryStore()
	auth := &stubAuth{result: apiclient.LoginResult{Token: "tok", Email: "a@acme.test", Name: "Ana"}}
	p := NewProvider(store, auth, nil)
	ctx := context.Background()

	s, err := p.Login(ctx, "a@acme.test", "pw")
	require.NoError(t, err)
	require.Nil(t, s.Role)

	stored, ok, err := store.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "tok", stored.Token)
	require.Equal(t, "Ana", stored.User.DisplayName)
	require.Nil(t, stored.Role)
}

func TestProviderLoginFailureKeepsPreviousSession(t *testing.T) {
	auth := &stubAuth{result: apiclient.LoginResult{Token: "tok", Email: "a@acme.test", Role: strPtr("Admin")}}
	p := NewProvider(nil, auth, nil)
	ctx := context.Background()
	_, err := p.Login(ctx, "a@acme.test", "pw")
	require.NoError(t, err)

	auth.err = &apiclient.Error{Kind: apiclient.KindAuth, Status: 401, Message: "invalid credentials"}
	_, err = p.Login(ctx, "a@acme.test", "bad")
	require.ErrorIs(t, err, apiclient.ErrAuth)
	require.Equal(t, "tok", p.Current().Token)

	_, err = p.Login(ctx, "", "pw")
	require.ErrorIs(t, err, apiclient.ErrValidation)
}

func TestProviderCurrentIsACopy(t *testing.T) {
	auth := &stubAuth{result: apiclient.LoginResult{Token: "tok", Email: "a@acme.test", Role: strPtr("Admin")}}
	p := NewProvider(nil, auth, nil)
	_, err := p.Login(context.Background(), "a@acme.test", "pw")
	require.NoError(t, err)

	s := p.Current()
	*s.Role = "Viewer"
	s.Token = "changed"
	require.Equal(t, "Admin", p.Current().RoleName())
	require.Equal(t, "tok", p.Token())
}

func TestProviderLogoutClearsEvenWhenRevokeFails(t *testing.T) {
	store := NewMemoryStore()
	auth := &stubAuth{result: apiclient.LoginResult{Token: "tok", Email: "a@acme.test"}, revokeEr: errors.New("offline")}
	p := NewProvider(store, auth, nil)
	ctx := context.Background()
	_, err := p.Login(ctx, "a@acme.test", "pw")
	require.NoError(t, err)

	require.NoError(t, p.Logout(ctx))
	require.Equal(t, []string{"tok"}, auth.revoked)
	require.False(t, p.Current().Authenticated())
	_, ok, err := store.Load(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGateCheck(t *testing.T) {
	g := NewGate()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g.Now = func() time.Time { return now }

	d := g.Check(Session{})
	require.False(t, d.Allowed)
	require.Equal(t, ReasonNotSignedIn, d.Reason)

	d = g.Check(Session{Token: "t", User: User{Email: "a@acme.test"}})
	require.False(t, d.Allowed)
	require.Equal(t, ReasonNoRole, d.Reason)
	require.Equal(t, "/", d.RedirectTo)
	require.Equal(t, 10*time.Second, d.RedirectAfter)

	d = g.Check(Session{Token: "t", User: User{Email: "a@acme.test"}, Role: strPtr("Viewer"), ExpiresAt: now.Add(-time.Minute)})
	require.Equal(t, ReasonExpired, d.Reason)

	d = g.Check(Session{Token: "t", User: User{Email: "a@acme.test"}, Role: strPtr("Viewer")})
	require.True(t, d.Allowed)
}

func TestGateEnforceRedirectsAfterDelay(t *testing.T) {
	g := Gate{Delay: 20 * time.Millisecond}
	var (
		mu   sync.Mutex
		dest string
	)
	start := time.Now()
	d := g.Enforce(context.Background(), Session{Token: "t", User: User{Email: "a@acme.test"}}, func(to string) {
		mu.Lock()
		dest = to
		mu.Unlock()
	})
	require.False(t, d.Allowed)
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	mu.Lock()
	require.Equal(t, "/", dest)
	mu.Unlock()
}

func TestGateEnforceStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	NewGate().Enforce(ctx, Session{}, func(string) { called = true })
	require.False(t, called)
}

func TestLoadClientConfig(t *testing.T) {
	t.Setenv("MDM_API_BASE_URL", "http://api.test")
	t.Setenv("MDM_SESSION_FILE", "")
	cfg, err := LoadClientConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	require.Equal(t, "http://api.test", cfg.APIBaseURL)
	require.Equal(t, 15*time.Second, cfg.HTTPTimeout)
	require.NotEmpty(t, cfg.SessionFile)
}
