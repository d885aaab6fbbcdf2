package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mdm-console/mdm-console/internal/app"
	"github.com/mdm-console/mdm-console/internal/auth"
	"github.com/mdm-console/mdm-console/internal/observability"
	"github.com/mdm-console/mdm-console/internal/platform/httpx"
	_ "github.com/mdm-console/mdm-console/testing"
)

type accounts map[string]*auth.Account

func (a accounts) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	if acc, ok := a[strings.ToLower(email)]; ok {
		return acc, nil
	}
	return nil, httpx.ErrNotFound
}

func (a accounts) FindByID(ctx context.Context, id int64) (*auth.Account, error) {
	for _, acc := range a {
		if acc.ID == id {
			return acc, nil
		}
	}
	return nil, httpx.ErrNotFound
}

func newRouter(t *testing.T, checks map[string]app.HealthCheck) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-pass"), bcrypt.MinCost)
	require.NoError(t, err)
	role := "Admin"
	repo := accounts{"ana@acme.test": {ID: 1, Name: "Ana", Email: "ana@acme.test", PasswordHash: string(hash), Role: &role, IsActive: true}}

	issuer, err := auth.NewTokenIssuer("0123456789abcdef0123456789abcdef", time.Hour)
	require.NoError(t, err)
	svc := auth.NewService(repo, issuer, auth.NewRedisRevocations(client), nil)

	return app.NewRouter(app.RouterParams{
		Config:      &app.Config{RateLimitPerMinute: 1000},
		AuthService: svc,
		AuthHandler: auth.NewHandler(nil, svc, 0),
		Metrics:     observability.NewMetrics(),
		Checks:      checks,
	})
}

func TestHealthz(t *testing.T) {
	router := newRouter(t, map[string]app.HealthCheck{
		"postgres": func(*http.Request) error { return nil },
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"postgres":"ok"`)
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestHealthzDegraded(t *testing.T) {
	router := newRouter(t, map[string]app.HealthCheck{
		"redis": func(*http.Request) error { return errors.New("connection refused") },
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), `"redis":"down"`)
}

func TestProtectedRoutesRequireBearer(t *testing.T) {
	router := newRouter(t, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/employee/me/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginThenMe(t *testing.T) {
	router := newRouter(t, nil)

	body, _ := json.Marshal(map[string]string{"email": "ana@acme.test", "password": "s3cret-pass"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/employee/login/", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))
	require.NotEmpty(t, login.Token)

	req := httptest.NewRequest(http.MethodGet, "/employee/me/", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ana@acme.test")
}

func TestUnknownRouteIsProblem(t *testing.T) {
	router := newRouter(t, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "json")
}
