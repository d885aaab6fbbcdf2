package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/mdm-console/mdm-console/internal/platform/httpx"
	"github.com/mdm-console/mdm-console/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo        Repository
	tokens      *TokenIssuer
	revocations RevocationStore
	logger      *slog.Logger
}

// NewService constructs a new Service. revocations may be nil, in which case
// logout only ends the client-side session.
func NewService(repo Repository, tokens *TokenIssuer, revocations RevocationStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, tokens: tokens, revocations: revocations, logger: logger}
}

// Login validates email/password credentials and issues a token.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	account, err := s.repo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if !errors.Is(err, httpx.ErrNotFound) {
			return LoginResult{}, err
		}
		return LoginResult{}, shared.ErrInvalidCredentials
	}
	if !account.IsActive {
		return LoginResult{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return LoginResult{}, shared.ErrInvalidCredentials
	}
	token, claims, err := s.tokens.Issue(account)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{
		Token:     token,
		Email:     account.Email,
		Name:      account.Name,
		Role:      account.Role,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Authenticate resolves a bearer token into a principal. The role is read from
// storage so that role changes apply to existing tokens.
func (s *Service) Authenticate(ctx context.Context, raw string) (shared.Principal, error) {
	claims, err := s.tokens.Parse(raw)
	if err != nil {
		return shared.Principal{}, fmt.Errorf("%w: %v", httpx.ErrUnauthorized, err)
	}
	if s.revocations != nil {
		revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
		if err != nil {
			return shared.Principal{}, err
		}
		if revoked {
			return shared.Principal{}, fmt.Errorf("%w: %w", httpx.ErrUnauthorized, shared.ErrTokenRevoked)
		}
	}
	id, err := claims.EmployeeID()
	if err != nil {
		return shared.Principal{}, fmt.Errorf("%w: malformed subject", httpx.ErrUnauthorized)
	}
	account, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return shared.Principal{}, fmt.Errorf("%w: account no longer exists", httpx.ErrUnauthorized)
		}
		return shared.Principal{}, err
	}
	if !account.IsActive {
		return shared.Principal{}, fmt.Errorf("%w: account disabled", httpx.ErrUnauthorized)
	}
	return shared.Principal{
		EmployeeID: account.ID,
		Email:      account.Email,
		Name:       account.Name,
		Role:       account.Role,
		TokenID:    claims.ID,
		ExpiresAt:  claims.ExpiresAt.Time,
	}, nil
}

// Logout revokes the principal's token until it would have expired.
func (s *Service) Logout(ctx context.Context, p shared.Principal) error {
	if s.revocations == nil || p.TokenID == "" {
		return nil
	}
	if err := s.revocations.Revoke(ctx, p.TokenID, p.ExpiresAt); err != nil {
		return err
	}
	s.logger.Info("token revoked", slog.Int64("employee_id", p.EmployeeID))
	return nil
}

// HashPassword returns a bcrypt hash for a new password.
func HashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", fmt.Errorf("%w: password must have at least 8 characters", httpx.ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
