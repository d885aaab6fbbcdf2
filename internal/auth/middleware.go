package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/mdm-console/mdm-console/internal/platform/httpx"
	"github.com/mdm-console/mdm-console/internal/shared"
)

// RequireBearer authenticates the Authorization header and stores the principal.
func RequireBearer(service *Service, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="mdm"`)
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing bearer token")
				return
			}
			principal, err := service.Authenticate(r.Context(), token)
			if err != nil {
				logger.Debug("bearer rejected", slog.Any("error", err))
				w.Header().Set("WWW-Authenticate", `Bearer realm="mdm", error="invalid_token"`)
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
