package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/mdm-console/mdm-console/internal/platform/httpx"
	"github.com/mdm-console/mdm-console/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	validator      *httpx.Validator
	loginPerMinute int
}

// NewHandler constructs a Handler instance. loginPerMinute limits login attempts
// per client IP; zero disables the limit.
func NewHandler(logger *slog.Logger, service *Service, loginPerMinute int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		validator:      httpx.NewValidator(),
		loginPerMinute: loginPerMinute,
	}
}

// MountRoutes registers the public login route.
func (h *Handler) MountRoutes(r chi.Router) {
	if h.loginPerMinute > 0 {
		limiter := httprate.Limit(h.loginPerMinute, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "too many login attempts, try again later")
			}),
		)
		r.With(limiter).Post("/employee/login/", h.handleLogin)
		return
	}
	r.Post("/employee/login/", h.handleLogin)
}

// MountAuthenticated registers routes that need a bearer principal.
func (h *Handler) MountAuthenticated(r chi.Router) {
	r.Post("/employee/logout/", h.handleLogout)
	r.Get("/employee/me/", h.handleMe)
}

type loginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	Name      string    `json:"emp_name"`
	Role      *string   `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var form loginForm
	if err := h.validator.Decode(r, &form); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.Login(r.Context(), form.Email, form.Password)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", shared.UserSafeMessage(err))
			return
		}
		h.logger.Error("login", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, loginResponse(res))
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	if err := h.service.Logout(r.Context(), p); err != nil {
		h.logger.Warn("logout", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.Message(w, http.StatusOK, "Logged out")
}

type meResponse struct {
	ID    int64   `json:"id"`
	Email string  `json:"email"`
	Name  string  `json:"emp_name"`
	Role  *string `json:"role"`
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	httpx.JSON(w, http.StatusOK, meResponse{ID: p.EmployeeID, Email: p.Email, Name: p.Name, Role: p.Role})
}
