package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mdm-console/mdm-console/internal/auth"
	"github.com/mdm-console/mdm-console/internal/employees"
	"github.com/mdm-console/mdm-console/internal/masterdata/companies"
	"github.com/mdm-console/mdm-console/internal/masterdata/emaildomains"
	"github.com/mdm-console/mdm-console/internal/observability"
	"github.com/mdm-console/mdm-console/internal/platform/httpx"
	"github.com/mdm-console/mdm-console/internal/rbac"
	"github.com/mdm-console/mdm-console/jobs"
)

// HealthCheck reports whether a backing service is reachable.
type HealthCheck func(r *http.Request) error

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger              *slog.Logger
	Config              *Config
	AuthService         *auth.Service
	AuthHandler         *auth.Handler
	RBACHandler         *rbac.Handler
	EmployeesHandler    *employees.Handler
	CompaniesHandler    *companies.Handler
	EmailDomainsHandler *emaildomains.Handler
	JobHandler          *jobs.Handler
	Metrics             *observability.Metrics
	// Checks are run by /healthz; any failure reports 503.
	Checks map[string]HealthCheck
}

// NewRouter constructs the chi.Router with the API defaults.
func NewRouter(params RouterParams) http.Handler {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not found", "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, "Method not allowed", r.Method+" is not supported here")
	})

	r.Get("/healthz", healthz(logger, params.Checks))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.AuthHandler != nil {
		params.AuthHandler.MountRoutes(r)
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireBearer(params.AuthService, logger))
		if params.AuthHandler != nil {
			params.AuthHandler.MountAuthenticated(r)
		}
		if params.RBACHandler != nil {
			params.RBACHandler.MountRoutes(r)
		}
		if params.EmployeesHandler != nil {
			params.EmployeesHandler.MountRoutes(r)
		}
		if params.CompaniesHandler != nil {
			params.CompaniesHandler.MountRoutes(r)
		}
		if params.EmailDomainsHandler != nil {
			params.EmailDomainsHandler.MountRoutes(r)
		}
		if params.JobHandler != nil {
			params.JobHandler.MountRoutes(r)
		}
	})

	return r
}

func healthz(logger *slog.Logger, checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "ok"}
		code := http.StatusOK
		for name, check := range checks {
			if err := check(r); err != nil {
				logger.Warn("health check failed", slog.String("check", name), slog.Any("error", err))
				status[name] = "down"
				status["status"] = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			status[name] = "ok"
		}
		httpx.JSON(w, code, status)
	}
}
