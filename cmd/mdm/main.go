package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/mdm-console/mdm-console/internal/app"
	"github.com/mdm-console/mdm-console/internal/auth"
	"github.com/mdm-console/mdm-console/internal/employees"
	"github.com/mdm-console/mdm-console/internal/masterdata/companies"
	"github.com/mdm-console/mdm-console/internal/masterdata/emaildomains"
	"github.com/mdm-console/mdm-console/internal/observability"
	"github.com/mdm-console/mdm-console/internal/platform/cache"
	"github.com/mdm-console/mdm-console/internal/platform/db"
	"github.com/mdm-console/mdm-console/internal/rbac"
	"github.com/mdm-console/mdm-console/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if cfg.MigrateOnStart {
		if err := db.Migrate(cfg.PGDSN, logger); err != nil {
			logger.Error("migrate database", slog.Any("error", err))
			os.Exit(1)
		}
	}

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer inspector.Close()

	metrics := observability.NewMetrics()

	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		logger.Error("init token issuer", slog.Any("error", err))
		os.Exit(1)
	}
	authService := auth.NewService(auth.NewRepository(pool), tokens, auth.NewRedisRevocations(redisClient), logger)

	rbacService := rbac.NewService(rbac.NewRepository(pool), jobClient, jobClient, logger)
	guard := rbac.Middleware{Checker: rbacService, Permission: cfg.AdminPermission, Logger: logger}

	domainService := emaildomains.NewService(emaildomains.NewRepository(pool))
	companyService := companies.NewService(companies.NewRepository(pool))
	employeeService := employees.NewService(employees.NewRepository(pool), domainService, jobClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		AuthService:         authService,
		AuthHandler:         auth.NewHandler(logger, authService, cfg.LoginPerMinute),
		RBACHandler:         rbac.NewHandler(logger, rbacService, guard),
		EmployeesHandler:    employees.NewHandler(logger, employeeService, guard),
		CompaniesHandler:    companies.NewHandler(logger, companyService, guard),
		EmailDomainsHandler: emaildomains.NewHandler(logger, domainService, guard),
		JobHandler:          jobs.NewHandler(inspector, logger),
		Metrics:             metrics,
		Checks: map[string]app.HealthCheck{
			"postgres": func(r *http.Request) error { return pool.Ping(r.Context()) },
			"redis":    func(r *http.Request) error { return redisClient.Ping(r.Context()).Err() },
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
