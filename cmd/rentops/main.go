package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rentops/rentops/internal/accounts"
	"github.com/rentops/rentops/internal/app"
	"github.com/rentops/rentops/internal/audit"
	audithttp "github.com/rentops/rentops/internal/audit/http"
	"github.com/rentops/rentops/internal/auth"
	"github.com/rentops/rentops/internal/guard"
	"github.com/rentops/rentops/internal/identity"
	"github.com/rentops/rentops/internal/observability"
	"github.com/rentops/rentops/internal/platform/cache"
	"github.com/rentops/rentops/internal/platform/db"
	"github.com/rentops/rentops/internal/roles"
	"github.com/rentops/rentops/internal/session"
	"github.com/rentops/rentops/internal/shared"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	rolesRepo := roles.NewRepository(dbpool)
	rolesService := roles.NewService(rolesRepo)

	accountsRepo := accounts.NewRepository(dbpool)
	accountsService := accounts.NewService(accountsRepo, rolesService)

	var validator identity.Validator
	if cfg.IdentityValidatorURL != "" {
		validator = identity.NewClient(cfg.IdentityValidatorURL, http.DefaultClient)
	} else {
		validator = accounts.NewDirectoryValidator(accountsRepo, accountsService)
	}

	metrics := observability.NewMetrics()

	sessionManager := session.NewManager(session.ManagerConfig{
		Validator:          validator,
		Persister:          session.NewRedisPersister(redisClient, cfg.SessionTTL),
		OwnerName:          cfg.OwnerName,
		OwnerHash:          cfg.OwnerPasswordHash,
		Logger:             logger,
		RevalidateInterval: cfg.RevalidateInterval,
		WarnThreshold:      cfg.RevalidateWarnThreshold,
		Metrics:            metrics,
	})
	defer sessionManager.Shutdown()

	auditRepo := audit.NewRepository(dbpool)
	auditService := audit.NewService(auditRepo)

	guardMW := guard.Middleware{Logger: logger, Metrics: metrics}

	authHandler := auth.NewHandler(logger, sessionManager, csrfManager, auditService, cfg.SessionTTL, cfg.IsProduction())
	rolesHandler := roles.NewHandler(logger, rolesService, auditService, guardMW)
	accountsHandler := accounts.NewHandler(logger, accountsService, auditService, guardMW)
	auditHandler := audithttp.NewHandler(logger, auditService, guardMW, redisClient)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		SessionManager:  sessionManager,
		CSRFManager:     csrfManager,
		AuthHandler:     authHandler,
		RolesHandler:    rolesHandler,
		AccountsHandler: accountsHandler,
		AuditHandler:    auditHandler,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
