package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/gatehouse-cms/gatehouse/internal/app"
	"github.com/gatehouse-cms/gatehouse/internal/auth"
	"github.com/gatehouse-cms/gatehouse/internal/authz"
	"github.com/gatehouse-cms/gatehouse/internal/bootstrap"
	"github.com/gatehouse-cms/gatehouse/internal/content"
	"github.com/gatehouse-cms/gatehouse/internal/graph"
	"github.com/gatehouse-cms/gatehouse/internal/groups"
	"github.com/gatehouse-cms/gatehouse/internal/identity"
	"github.com/gatehouse-cms/gatehouse/internal/observability"
	"github.com/gatehouse-cms/gatehouse/internal/perms"
	"github.com/gatehouse-cms/gatehouse/internal/platform/cache"
	"github.com/gatehouse-cms/gatehouse/internal/platform/db"
	"github.com/gatehouse-cms/gatehouse/internal/policy"
	"github.com/gatehouse-cms/gatehouse/internal/roles"
	"github.com/gatehouse-cms/gatehouse/internal/schemas"
	"github.com/gatehouse-cms/gatehouse/internal/session"
	"github.com/gatehouse-cms/gatehouse/internal/users"
	"github.com/gatehouse-cms/gatehouse/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

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

	hasher, err := identity.NewHasher(cfg.PasswordSalt)
	if err != nil {
		logger.Error("configure password hasher", slog.Any("error", err))
		os.Exit(1)
	}

	store := graph.NewPGStore(pool)
	userSvc := identity.NewService(store, hasher)
	authzSvc := authz.NewService(store, logger)
	sessions := session.NewManager(redisClient, authzSvc, cfg.SessionTTL)
	authzSvc.SetSessionInvalidator(sessions)

	fanout := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := fanout.Close(); err != nil {
			logger.Warn("queue close", slog.Any("error", err))
		}
	}()
	authzSvc.SetRoleFanout(fanout)

	metrics := observability.NewMetrics()
	sessions.SetRecorder(metrics)
	guard := policy.NewGuard(sessions)
	guard.SetRecorder(metrics)

	schemaSvc := schemas.NewService(store, authzSvc, logger)

	if err := bootstrap.Ensure(ctx, logger, authzSvc, userSvc, cfg.AdminLogin, cfg.AdminPassword); err != nil {
		logger.Error("bootstrap", slog.Any("error", err))
		os.Exit(1)
	}

	router := app.NewRouter(app.RouterParams{
		Config:         cfg,
		AuthHandler:    auth.NewHandler(logger, userSvc, sessions, cfg.SessionCookie, cfg.IsProduction()),
		UserHandler:    users.NewHandler(logger, userSvc, authzSvc, sessions, guard),
		RoleHandler:    roles.NewHandler(logger, authzSvc, guard),
		GroupHandler:   groups.NewHandler(logger, authzSvc, store, guard),
		PermHandler:    perms.NewHandler(authzSvc, guard),
		SchemaHandler:  schemas.NewHandler(schemaSvc, guard),
		ContentHandler: content.NewHandler(store, schemaSvc, guard),
		Metrics:        metrics,
		Middlewares: app.MiddlewareStack(app.MiddlewareConfig{
			Logger:  logger,
			Config:  cfg,
			Metrics: metrics,
		}),
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
