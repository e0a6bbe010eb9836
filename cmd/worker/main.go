package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/gatehouse-cms/gatehouse/internal/app"
	"github.com/gatehouse-cms/gatehouse/internal/authz"
	"github.com/gatehouse-cms/gatehouse/internal/graph"
	jobmetrics "github.com/gatehouse-cms/gatehouse/internal/jobs"
	"github.com/gatehouse-cms/gatehouse/internal/platform/cache"
	"github.com/gatehouse-cms/gatehouse/internal/platform/db"
	"github.com/gatehouse-cms/gatehouse/internal/schemas"
	"github.com/gatehouse-cms/gatehouse/internal/session"
	"github.com/gatehouse-cms/gatehouse/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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
		logger.Error("connect database", slog.Any("error", err))
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

	store := graph.NewPGStore(pool)
	authzSvc := authz.NewService(store, logger)
	sessions := session.NewManager(redisClient, authzSvc, cfg.SessionTTL)
	authzSvc.SetSessionInvalidator(sessions)
	schemaSvc := schemas.NewService(store, authzSvc, logger)

	metrics := jobmetrics.NewMetrics(nil)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRoleInvalidation, Handler: jobs.HandleRoleInvalidation(authzSvc, metrics, logger)},
			{Type: jobs.TaskGraphIntegrity, Handler: jobs.HandleGraphIntegrity(schemaSvc, metrics, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "@every 1h", Task: jobs.NewGraphIntegrityTask()},
		},
	})
	if err != nil {
		logger.Error("configure worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker starting")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
