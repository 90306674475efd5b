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

	"github.com/spark-playbook/playbook/internal/app"
	"github.com/spark-playbook/playbook/internal/auth"
	"github.com/spark-playbook/playbook/internal/authctx"
	"github.com/spark-playbook/playbook/internal/dashboard"
	"github.com/spark-playbook/playbook/internal/focus"
	"github.com/spark-playbook/playbook/internal/identity"
	"github.com/spark-playbook/playbook/internal/notes"
	"github.com/spark-playbook/playbook/internal/notifications"
	"github.com/spark-playbook/playbook/internal/observability"
	"github.com/spark-playbook/playbook/internal/platform/cache"
	"github.com/spark-playbook/playbook/internal/platform/db"
	"github.com/spark-playbook/playbook/internal/profiles"
	"github.com/spark-playbook/playbook/internal/provision"
	"github.com/spark-playbook/playbook/internal/quickactions"
	"github.com/spark-playbook/playbook/internal/reminders"
	"github.com/spark-playbook/playbook/internal/shared"
	"github.com/spark-playbook/playbook/internal/submissions"
	"github.com/spark-playbook/playbook/internal/tasks"
	"github.com/spark-playbook/playbook/internal/view"
	"github.com/spark-playbook/playbook/internal/workitems"
	"github.com/spark-playbook/playbook/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{AppName: "playbook"})
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

	sessionManager := shared.NewSessionManager(redisClient, "playbook_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	metrics := observability.NewMetrics()

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	jobClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	provider := identity.NewProvider(
		identity.NewRepository(dbpool),
		identity.NewTokens(redisClient, cfg.SessionTTL),
		identity.NewQueueMailer(jobClient, cfg.PublicURL, logger),
		logger,
	)
	profileRepo := profiles.NewRepository(dbpool)

	registry := authctx.NewRegistry(func(sessionID string) authctx.Client {
		return identity.NewClient(provider, identity.NewRedisTokenStore(redisClient, sessionID, cfg.SessionTTL))
	}, profileRepo, authctx.Options{
		Logger:       logger,
		FetchTimeout: cfg.AuthFetchTimeout,
		Recorder:     metrics,
	})
	defer registry.Close()
	go registry.Run(ctx, time.Minute, cfg.AuthContextIdleTTL)

	hub := notifications.NewHub(logger)
	listener := notifications.NewListener(dbpool, hub, logger)
	go listener.Run(ctx)

	dashboardHandler := dashboard.NewHandler(logger, templates, csrfManager, dashboard.Deps{
		WorkItems:    workitems.NewService(workitems.NewRepository(dbpool)),
		QuickActions: quickactions.NewService(quickactions.NewRepository(dbpool)),
		Notes:        notes.NewRepository(dbpool),
		Focus:        focus.NewRepository(dbpool),
		Reminders:    reminders.NewRepository(dbpool),
		Submissions:  submissions.NewRepository(dbpool),
		Tasks:        tasks.NewRepository(dbpool),
		Principals:   profileRepo,
	}, metrics)
	notificationsHandler := notifications.NewHandler(logger, notifications.NewRepository(dbpool), hub, templates, csrfManager, metrics)
	authHandler := auth.NewHandler(logger, provider, templates, csrfManager, app.SessionRotator{
		Sessions: sessionManager,
		Registry: registry,
		MoveToken: func(ctx context.Context, from, to string) error {
			return identity.MoveRedisToken(ctx, redisClient, from, to, cfg.SessionTTL)
		},
	})

	var provisionHandler *provision.Handler
	if cfg.ProvisionKey != "" {
		provisionService := provision.NewService(provider, provision.ProfilesTx(profileRepo), logger)
		provisionHandler = provision.NewHandler(provisionService, cfg.ProvisionKey, logger)
	} else {
		logger.Info("provisioning endpoint disabled, PROVISION_KEY not set")
	}

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		Templates:            templates,
		SessionManager:       sessionManager,
		CSRFManager:          csrfManager,
		Registry:             registry,
		Metrics:              metrics,
		AuthHandler:          authHandler,
		DashboardHandler:     dashboardHandler,
		NotificationsHandler: notificationsHandler,
		ProvisionHandler:     provisionHandler,
		JobHandler:           jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}
	server.RegisterOnShutdown(hub.Close)

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
