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

	"github.com/peerislands/smart-onboarding/internal/app"
	"github.com/peerislands/smart-onboarding/internal/audit"
	"github.com/peerislands/smart-onboarding/internal/auth"
	"github.com/peerislands/smart-onboarding/internal/observability"
	"github.com/peerislands/smart-onboarding/internal/platform/cache"
	"github.com/peerislands/smart-onboarding/internal/platform/db"
	"github.com/peerislands/smart-onboarding/internal/policy"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer redisClient.Close()

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer asynqClient.Close()

	recorder := audit.NewRecorder(asynqClient, logger)
	guard := auth.NewAttemptGuard(redisClient, cfg.MaxAttempts, cfg.BlockDuration, logger)
	issuer := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTExpiry, logger)
	sessions := auth.NewSessionStore(redisClient, cfg.SessionTTL, logger)
	repo := auth.NewRepository(pool)

	// The authenticator variant is a configuration-time choice; a federated
	// deployment with no directory endpoint fails here, not per request.
	var (
		authenticator auth.Authenticator
		names         auth.DisplayNameResolver
	)
	switch cfg.AuthMode() {
	case app.AuthModeFederated:
		federated, err := auth.NewFederatedAuthenticator(cfg.FederationURL, guard, cfg.SwitchedRole, logger)
		if err != nil {
			logger.Error("configure federated authenticator", slog.Any("error", err))
			os.Exit(1)
		}
		authenticator = federated
		names = federated
	default:
		authenticator = auth.NewLocalAuthenticator(repo, guard, cfg.SwitchedRole, logger)
		names = auth.RepositoryNames{Repo: repo}
	}

	policyCfg, err := policy.LoadFile(cfg.PolicyFile)
	if err != nil {
		logger.Error("load permission matrix", slog.Any("error", err))
		os.Exit(1)
	}
	engine := policy.NewEngine(policyCfg, logger)

	metrics := observability.NewMetrics()

	authHandler := auth.NewHandler(logger, authenticator, issuer, sessions, names, recorder, nil)
	authHandler.SetMetrics(metrics)
	if app.InTestMode() {
		authHandler.SetSynchronousSessionWrites(true)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:      logger,
		Config:      cfg,
		AuthHandler: authHandler,
		AuthMiddleware: auth.Middleware{
			Issuer:   issuer,
			Sessions: sessions,
		},
		PolicyHandler: &policy.Handler{Engine: engine},
		PolicyMiddleware: policy.Middleware{
			Engine:  engine,
			Logger:  logger,
			Denials: metrics,
		},
		Metrics: metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", slog.Any("error", err))
	}
	logger.Info("server stopped")
}
