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

	"github.com/lako-services/lako-web/internal/app"
	"github.com/lako-services/lako-web/internal/generation"
	"github.com/lako-services/lako-web/internal/observability"
	"github.com/lako-services/lako-web/internal/platform/cache"
	"github.com/lako-services/lako-web/internal/ratelimit"
	"github.com/lako-services/lako-web/internal/studio"
	"github.com/lako-services/lako-web/internal/submission"
	"github.com/lako-services/lako-web/jobs"
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
	metrics := observability.NewMetrics()

	store, closeStore, err := app.OpenHistoryStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("open history store", slog.String("backend", cfg.HistoryBackend), slog.Any("error", err))
		os.Exit(1)
	}
	defer closeStore()

	contactLimiter := ratelimit.New(ratelimit.Options{
		Window:        cfg.ContactRateWindow,
		MaxRequests:   cfg.ContactRateLimit,
		SweepInterval: cfg.RateLimitSweep,
		OnLimited:     metrics.RateLimited("contact"),
	})
	studioLimiter := ratelimit.New(ratelimit.Options{
		Window:        cfg.StudioRateWindow,
		MaxRequests:   cfg.StudioRateLimit,
		SweepInterval: cfg.RateLimitSweep,
		OnLimited:     metrics.RateLimited("studio"),
	})
	go contactLimiter.Run(ctx)
	go studioLimiter.Run(ctx)

	notifiers := app.NewNotifiers(cfg, logger, metrics)
	defer func() {
		if err := notifiers.Close(); err != nil {
			logger.Warn("close notifiers", slog.Any("error", err))
		}
	}()
	var notifier submission.Notifier = notifiers.Dispatcher
	if cfg.NotifyAsync {
		queue, err := jobs.NewClient(cache.QueueOpt(cfg.RedisAddr))
		if err != nil {
			logger.Error("init job client", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := queue.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		notifier = jobs.NewQueueDispatcher(queue, logger)
		logger.Info("notifications delivered by worker")
	}
	submissionHandler := submission.NewHandler(logger, notifier, contactLimiter, cfg.AllowedOrigins)

	backend := generation.NewClient(generation.ClientConfig{
		BaseURL:  cfg.EfakturaAPIURL,
		Timeout:  cfg.EfakturaHTTPTimeout,
		RetryMax: cfg.EfakturaRetryMax,
	})
	studioHandler := studio.NewHandler(logger, studio.Options{
		Backend: backend,
		Store:   store,
		Generation: generation.Config{
			PollInterval:    cfg.EfakturaPollInterval,
			MaxPollAttempts: cfg.EfakturaPollAttempts,
			PollSlack:       cfg.EfakturaPollSlack,
		},
		Limiter: studioLimiter,
		Observe: func(state generation.State, elapsed time.Duration) {
			metrics.ObserveGeneration(string(state), elapsed)
		},
	})

	inspector := asynq.NewInspector(cache.QueueOpt(cfg.RedisAddr))
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		SubmissionHandler: submissionHandler,
		StudioHandler:     studioHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
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
