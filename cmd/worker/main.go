package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/homecare-notify/internal/app"
	"github.com/jwalitptl/homecare-notify/internal/config"
	"github.com/jwalitptl/homecare-notify/pkg/messaging"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := app.NewLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal(err, "failed to initialize worker")
	}

	health := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Worker.HealthPort),
		Handler: a.HealthRouter(),
	}
	go func() {
		if err := health.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(err, "Health check server failed")
			stop()
		}
	}()

	go a.AuditCleanup.Start(ctx)
	a.Scheduler.StartPolling()

	events, err := a.Events(ctx)
	if err != nil {
		logger.Error(err, "Failed to subscribe to notification events, relying on polling")
	} else if events != nil {
		go a.Scheduler.RunOnEvents(ctx, events, messaging.EventBatchComposed)
	}
	logger.Info("Worker started",
		"poll_interval", cfg.Worker.PollInterval.String(),
		"batch_size", cfg.Worker.BatchSize)

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := health.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "Health server shutdown failed")
	}
	if err := a.Close(shutdownCtx); err != nil {
		logger.Error(err, "Shutdown incomplete")
		os.Exit(1)
	}
}
