package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Guizzs26/mobilize-sync/internal/actionnetwork"
	"github.com/Guizzs26/mobilize-sync/internal/broker"
	"github.com/Guizzs26/mobilize-sync/internal/config"
	"github.com/Guizzs26/mobilize-sync/internal/db"
	"github.com/Guizzs26/mobilize-sync/internal/service"
	"github.com/Guizzs26/mobilize-sync/pkg/infra"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	if err := run(); err != nil {
		slog.Error("FATAL: Sync terminated", "error", err)
		os.Exit(1)
	}
}

// run owns every resource so deferred closes happen before main exits
func run() error {
	cfg := config.Load()
	logger, closeLog, err := infra.SetupLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	defer closeLog()
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Canceled on SIGINT (Ctrl+C) or SIGTERM (Docker stop)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("🔧 Initializing Mobilize → Action Network sync",
		"warehouse", cfg.WarehouseDriver,
		"batch_size", cfg.BatchSize,
		"poll_mode", cfg.PollMode(),
	)

	warehouse, err := db.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to warehouse: %w", err)
	}
	defer warehouse.Close()

	people := actionnetwork.NewClient(cfg.ActionNetworkURL, cfg.ActionNetworkAPIKey, cfg.HTTPTimeout, logger)

	runner := service.NewSyncRunner(warehouse, people, service.Options{
		BatchSize:        cfg.BatchSize,
		Tag:              cfg.Tag,
		IdentifierPrefix: cfg.IdentifierPrefix,
	}, logger)

	if cfg.RabbitMQURL != "" {
		rabbit, err := broker.NewRabbitMQClient(cfg.RabbitMQURL, cfg.RabbitMQExchange, logger)
		if err != nil {
			// Events are informational; the sync itself does not depend on them
			logger.Warn("RabbitMQ unavailable, sync events disabled", "error", err)
		} else {
			defer rabbit.Close()
			runner.WithPublisher(rabbit)
		}
	}

	if cfg.MetricsPort != "" {
		go startObservabilityServer(cfg.MetricsPort, logger)
	}

	if !cfg.PollMode() {
		if _, err := runner.Run(ctx); err != nil {
			return fmt.Errorf("sync run failed: %w", err)
		}
		logger.Info("✅ Sync run complete")
		return nil
	}

	runLoop(ctx, runner, cfg.PollInterval, logger)
	logger.Info("✅ Shutdown complete")
	return nil
}

// runLoop repeats runs until ctx is canceled. Failed runs back off exponentially.
func runLoop(ctx context.Context, runner *service.SyncRunner, interval time.Duration, logger *slog.Logger) {
	backoff := infra.NewBackoff(1*time.Second, 60*time.Second, 2.0)

	for {
		_, err := runner.Run(ctx)
		if ctx.Err() != nil {
			logger.Info("🛑 Shutdown signal received, stopping poll loop")
			return
		}

		wait := interval
		if err != nil {
			wait = backoff.Next()
			logger.Error("Sync run failed", "retry_in", wait, "attempt", backoff.Attempts(), "error", err)
		} else {
			backoff.Reset()
		}

		if !infra.Sleep(ctx, wait) {
			logger.Info("🛑 Shutdown signal received, stopping poll loop")
			return
		}
	}
}

func startObservabilityServer(port string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("SYNC ALIVE"))
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	logger.Info("📊 Observability server online", "url", "http://localhost:"+port+"/metrics")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Observability server failed", "error", err)
	}
}
