// FraudLens - Transparent, rule-based fraud risk scoring.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/fraudlens/internal/api"
	"github.com/opensource-finance/fraudlens/internal/batch"
	"github.com/opensource-finance/fraudlens/internal/bus"
	"github.com/opensource-finance/fraudlens/internal/cache"
	"github.com/opensource-finance/fraudlens/internal/config"
	"github.com/opensource-finance/fraudlens/internal/domain"
	"github.com/opensource-finance/fraudlens/internal/logging"
	"github.com/opensource-finance/fraudlens/internal/scoring"
	"github.com/opensource-finance/fraudlens/internal/session"
	"github.com/opensource-finance/fraudlens/internal/tracing"
	"github.com/opensource-finance/fraudlens/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// .env is optional
	config.LoadEnv()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)
	slog.SetDefault(logger)

	slog.Info("starting fraudlens",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"ngn_per_usd", cfg.Scoring.NGNPerUSD,
		"batch_workers", cfg.Batch.Workers,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, Version, logger)
	if err != nil {
		slog.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	// Session store
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type, "two_phase", cfg.Cache.EnableTwoPhase)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	engine, err := scoring.NewEngine(cfg.Scoring)
	if err != nil {
		slog.Error("failed to initialize scoring engine", "error", err)
		os.Exit(1)
	}
	slog.Info("scoring engine initialized", "rules_count", len(engine.Rules()))

	sessions := session.NewManager(engine, cacheImpl, cfg.Session, logger)
	processor := batch.NewProcessor(engine,
		batch.WithWorkers(cfg.Batch.Workers),
		batch.WithMaxRows(cfg.Batch.MaxRows),
		batch.WithLogger(logger),
	)

	alerts := worker.NewAlertWorker(busImpl, logger)
	if err := alerts.Start(); err != nil {
		slog.Error("failed to start alert worker", "error", err)
	}

	srv := api.NewServer(cfg.Server, engine, sessions, processor, cacheImpl, busImpl, Version)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("fraudlens is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	if err := alerts.Stop(); err != nil {
		slog.Error("failed to stop alert worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Error("failed to flush traces", "error", err)
	}

	slog.Info("fraudlens shutdown complete")
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  FraudLens - transparent fraud risk scoring")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("  Rate:     1 USD = %.2f NGN\n", cfg.Scoring.NGNPerUSD)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST   /score            - Score one transaction (X-Session-ID)")
	fmt.Println("    GET    /history          - Session scoring history")
	fmt.Println("    GET    /history/export   - Session history as CSV")
	fmt.Println("    DELETE /history          - Reset the session")
	fmt.Println("    POST   /batch            - Score an uploaded CSV table")
	fmt.Println("    GET    /rules            - List scoring rules")
	fmt.Println("    GET    /labels/{score}   - Map a score to its label")
	fmt.Println("    GET    /metrics          - Prometheus metrics")
	fmt.Println("    GET    /health           - Health check")
	fmt.Println()
}
