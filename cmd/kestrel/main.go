// Kestrel - Seller ledger analytics that deploys in 60 seconds.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opensource-finance/kestrel/internal/analysis"
	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/ledger"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/telemetry"
	"github.com/opensource-finance/kestrel/internal/worker"
	"github.com/shopspring/decimal"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Load configuration
	cfg, err := domain.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	slog.SetDefault(newLogger(cfg.Logging))

	// Amounts go over the wire as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true

	// Log startup
	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"worker", cfg.Worker.Enabled,
	)

	// Create context cancelled on SIGINT / SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Telemetry
	providers, err := telemetry.Init(ctx, cfg.Tracing, cfg.Metrics, Version)
	if err != nil {
		slog.Error("failed to initialize telemetry", "error", err)
		os.Exit(1)
	}
	metrics, err := telemetry.NewMetrics(providers.Meter)
	if err != nil {
		slog.Error("failed to create metrics", "error", err)
		os.Exit(1)
	}

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type, "two_phase", cfg.Cache.EnableTwoPhase)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Transaction Policy
	policy, err := rules.NewPolicy(cfg.Ledger.TransactionPolicy)
	if err != nil {
		slog.Error("failed to compile transaction policy", "error", err)
		os.Exit(1)
	}
	slog.Info("transaction policy loaded", "expression", policy.Expression())

	// Initialize Ledger and Analysis
	ledgerSvc, err := ledger.NewService(repo, busImpl, policy)
	if err != nil {
		slog.Error("failed to initialize ledger", "error", err)
		os.Exit(1)
	}
	coordinator := analysis.NewCoordinator(repo, analysis.WithRecorder(metrics))

	// Async analysis jobs. Results are shared through the cache so any
	// replica can answer a status query.
	jobs := worker.NewResultStore(cacheImpl, worker.DefaultResultTTL)
	if err := jobs.Start(ctx, busImpl); err != nil {
		slog.Error("failed to start job result store", "error", err)
		os.Exit(1)
	}
	defer jobs.Stop()

	var analysisWorker *worker.Worker
	if cfg.Worker.Enabled {
		analysisWorker = worker.NewWorker(busImpl, coordinator)
		if err := analysisWorker.Start(); err != nil {
			slog.Error("failed to start analysis worker", "error", err)
			os.Exit(1)
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, api.Dependencies{
		Repo:           repo,
		Cache:          cacheImpl,
		Bus:            busImpl,
		Ledger:         ledgerSvc,
		Analyzer:       coordinator,
		Policy:         policy,
		Jobs:           jobs,
		Metrics:        metrics,
		MetricsHandler: providers.Handler(),
		MetricsPath:    cfg.Metrics.Path,
		RateLimit:      cfg.RateLimit,
		IdempotencyTTL: cfg.Ledger.IdempotencyTTL,
	}, Version)

	// Start Server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal or a fatal server error
	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case err := <-serverErr:
		slog.Error("server failed", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Stop the worker after the server so accepted jobs are not orphaned
	if analysisWorker != nil {
		if err := analysisWorker.Stop(); err != nil {
			slog.Error("failed to stop analysis worker", "error", err)
		}
	}

	if err := providers.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to flush telemetry", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

func newLogger(cfg domain.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║                 KESTREL                   ║")
	fmt.Println("  ║        Seller Ledger Analytics            ║")
	fmt.Println("  ║       Who sells, how much, and when.      ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST   /api/v1/seller                 - Create a seller")
	fmt.Println("    PUT    /api/v1/seller                 - Update a seller")
	fmt.Println("    GET    /api/v1/seller                 - List sellers")
	fmt.Println("    GET    /api/v1/seller/{id}            - Get seller by ID")
	fmt.Println("    DELETE /api/v1/seller/{id}            - Delete a seller")
	fmt.Println("    GET    /api/v1/seller/most-productive - Top seller in a date range")
	fmt.Println("    GET    /api/v1/seller/below-threshold - Sellers under a total")
	fmt.Println("    GET    /api/v1/seller/best-period     - Busiest window for a seller")
	fmt.Println("    POST   /api/v1/transaction            - Record a transaction")
	fmt.Println("    GET    /api/v1/transaction            - List a seller's transactions")
	fmt.Println("    GET    /api/v1/transaction/{id}       - Get transaction by ID")
	fmt.Println("    POST   /api/v1/analysis               - Submit an async analysis")
	fmt.Println("    GET    /api/v1/analysis/{jobId}       - Get analysis job status")
	fmt.Println("    GET    /api/v1/policy                 - Show transaction policy")
	fmt.Println("    PUT    /api/v1/policy                 - Replace transaction policy")
	fmt.Println("    GET    /health                        - Health check")
	if cfg.Metrics.Enabled {
		fmt.Printf("    GET    %-31s - Prometheus metrics\n", cfg.Metrics.Path)
	}
	fmt.Println()
}
