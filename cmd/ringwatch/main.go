// RingWatch - Money-muling ring detection over transaction ledgers.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/opensource-finance/ringwatch/internal/analysis"
	"github.com/opensource-finance/ringwatch/internal/api"
	"github.com/opensource-finance/ringwatch/internal/bus"
	"github.com/opensource-finance/ringwatch/internal/cache"
	"github.com/opensource-finance/ringwatch/internal/config"
	"github.com/opensource-finance/ringwatch/internal/domain"
	"github.com/opensource-finance/ringwatch/internal/export"
	"github.com/opensource-finance/ringwatch/internal/logging"
	"github.com/opensource-finance/ringwatch/internal/metrics"
	"github.com/opensource-finance/ringwatch/internal/pipeline"
	"github.com/opensource-finance/ringwatch/internal/repository"
	"github.com/opensource-finance/ringwatch/internal/rules"
	"github.com/opensource-finance/ringwatch/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	configPath := flag.String("config", os.Getenv("RINGWATCH_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	slog.SetDefault(logging.New(cfg.Logging))

	slog.Info("starting ringwatch",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"export", cfg.Export.Enabled,
	)

	if !cfg.Tracing.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
	} else {
		slog.Info("tracing enabled", "service", cfg.Tracing.ServiceName)
	}

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

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	roles, err := newRoleClassifier(cfg.Detection)
	if err != nil {
		slog.Error("failed to initialize role rules", "error", err)
		os.Exit(1)
	}
	slog.Info("role classifier initialized", "rules_count", roles.RulesCount())

	collector := metrics.New()
	analyzer := pipeline.NewAnalyzer(roles, pipeline.OptionsFromConfig(cfg.Detection))
	analyzer.SetObserver(collector)

	opts := []analysis.Option{
		analysis.WithRepository(repo),
		analysis.WithCache(cacheImpl, cfg.Cache.ReportTTL),
		analysis.WithEventBus(busImpl),
	}

	if cfg.Export.Enabled {
		client, err := export.NewNeo4jClient(ctx, export.Options{
			URI:      cfg.Export.Neo4jURI,
			Database: cfg.Export.Neo4jDatabase,
			Username: cfg.Export.Neo4jUser,
			Password: cfg.Export.Neo4jPassword,
		})
		if err != nil {
			slog.Error("failed to connect to graph database", "error", err)
			os.Exit(1)
		}
		defer client.Close(context.Background())
		opts = append(opts, analysis.WithExporter(export.NewExporter(client, cfg.Export.Timeout)))
		slog.Info("graph export enabled", "uri", cfg.Export.Neo4jURI)
	}

	service := analysis.NewService(analyzer, opts...)

	var asyncWorker *worker.Worker
	if cfg.Worker.Enabled {
		asyncWorker = worker.NewWorker(busImpl, service)

		workerCfg := worker.Config{
			TenantIDs:   cfg.Worker.Tenants,
			Concurrency: cfg.Worker.Concurrency,
		}

		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
			asyncWorker = nil
		} else {
			slog.Info("async worker started", "tenant_count", len(cfg.Worker.Tenants))
		}
	}

	srv := api.NewServer(cfg.Server, api.Deps{
		Service: service,
		Repo:    repo,
		Cache:   cacheImpl,
		Bus:     busImpl,
		Roles:   roles,
	}, collector.Handler(), Version)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("ringwatch is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop accepting requests before draining the worker
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	slog.Info("ringwatch shutdown complete")
}

// newRoleClassifier loads role rules from the configured file, or the
// built-in set when none is given.
func newRoleClassifier(cfg domain.DetectionConfig) (*rules.RoleClassifier, error) {
	if cfg.RoleRulesPath == "" {
		return rules.NewDefaultClassifier()
	}
	loaded, err := rules.LoadRoleRules(cfg.RoleRulesPath)
	if err != nil {
		return nil, err
	}
	slog.Info("loaded role rules", "path", cfg.RoleRulesPath, "count", len(loaded))
	return rules.NewRoleClassifier(loaded, 0)
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               RINGWATCH                   ║")
	fmt.Println("  ║     Money-Muling Ring Detection           ║")
	fmt.Println("  ║      Follow the money in circles.         ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /analyze                      - Analyze a ledger (JSON or CSV)")
	fmt.Println("    POST /analyses                     - Queue a ledger for async analysis")
	fmt.Println("    GET  /reports                      - List stored reports")
	fmt.Println("    GET  /reports/{id}                 - Get report by ID")
	fmt.Println("    GET  /reports/{id}/rings/{ringId}  - Get one ring of a report")
	fmt.Println("    GET  /accounts/{id}/rings          - Rings an account belonged to")
	fmt.Println("    GET  /rules                        - List role rules")
	fmt.Println("    POST /rules/validate               - Validate a role rule")
	fmt.Println("    POST /rules/reload                 - Replace role rules")
	fmt.Println("    GET  /health                       - Health check")
	fmt.Println("    GET  /metrics                      - Prometheus metrics")
	fmt.Println()
}
