// CredBud - loan applications scored in milliseconds.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/credbud/internal/api"
	"github.com/opensource-finance/credbud/internal/assessment"
	"github.com/opensource-finance/credbud/internal/banks"
	"github.com/opensource-finance/credbud/internal/bus"
	"github.com/opensource-finance/credbud/internal/cache"
	"github.com/opensource-finance/credbud/internal/config"
	"github.com/opensource-finance/credbud/internal/domain"
	"github.com/opensource-finance/credbud/internal/repository"
	"github.com/opensource-finance/credbud/internal/rules"
	"github.com/opensource-finance/credbud/internal/velocity"
	"github.com/opensource-finance/credbud/internal/worker"
	"golang.org/x/sync/errgroup"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to credbud.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	slog.SetDefault(config.NewLogger(cfg.Logging, os.Stdout))

	slog.Info("starting credbud",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"async", cfg.Processing.Async,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("credbud stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("credbud shutdown complete")
}

func run(ctx context.Context, cfg *domain.Config) error {
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	velocitySvc := velocity.NewService(repo, cacheImpl,
		cfg.Processing.VelocityWindow, cfg.Processing.MaxApplicationsPerWindow)

	engine, err := rules.NewEngine(velocitySvc.RecentApplications, cfg.Processing.MaxWorkers)
	if err != nil {
		return fmt.Errorf("failed to initialize rule engine: %w", err)
	}
	defer engine.Close()

	if err := loadPolicies(ctx, repo, engine); err != nil {
		return err
	}
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())

	processor := assessment.NewProcessor(nil, engine)
	processor.EscalateOnFail = cfg.Processing.PolicyEscalation

	catalog := banks.Default()
	if cfg.Banks.CatalogPath != "" {
		catalog, err = banks.Load(cfg.Banks.CatalogPath)
		if err != nil {
			return fmt.Errorf("failed to load bank catalog: %w", err)
		}
		slog.Info("bank catalog loaded", "path", cfg.Banks.CatalogPath, "banks", len(catalog.All()))
	}

	pipeline := worker.NewWorker(busImpl, repo, cacheImpl, processor, cfg.Processing.BehaviorTTL)
	if cfg.Processing.Async {
		if err := pipeline.Start(); err != nil {
			return fmt.Errorf("failed to start worker: %w", err)
		}
		defer func() {
			if err := pipeline.Stop(); err != nil {
				slog.Error("failed to stop worker", "error", err)
			}
		}()
		slog.Info("async worker started")
	}

	srv := api.NewServer(cfg.Server, api.Dependencies{
		Repo:      repo,
		Cache:     cacheImpl,
		Bus:       busImpl,
		Engine:    engine,
		Processor: processor,
		Pipeline:  pipeline,
		Velocity:  velocitySvc,
		Catalog:   catalog,
	}, api.Options{
		Version:        Version,
		Async:          cfg.Processing.Async,
		MaxUploadBytes: cfg.Upload.MaxBytes,
		BehaviorTTL:    cfg.Processing.BehaviorTTL,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
		return nil
	})

	slog.Info("credbud is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)
	printBanner(cfg, Version, velocitySvc.Window())

	return g.Wait()
}

// loadPolicies loads stored policy rules. An empty store is seeded with
// the built-in policies so a fresh install evaluates something.
func loadPolicies(ctx context.Context, repo domain.Repository, engine *rules.Engine) error {
	stored, err := repo.ListPolicyRules(ctx)
	if err != nil {
		return fmt.Errorf("failed to list policy rules: %w", err)
	}

	if len(stored) == 0 {
		stored = rules.DefaultPolicies()
		for _, rule := range stored {
			if err := repo.SavePolicyRule(ctx, rule); err != nil {
				return fmt.Errorf("failed to seed policy %s: %w", rule.ID, err)
			}
		}
		slog.Info("seeded built-in policies", "count", len(stored))
	}

	return engine.LoadRules(stored)
}

func printBanner(cfg *domain.Config, version string, window time.Duration) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║                 CREDBUD                   ║")
	fmt.Println("  ║      Loan Scoring & Statement Analysis    ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("  Velocity: window %s\n", window)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /api/loans            - Apply for a loan")
	fmt.Println("    GET  /api/loans            - List your applications")
	fmt.Println("    POST /api/score            - Score without saving")
	fmt.Println("    POST /api/statements       - Upload a bank statement")
	fmt.Println("    GET  /api/behavior         - Financial behaviour summary")
	fmt.Println("    GET  /api/policies         - List policy rules")
	fmt.Println("    POST /api/policies/reload  - Hot-reload policy rules")
	fmt.Println("    GET  /api/banks/top        - Lowest interest rates")
	fmt.Println("    GET  /health               - Health check")
	fmt.Println("    GET  /metrics              - Prometheus metrics")
	fmt.Println()
}
