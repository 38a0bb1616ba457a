// Kestrel - Insurance product filing audits that deploy in 60 seconds.
// Copyright (c) 2025 opensource.insurance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-insurance/kestrel/internal/api"
	"github.com/opensource-insurance/kestrel/internal/audit"
	"github.com/opensource-insurance/kestrel/internal/bus"
	"github.com/opensource-insurance/kestrel/internal/cache"
	"github.com/opensource-insurance/kestrel/internal/config"
	"github.com/opensource-insurance/kestrel/internal/domain"
	"github.com/opensource-insurance/kestrel/internal/repository"
	"github.com/opensource-insurance/kestrel/internal/rules"
	"github.com/opensource-insurance/kestrel/internal/scheduler"
	"github.com/opensource-insurance/kestrel/internal/worker"
	"github.com/spf13/cobra"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// GlobalTenantID is used for rules that apply to all tenants.
const GlobalTenantID = "*"

var (
	configPath string
	tierName   string
)

func main() {
	root := &cobra.Command{
		Use:   "kestrel",
		Short: "Insurance product filing audit engine",
		Long:  "Kestrel audits insurance product filing documents against the regulatory negative list, structured product rules and pricing benchmarks.",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("KESTREL_CONFIG"), "path to YAML config file")
	root.PersistentFlags().StringVar(&tierName, "tier", os.Getenv("KESTREL_TIER"), "deployment tier (community, pro, enterprise)")

	root.AddCommand(serveCmd())
	root.AddCommand(auditCmd())
	root.AddCommand(checkCmd())
	root.AddCommand(rulesCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*domain.Config, error) {
	tier := domain.Tier(tierName)
	if tier == "" {
		tier = domain.TierCommunity
	}
	return config.Load(configPath, tier)
}

func setupLogging(cfg domain.LoggingConfig) {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if os.Getenv("KESTREL_DEBUG") == "true" {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Kestrel HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg.Logging)

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

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Product Rule Engine
	engine, err := rules.NewEngine(cfg.Audit.MaxRuleWorkers)
	if err != nil {
		return fmt.Errorf("failed to initialize rule engine: %w", err)
	}
	defer engine.Close()

	// Load product rules from database (no hardcoded defaults - configure via API)
	if err := loadProductRulesFromDatabase(ctx, repo, engine); err != nil {
		return fmt.Errorf("failed to load product rules: %w", err)
	}
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())

	// Initialize negative list matcher and audit service
	matcher := rules.NewMatcher()
	service := audit.NewService(repo, cacheImpl, busImpl, matcher, engine, cfg.Audit)
	slog.Info("audit service initialized")

	// Initialize rule reload scheduler
	tenants := []string{GlobalTenantID}
	if envTenants := os.Getenv("KESTREL_TENANTS"); envTenants != "" {
		tenants = append(tenants, envTenants)
	}
	sched := scheduler.New(repo, cacheImpl, busImpl, engine, tenants)
	if err := sched.Start(cfg.Audit.ReloadSchedule); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || cfg.Tier == domain.TierEnterprise || os.Getenv("KESTREL_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, service)

		tenantIDs := []string{}
		if envTenants := os.Getenv("KESTREL_TENANTS"); envTenants != "" {
			tenantIDs = []string{envTenants}
		}

		if err := asyncWorker.Start(worker.Config{TenantIDs: tenantIDs}); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "tenant_count", len(tenantIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, engine, service, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
	return nil
}

// loadProductRulesFromDatabase loads product rules into the engine.
// All rules must be configured via POST /product-rules or rules import.
func loadProductRulesFromDatabase(ctx context.Context, repo domain.Repository, engine *rules.Engine) error {
	dbRules, err := repo.ListProductRules(ctx, GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list product rules from database", "error", err)
		return nil // Start with empty rules - they can be added via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading product rules from database", "count", len(dbRules))
		return engine.LoadRules(dbRules)
	}

	slog.Info("no product rules in database - configure via POST /product-rules API")
	return nil
}

func auditCmd() *cobra.Command {
	var (
		tenantID  string
		auditType string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "audit <document-file>",
		Short: "Audit a filing document and print the report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read document: %w", err)
			}

			service, cleanup, err := localService()
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := service.Run(cmd.Context(), tenantID, &audit.Request{
				Content:   string(content),
				AuditType: auditType,
			})
			if err != nil {
				return err
			}

			if asJSON {
				return printJSON(result)
			}
			fmt.Println(result.Report)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", api.DefaultTenantID, "tenant ID")
	cmd.Flags().StringVar(&auditType, "type", domain.AuditFull, "audit type (full, negative-only)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}

func checkCmd() *cobra.Command {
	var tenantID string

	cmd := &cobra.Command{
		Use:   "check <document-file>",
		Short: "Run only the negative list check over a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read document: %w", err)
			}

			service, cleanup, err := localService()
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := service.Check(cmd.Context(), tenantID, string(content))
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", api.DefaultTenantID, "tenant ID")
	return cmd
}

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage rule configurations",
	}
	cmd.AddCommand(rulesImportCmd())
	return cmd
}

func rulesImportCmd() *cobra.Command {
	var tenantID string

	cmd := &cobra.Command{
		Use:   "import <rule-file>",
		Short: "Import negative list and product rules from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := rules.LoadFile(args[0])
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			setupLogging(cfg.Logging)

			repo, err := repository.New(cfg.Repository)
			if err != nil {
				return fmt.Errorf("failed to initialize repository: %w", err)
			}
			defer repo.Close()

			engine, err := rules.NewEngine(cfg.Audit.MaxRuleWorkers)
			if err != nil {
				return err
			}
			defer engine.Close()

			stats, err := rules.Import(cmd.Context(), repo, engine, tenantID, file)
			if err != nil {
				return err
			}

			fmt.Printf("Imported %d negative rules and %d product rules for tenant %s\n",
				stats.NegativeRules, stats.ProductRules, tenantID)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", GlobalTenantID, "tenant ID to import rules under")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("kestrel %s (commit %s, built %s)\n", Version, Commit, BuildDate)
		},
	}
}

// localService builds an audit service backed by the configured repository
// for one-shot CLI runs. No event bus is wired so nothing is published.
func localService() (*audit.Service, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	setupLogging(cfg.Logging)

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize repository: %w", err)
	}

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		repo.Close()
		return nil, nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	engine, err := rules.NewEngine(cfg.Audit.MaxRuleWorkers)
	if err != nil {
		cacheImpl.Close()
		repo.Close()
		return nil, nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := loadProductRulesFromDatabase(ctx, repo, engine); err != nil {
		slog.Warn("failed to load product rules", "error", err)
	}

	matcher := rules.NewMatcher()
	service := audit.NewService(repo, cacheImpl, nil, matcher, engine, cfg.Audit)

	cleanup := func() {
		engine.Close()
		cacheImpl.Close()
		repo.Close()
	}
	return service, cleanup, nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               KESTREL                     ║")
	fmt.Println("  ║     Filing Audit Engine                   ║")
	fmt.Println("  ║      Every clause, checked.               ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /audit                 - Audit a filing document")
	fmt.Println("    POST /check                 - Negative list check only")
	fmt.Println("    GET  /audits                - List recent audits")
	fmt.Println("    GET  /audits/{id}           - Get audit by ID")
	fmt.Println("    GET  /audits/{id}/report    - Get markdown report")
	fmt.Println("    GET  /rules                 - List negative list rules")
	fmt.Println("    POST /rules                 - Create a negative list rule")
	fmt.Println("    POST /rules/reload          - Invalidate negative list cache")
	fmt.Println("    GET  /product-rules         - List product rules")
	fmt.Println("    POST /product-rules         - Create a product rule")
	fmt.Println("    POST /product-rules/reload  - Hot-reload product rules")
	fmt.Println("    GET  /health                - Health check")
	fmt.Println()
}
