// Package main provides the foliod daemon - a multi-chain portfolio tracker.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/foliolabs/folio/internal/aggregator"
	"github.com/foliolabs/folio/internal/asset"
	"github.com/foliolabs/folio/internal/chain"
	"github.com/foliolabs/folio/internal/config"
	"github.com/foliolabs/folio/internal/discovery"
	"github.com/foliolabs/folio/internal/driver"
	"github.com/foliolabs/folio/internal/history"
	"github.com/foliolabs/folio/internal/library"
	"github.com/foliolabs/folio/internal/price"
	"github.com/foliolabs/folio/internal/provider"
	"github.com/foliolabs/folio/internal/rpc"
	"github.com/foliolabs/folio/internal/storage"
	"github.com/foliolabs/folio/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	// Parse flags
	var (
		dataDir     = flag.String("data-dir", "~/.folio", "Data directory")
		apiAddr     = flag.String("api", "", "JSON-RPC API address, overrides config")
		logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	// Set up logging (initial, may be overridden by config)
	log := logging.New(&logging.Config{
		Level:      *logLevel,
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("foliod %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	// Load .env files so API keys reach the config layer. A missing
	// file is fine.
	dataPath := config.ExpandPath(*dataDir)
	godotenv.Load(filepath.Join(dataPath, ".env"))
	godotenv.Load(".env")

	cfg, err := config.Load(*dataDir)
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}

	// Apply CLI overrides (CLI flags take precedence over config file)
	if *apiAddr != "" {
		cfg.RPC.Listen = *apiAddr
	}
	cfg.Logging.Level = *logLevel
	cfg.Storage.DataDir = *dataDir

	// Update logging with config level and format
	log = logging.New(&logging.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	log.Info("Config loaded", "path", config.Path(dataPath))

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage
	store, err := storage.New(&storage.Config{DataDir: dataPath})
	if err != nil {
		log.Fatal("Failed to initialize storage", "error", err)
	}
	defer store.Close()
	log.Info("Storage initialized", "path", dataPath)

	// Seed the token library with the predefined catalog
	lib := library.New(store, log)
	if err := lib.Seed(); err != nil {
		log.Fatal("Failed to seed token library", "error", err)
	}
	log.Info("Token library seeded", "chains", len(chain.List()))

	// Initialize the provider registry and balance aggregator
	registry := provider.NewRegistry(&cfg.Aggregator, log)
	agg := aggregator.New(registry, &cfg.Aggregator, log)
	log.Info("Aggregator initialized", "enabled", agg.Enabled())

	// Initialize price engine and chain driver manager
	prices := price.New(&cfg.Price, log)
	drivers := driver.NewManager(cfg, log)

	// Initialize discovery and asset services
	disc := discovery.New(cfg, agg, drivers, log)
	assets := asset.New(store, lib, agg, drivers, prices, log)

	// Initialize history scheduler
	scheduler := history.New(&cfg.History, store, assets, drivers, log)
	if cfg.History.AutoUpdate {
		scheduler.Start(ctx)
	} else {
		log.Info("History auto-update disabled")
	}

	// Start RPC server
	rpcServer := rpc.NewServer(cfg, &rpc.Services{
		Store:      store,
		Drivers:    drivers,
		Aggregator: agg,
		Prices:     prices,
		Library:    lib,
		Discovery:  disc,
		Assets:     assets,
		Scheduler:  scheduler,
	})
	if err := rpcServer.Start(cfg.RPC.Listen); err != nil {
		log.Fatal("Failed to start RPC server", "error", err)
	}

	printBanner(log, cfg, dataPath)

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	log.Info("Shutting down...")

	// Graceful shutdown
	cancel()

	if cfg.History.AutoUpdate {
		scheduler.Stop()
	}
	if err := rpcServer.Stop(); err != nil {
		log.Error("Error stopping RPC server", "error", err)
	}

	log.Info("Goodbye!")
}

func printBanner(log *logging.Logger, cfg *config.Config, dataPath string) {
	log.Info("")
	log.Info("=================================================")
	log.Info("  Folio Portfolio Daemon")
	log.Infof("  Version: %s", version)
	log.Info("=================================================")
	log.Info("")
	log.Infof("  API: http://%s", cfg.RPC.Listen)
	if cfg.RPC.EnableWS {
		log.Infof("  WS:  ws://%s/ws", cfg.RPC.Listen)
	}
	log.Info("")
	log.Infof("  Chains: %d supported", len(chain.List()))
	log.Infof("  Aggregator: %v | History auto-update: %v", cfg.Aggregator.Enabled, cfg.History.AutoUpdate)
	log.Infof("  Data dir: %s", dataPath)
	log.Info("")
	log.Info("=================================================")
	log.Info("")
}
