package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/strata-db/strata/internal/config"
	"github.com/strata-db/strata/internal/metrics"
	"github.com/strata-db/strata/internal/server"
	"github.com/strata-db/strata/internal/service"
	"github.com/strata-db/strata/internal/storage/diskmanager"
	"github.com/strata-db/strata/internal/storage/journal"
	"github.com/strata-db/strata/internal/storage/segment"
	"github.com/strata-db/strata/internal/validation"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Configuration loaded",
		zap.String("instance_id", cfg.Server.InstanceID),
		zap.String("data_dir", cfg.Storage.DataDir))

	// Create data directories
	if err := os.MkdirAll(cfg.Storage.SegmentDir, 0755); err != nil {
		logger.Fatal("Failed to create segment directory", zap.Error(err))
	}
	if err := os.MkdirAll(cfg.Storage.JournalDir, 0755); err != nil {
		logger.Fatal("Failed to create journal directory", zap.Error(err))
	}

	// Initialize metrics
	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry, cfg.Server.InstanceID)

	// Initialize storage
	diskCfg := diskmanager.DefaultConfig(cfg.Storage.DataDir)
	diskCfg.FullThreshold = cfg.Storage.MaxDiskUsage * 100
	disk, err := diskmanager.NewDiskManager(diskCfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize disk manager", zap.Error(err))
	}

	segmentStore, err := segment.NewStore(cfg.Storage.SegmentDir, disk, logger)
	if err != nil {
		logger.Fatal("Failed to initialize segment store", zap.Error(err))
	}
	if err := segmentStore.Open(context.Background()); err != nil {
		logger.Fatal("Failed to open segment store", zap.Error(err))
	}

	jnl, err := journal.NewJournal(
		&journal.Config{
			SegmentSize: cfg.Journal.SegmentSize,
			SyncWrites:  cfg.Journal.SyncWrites,
		},
		cfg.Storage.JournalDir,
		logger,
	)
	if err != nil {
		logger.Fatal("Failed to initialize catalog journal", zap.Error(err))
	}
	defer jnl.Close()

	// Initialize services
	validator := validation.NewValidator()

	catalogSvc := service.NewCatalogService(
		&service.CatalogConfig{DefaultRetention: cfg.Retention.DefaultWindow},
		jnl,
		segmentStore,
		logger,
	)
	resolverSvc := service.NewResolverService(catalogSvc, logger, m)
	cloneSvc := service.NewCloneService(catalogSvc, resolverSvc, validator, logger, m)
	accessSvc := service.NewAccessService(jnl, logger, m)

	cacheSvc := service.NewCacheService(
		&service.CacheConfig{
			MaxSize:         cfg.Cache.MaxSize,
			FrequencyWeight: cfg.Cache.FrequencyWeight,
			RecencyWeight:   cfg.Cache.RecencyWeight,
			AdaptiveWindow:  cfg.Cache.AdaptiveWindow,
		},
		logger,
		m,
	)

	storeSvc := service.NewStoreService(
		catalogSvc,
		resolverSvc,
		cloneSvc,
		accessSvc,
		cacheSvc,
		segmentStore,
		validator,
		logger,
		m,
	)

	// Recover from the catalog journal
	logger.Info("Starting catalog recovery")
	if err := catalogSvc.Recover(context.Background()); err != nil {
		logger.Fatal("Failed to recover catalog", zap.Error(err))
	}
	if err := accessSvc.Recover(context.Background()); err != nil {
		logger.Fatal("Failed to recover access control", zap.Error(err))
	}
	storeSvc.PublishStats()

	// Start retention enforcement
	gcSvc := service.NewGCService(
		&service.GCConfig{
			Interval:   cfg.Retention.PurgeInterval,
			MaxWorkers: cfg.GC.Workers,
			QueueSize:  cfg.GC.QueueSize,
		},
		catalogSvc,
		logger,
		m,
	)
	gcSvc.Start()
	defer gcSvc.Stop(cfg.Server.ShutdownTimeout)

	// Start ops endpoint
	var opsServer *server.OpsServer
	if cfg.Metrics.Enabled {
		opsServer = server.NewOpsServer(
			&server.OpsConfig{
				Port:        cfg.Metrics.Port,
				MetricsPath: cfg.Metrics.Path,
			},
			registry,
			disk,
			m,
			func() any { return storeSvc.Snapshot() },
			logger,
		)
		opsServer.Start()
	}

	logger.Info("Store started",
		zap.String("instance_id", cfg.Server.InstanceID),
		zap.Int("tables", catalogSvc.TableCount()))

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down gracefully...")

	if opsServer != nil {
		if err := opsServer.Stop(); err != nil {
			logger.Error("Failed to stop ops server", zap.Error(err))
		}
	}
}

// initLogger initializes the zap logger from logging configuration
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zapCfg.Level = level
	}
	return zapCfg.Build()
}
