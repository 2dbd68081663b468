package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"bakeops/internal/actions"
	"bakeops/internal/api"
	"bakeops/internal/cache"
	"bakeops/internal/config"
	"bakeops/internal/core"
	"bakeops/internal/engine"
	"bakeops/internal/infrastructure/metrics"
	"bakeops/internal/notify"
	"bakeops/internal/reconcile"
	"bakeops/internal/snapshot"
	"bakeops/internal/stream"
	"bakeops/pkg/concurrency"
	"bakeops/pkg/logging"
	"bakeops/pkg/telemetry"
)

var (
	// Version information (set via build flags)
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/opsagent.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("opsagent version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewZapLogger(cfg.System.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	logger.Info("Starting opsagent",
		"version", version,
		"role", cfg.App.Role,
		"branch", cfg.App.BranchID,
		"kind", cfg.App.RecordKind,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("opsagent exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("opsagent shut down cleanly")
}

func run(cfg *config.Config, logger core.ILogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tel, err := telemetry.Setup("opsagent")
	if err != nil {
		return fmt.Errorf("telemetry setup: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Telemetry shutdown failed", "error", err)
		}
	}()
	if err := telemetry.InitMetrics(); err != nil {
		logger.Warn("Failed to initialize metrics exporter", "error", err)
	}

	var metricsServer *metrics.Server
	if cfg.Telemetry.EnableMetrics {
		metricsServer = metrics.NewServer(cfg.Telemetry.MetricsPort, logger)
		metricsServer.Start()
	}

	kind := core.KindReturn
	if cfg.App.RecordKind == "orders" {
		kind = core.KindOrder
	}

	apiClient := api.NewClientForBase(
		cfg.Server.APIBaseURL,
		time.Duration(cfg.Server.RequestTimeout)*time.Second,
		config.StaticToken(cfg.Server.APIToken),
		logger,
	)

	store := reconcile.NewStore(reconcile.NewState(), logger)

	sock := stream.New(stream.Config{
		URL: cfg.Server.SocketURL,
		Identity: core.Identity{
			Role:     cfg.App.Role,
			BranchID: cfg.App.BranchID,
			UserID:   cfg.App.UserID,
		},
		ReconnectWait: time.Duration(cfg.Timing.SocketReconnect) * time.Millisecond,
		PingInterval:  time.Duration(cfg.Timing.SocketPingInterval) * time.Millisecond,
		DedupWindow:   cfg.Server.SocketDedupWindow,
	}, logger)

	fetcher := snapshot.NewFetcher(apiClient, store, snapshot.Config{
		Kind:           kind,
		RequestTimeout: time.Duration(cfg.Server.RequestTimeout) * time.Second,
		SearchDebounce: time.Duration(cfg.Timing.SearchDebounce) * time.Millisecond,
	}, logger)

	sinkPool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		MaxWorkers:  cfg.Concurrency.SinkPoolSize,
		MaxCapacity: cfg.Concurrency.SinkPoolBuffer,
	}, logger)
	sinks := notify.NewSinkSet(sinkPool, logger)
	sinks.Add(notify.NewLogSink(logger))
	if cfg.Notifications.WebhookURL != "" {
		sinks.Add(notify.NewWebhookSink(cfg.Notifications.WebhookURL, 10*time.Second))
	}

	projector := notify.NewProjector(notify.Config{
		Capacity:      cfg.Notifications.Capacity,
		DedupBucket:   time.Duration(cfg.Notifications.DedupBucket) * time.Millisecond,
		BranchNameTTL: time.Duration(cfg.Cache.BranchTTL) * time.Second,
	}, sinks, nil, logger)

	coordinator := actions.NewCoordinator(apiClient, store, sock, projector, actions.Config{
		RequestTimeout: time.Duration(cfg.Server.RequestTimeout) * time.Second,
		QuietPeriod:    time.Duration(cfg.Timing.SubmitQuietPeriod) * time.Millisecond,
	}, logger)

	var snapshots *cache.SnapshotStore
	if cfg.Cache.Enabled {
		snapshots, err = cache.NewSnapshotStore(cfg.Cache.Path)
		if err != nil {
			logger.Warn("Snapshot cache disabled", "error", err, "path", cfg.Cache.Path)
			snapshots = nil
		} else {
			defer snapshots.Close()
		}
	}

	eng := engine.New(engine.Options{
		Kind:        kind,
		Store:       store,
		Stream:      sock,
		Fetcher:     fetcher,
		Coordinator: coordinator,
		Projector:   projector,
		Snapshots:   snapshots,
	}, logger)

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("engine start: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := eng.Stop(shutdownCtx); err != nil {
			logger.Warn("Engine shutdown error", "error", err)
		}
		if metricsServer != nil {
			if err := metricsServer.Stop(shutdownCtx); err != nil {
				logger.Warn("Metrics server shutdown error", "error", err)
			}
		}
		sinkPool.Stop()
		return nil
	})

	return g.Wait()
}
