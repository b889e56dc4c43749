package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"arunlabs/synapse/pkg/backend"
	"arunlabs/synapse/pkg/config"
	"arunlabs/synapse/pkg/health"
	"arunlabs/synapse/pkg/models"
	"arunlabs/synapse/pkg/routing"
	"arunlabs/synapse/pkg/server"
	"arunlabs/synapse/pkg/telemetry/logging"
	"arunlabs/synapse/pkg/telemetry/metrics"
	"arunlabs/synapse/pkg/terminalfeed"
	"arunlabs/synapse/pkg/voices"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Synapse gateway",
	Long: `Start the Synapse gateway with the specified configuration.

The gateway listens on the configured address, proxies inference traffic to
the configured backends, and serves the model, voice, and terminal feed APIs.

Examples:
  # Start with default config
  synapse run

  # Start with custom config
  synapse run --config /etc/synapse/backends.yaml

  # Override listen address
  synapse run --listen 0.0.0.0:8080

  # Validate config without starting
  synapse run --dry-run`,
	RunE: runGateway,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the gateway")
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return err
	}
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.LogLevel = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.LogLevel = "debug"
	}

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	baseLogger, err := logging.New(cfg.Telemetry.LogLevel, cfg.Telemetry.LogFormat, nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	collector := metrics.NewCollector(cfg.Telemetry.Metrics, nil)

	// Terminal feed with optional cross-replica bus.
	var bus terminalfeed.Bus
	var redisBus *terminalfeed.RedisBus
	if cfg.TerminalFeed.Mode == "live" && cfg.TerminalFeed.BusMode == "redis" {
		redisBus = terminalfeed.NewRedisBus(
			cfg.TerminalFeed.RedisAddr,
			cfg.TerminalFeed.RedisChannel,
			cfg.TerminalFeed.InstanceID,
			baseLogger,
		)
		bus = redisBus
	}
	feed := terminalfeed.NewFeed(terminalfeed.Config{
		BufferSize:          cfg.TerminalFeed.BufferSize,
		BacklogLines:        cfg.TerminalFeed.BacklogLines,
		SubscriberQueueSize: cfg.TerminalFeed.SubscriberQueueSize,
		MaxLineChars:        cfg.TerminalFeed.MaxLineChars,
		InstanceID:          cfg.TerminalFeed.InstanceID,
		RedactExtraPatterns: cfg.TerminalFeed.RedactExtraPatterns,
		Bus:                 bus,
		Observer:            collector,
		Logger:              baseLogger,
	})
	if redisBus != nil {
		redisBus.Start(ctx, feed)
		defer redisBus.Close()
	}

	// Mirror gateway logs into the feed when it is live.
	logger := baseLogger
	if cfg.TerminalFeed.Mode == "live" {
		logger = slog.New(terminalfeed.NewFeedHandler(baseLogger.Handler(), feed, "gateway"))
	}
	slog.SetDefault(logger)

	printBanner(cfg)

	table, err := routing.NewTable(cfg)
	if err != nil {
		return err
	}
	client := backend.NewClient(backend.Config{
		Observer: collector,
		Logger:   logger,
	})
	defer client.Close()

	// Model lifecycle.
	runtimeBackend, ok := table.Backend(cfg.Models.RuntimeBackend)
	if !ok {
		return fmt.Errorf("runtime backend %q is not in the backend registry", cfg.Models.RuntimeBackend)
	}
	store, err := models.NewProfileStore(cfg.Models.ProfileDBPath)
	if err != nil {
		return fmt.Errorf("failed to open profile store: %w", err)
	}
	defer store.Close()

	var controller models.RuntimeController
	if cfg.Models.Kubernetes.Deployment != "" {
		controller = models.NewKubeRuntimeController(
			cfg.Models.Kubernetes.Namespace,
			cfg.Models.Kubernetes.Deployment,
			cfg.Models.Kubernetes.Container,
		)
	}
	manager := models.NewManager(models.ManagerConfig{
		Client:             client,
		Runtime:            runtimeBackend,
		Store:              store,
		Controller:         controller,
		Classifier:         models.NewClassifier(cfg.Models.CoderModel, cfg.Models.GeneralModel, cfg.Models.CodingKeywords),
		SingleSlot:         !cfg.Models.MultiModel,
		PollInterval:       cfg.Models.LoadPollInterval,
		ReconfigureTimeout: cfg.Models.ReconfigureTimeout,
		Logger:             logger,
	})

	// Voice library.
	ttsBackend, _ := table.Backend(cfg.Voices.TTSBackend)
	library, err := voices.NewLibrary(voices.Config{
		Dir:               cfg.Voices.LibraryDir,
		MaxReferenceFiles: cfg.Voices.MaxReferenceFiles,
		MaxReferenceBytes: cfg.Voices.MaxReferenceBytes,
		Client:            client,
		TTSBackend:        ttsBackend,
		Logger:            logger,
	})
	if err != nil {
		return fmt.Errorf("failed to open voice library: %w", err)
	}
	if cfg.Voices.WatchLibrary {
		watcher, err := voices.NewWatcher(library, logger)
		if err != nil {
			logger.Warn("voice library watcher unavailable", "error", err)
		} else {
			watcher.Start(ctx)
			defer watcher.Close()
		}
	}

	// Health aggregation.
	aggregator := health.NewAggregator(client, table, collector, logger)
	if schedule := cfg.Telemetry.Metrics.HealthRefreshSchedule; schedule != "" {
		scheduler, err := health.NewScheduler(aggregator, schedule, logger)
		if err != nil {
			return fmt.Errorf("invalid health refresh schedule: %w", err)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	srv := server.New(server.Deps{
		Config:  cfg,
		Client:  client,
		Table:   table,
		Manager: manager,
		Voices:  library,
		Feed:    feed,
		Health:  aggregator,
		Metrics: collector,
		Logger:  logger,
	})

	logger.Info("gateway initialized",
		"backends", len(cfg.Backends),
		"routes", len(cfg.Routes),
		"instance", cfg.TerminalFeed.InstanceID,
	)
	return srv.Start(ctx)
}

func printBanner(cfg *config.Config) {
	fmt.Printf("Synapse Gateway v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Printf("✓ Configuration loaded (%d backends, %d routes)\n", len(cfg.Backends), len(cfg.Routes))
	if cfg.TerminalFeed.Mode == "live" {
		fmt.Printf("✓ Terminal feed enabled (bus: %s)\n", busModeLabel(cfg))
	}
}

func busModeLabel(cfg *config.Config) string {
	if cfg.TerminalFeed.BusMode == "" {
		return "local"
	}
	return cfg.TerminalFeed.BusMode
}
