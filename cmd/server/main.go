package main

import (
	"context"
	"fmt"
	"log"
	"os"
	ossignal "os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/opswatch/internal/api"
	"github.com/good-yellow-bee/opswatch/internal/api/health"
	"github.com/good-yellow-bee/opswatch/internal/billing"
	"github.com/good-yellow-bee/opswatch/internal/cases"
	"github.com/good-yellow-bee/opswatch/internal/engine"
	"github.com/good-yellow-bee/opswatch/internal/notifier"
	"github.com/good-yellow-bee/opswatch/internal/signal"
	"github.com/good-yellow-bee/opswatch/internal/storage"
	"github.com/good-yellow-bee/opswatch/pkg/config"
)

var (
	configFile string
	httpAddr   string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "opswatch-server",
	Short: "opswatch server - operational signal correlation and alerting",
	Long: `opswatch-server aggregates operational signals, evaluates alert
rules, dispatches webhook notifications, correlates billing events,
and manages incident cases.`,
	RunE: runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("opswatch-server %s\n", config.Version)
		fmt.Printf("  commit: %s\n", config.Commit)
		fmt.Printf("  built:  %s\n", config.BuildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (optional)")
	rootCmd.PersistentFlags().StringVarP(&httpAddr, "address", "a", "", "HTTP listen address")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	var cfg *Config

	// Load configuration from file if provided
	if configFile != "" {
		var err error
		cfg, err = LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = DefaultConfig()
	}

	// Override with CLI flags
	if httpAddr != "" {
		cfg.Server.Address = httpAddr
	}
	cfg.Verbose = verbose

	// Secrets come from the environment, never the config file
	ackSecret := os.Getenv("OPSWATCH_ACK_SECRET")
	if ackSecret == "" {
		return fmt.Errorf("OPSWATCH_ACK_SECRET environment variable is required")
	}
	webhookSecret := os.Getenv("OPSWATCH_WEBHOOK_SECRET")
	if cfg.Notifier.WebhookURL != "" && webhookSecret == "" {
		return fmt.Errorf("OPSWATCH_WEBHOOK_SECRET environment variable is required when notifier.webhook_url is set")
	}

	// Auto-create data directory
	dbDir := filepath.Dir(cfg.Database.Path)
	if err := os.MkdirAll(dbDir, 0750); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	// Control-plane store
	store := storage.NewSQLiteStorage(cfg.Database.Path)
	if err := store.Open(); err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	log.Printf("database initialized at %s", cfg.Database.Path)

	// Activity event store
	var events storage.EventStorage
	if cfg.ClickHouse.Enabled {
		ch := storage.NewClickHouseEventStorage(&storage.ClickHouseConfig{
			Addresses:     cfg.ClickHouse.Addresses,
			Database:      cfg.ClickHouse.Database,
			Username:      cfg.ClickHouse.Username,
			Password:      cfg.ClickHouse.Password,
			Compression:   cfg.ClickHouse.Compression,
			RetentionDays: cfg.ClickHouse.RetentionDays,
		})
		if err := ch.Open(); err != nil {
			return fmt.Errorf("open clickhouse: %w", err)
		}
		defer ch.Close()
		if err := ch.Migrate(); err != nil {
			return fmt.Errorf("migrate clickhouse: %w", err)
		}
		log.Printf("clickhouse event store ready (%v)", cfg.ClickHouse.Addresses)
		events = ch
	} else {
		log.Printf("clickhouse disabled, using in-memory event store")
		events = storage.NewMemoryEventStorage()
	}

	// Setup signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	ossignal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("received signal %v, shutting down...", sig)
		cancel()
	}()

	// Thresholds: hot-reloaded override file or static defaults
	var thresholds engine.ThresholdSource
	if cfg.Evaluation.ThresholdsFile != "" {
		watcher, err := signal.NewThresholdWatcher(cfg.Evaluation.ThresholdsFile)
		if err != nil {
			return fmt.Errorf("watch thresholds file: %w", err)
		}
		defer watcher.Close()
		go watcher.Run(ctx)
		thresholds = watcher
	} else {
		thresholds = engine.StaticThresholds(signal.DefaultThresholds())
	}

	// Notification pipeline
	ackTokens := notifier.NewAckTokenService(ackSecret)
	var sink *notifier.Sink
	if cfg.Notifier.WebhookURL != "" {
		var err error
		sink, err = notifier.NewSink(notifier.SinkConfig{
			URL:        cfg.Notifier.WebhookURL,
			Secret:     webhookSecret,
			AckBaseURL: cfg.Notifier.AckBaseURL,
			Timeout:    time.Duration(cfg.Notifier.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("configure webhook sink: %w", err)
		}
	}
	dispatcher := notifier.NewDispatcher(sink, ackTokens, store.AlertStates(), store.Deliveries(), store.Audit(), notifier.Options{
		IncludeResolutions: cfg.Notifier.IncludeResolutions,
		Cooldown:           cfg.Cooldown(),
	})

	// Services
	counts := signal.NewCountsProvider(events, cfg.Evaluation.CriticalRoutes)
	caseService := cases.NewService(store.Cases(), store.Audit())
	eng := engine.New(counts, thresholds, store.AlertStates(), store.AlertEvents(), dispatcher, caseService, cfg.Evaluation.WindowMinutes)
	billingStatus := billing.NewStatusService(events, store.Ledger(), nil)

	// Background evaluation loop
	go eng.Run(ctx, cfg.EvalInterval())

	// HTTP API
	srv, err := api.New(&api.Config{
		Address:           cfg.Server.Address,
		RateLimitPerIP:    cfg.Server.RateLimitPerIP,
		RateLimitPerActor: cfg.Server.RateLimitPerActor,
		WindowMinutes:     cfg.Evaluation.WindowMinutes,
		Verbose:           cfg.Verbose,
	}, api.Deps{
		Storage:       store,
		Events:        events,
		Counts:        counts,
		Engine:        eng,
		Thresholds:    thresholds,
		BillingStatus: billingStatus,
		Cases:         caseService,
		AckTokens:     ackTokens,
	})
	if err != nil {
		return fmt.Errorf("create API server: %w", err)
	}

	srv.RegisterHealthChecker(health.NewSQLiteChecker(store.DB()))
	if ch, ok := events.(*storage.ClickHouseEventStorage); ok {
		srv.RegisterHealthChecker(health.NewClickHouseChecker(ch))
	}

	log.Printf("starting opswatch-server %s", config.Version)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("run server: %w", err)
	}

	log.Printf("server stopped")
	return nil
}
