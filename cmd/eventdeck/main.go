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

	"github.com/spf13/cobra"

	"github.com/eventdeck/eventdeck/internal/cluster"
	"github.com/eventdeck/eventdeck/internal/config"
	"github.com/eventdeck/eventdeck/internal/events"
	"github.com/eventdeck/eventdeck/internal/status"
)

var (
	// Version information (set via ldflags at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// Command-line flags
	configFile string
	tuningFile string
	logLevel   string
	statusPort int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "eventdeck",
	Short: "Eventdeck - Multi-Cluster Event Aggregation",
	Long:  "Aggregation engine that merges live Kubernetes event streams from multiple clusters into one bounded, sorted, queryable view",
	RunE:  run,
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information and exit")

	rootCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to config file (default: searches for config.yaml in ., ./configs, /etc/eventdeck)")
	rootCmd.Flags().StringVar(&tuningFile, "tuning", "", "Path to tuning file (default: searches for tuning.yaml in ., ./configs, /etc/eventdeck)")

	// Override flags (take precedence over config file and env vars)
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config file and EVENTDECK_LOG_LEVEL env var)")
	rootCmd.Flags().IntVar(&statusPort, "status-port", 8080, "Port for the status HTTP endpoints (0 to disable)")

	// Bind flags to viper for precedence handling
	config.BindFlags(rootCmd.Flags())
}

func run(cmd *cobra.Command, args []string) error {
	versionFlag, _ := cmd.Flags().GetBool("version")
	if versionFlag {
		fmt.Printf("eventdeck version %s\n", Version)
		fmt.Printf("  Build Time: %s\n", BuildTime)
		fmt.Printf("  Git Commit: %s\n", GitCommit)
		return nil
	}

	// Load configuration with precedence: flags > env vars > config file > defaults
	cfg, err := config.LoadWithConfigFile(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Load tuning configuration (optional - uses defaults if not found)
	tuning, err := config.LoadTuningWithFile(tuningFile)
	if err != nil {
		return fmt.Errorf("failed to load tuning configuration: %w", err)
	}

	setupLogging(cfg.LogLevel)
	printStartupBanner(cfg, config.GetConfigFile())

	manager, err := cluster.NewManager(cluster.ManagerConfig{
		Clusters:             cfg.Clusters,
		RingCapacity:         tuning.Events.RingCapacity,
		ActivityTailCapacity: tuning.Activity.TailCapacity,
		ChannelBufferSize:    tuning.Events.ChannelBufferSize,
		ReconnectInterval:    time.Duration(tuning.Stream.ReconnectIntervalSeconds) * time.Second,
		DialTimeout:          time.Duration(tuning.Stream.DialTimeoutSeconds) * time.Second,
		MaxFrameBytes:        tuning.Stream.MaxFrameBytes,
		PollInterval:         time.Duration(tuning.Poll.IntervalSeconds) * time.Second,
		Subscription: events.Subscription{
			Clusters:   cfg.Subscription.Clusters,
			Namespaces: cfg.Subscription.Namespaces,
			Types:      cfg.Subscription.Types,
			Reasons:    cfg.Subscription.Reasons,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create engine manager: %w", err)
	}

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if cfg.StatusPort > 0 {
		statusServer := status.NewServer(manager, cfg.StatusPort)
		go func() {
			slog.Info("starting status server",
				"port", cfg.StatusPort,
				"endpoint", fmt.Sprintf("http://localhost:%d/status/clusters", cfg.StatusPort))
			if err := statusServer.Start(); err != nil && err != http.ErrServerClosed {
				slog.Error("status server failed", "error", err)
			}
		}()
	} else {
		slog.Info("status server disabled", "reason", "status-port=0")
	}

	manager.Start(ctx)
	defer manager.Stop()

	slog.Info("engine manager started, aggregating events",
		"cluster_count", len(cfg.Clusters))

	<-ctx.Done()
	slog.Info("shutting down...")
	return nil
}

// setupLogging configures the global slog logger at the requested level.
func setupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// printStartupBanner logs the effective configuration at startup.
func printStartupBanner(cfg *config.Config, configPath string) {
	if configPath == "" {
		configPath = "(defaults)"
	}
	slog.Info("eventdeck starting",
		"version", Version,
		"config", configPath,
		"log_level", cfg.LogLevel,
		"status_port", cfg.StatusPort,
		"clusters", len(cfg.Clusters))
}
