package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoraid/internal/logger"
	"github.com/marmos91/dittoraid/internal/telemetry"
	"github.com/marmos91/dittoraid/pkg/config"
	"github.com/marmos91/dittoraid/pkg/device/server"
	"github.com/marmos91/dittoraid/pkg/metrics"
)

var (
	serveListen    string
	serveStoreType string
	serveBadgerDir string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reference JBOD device server",
	Long: `Run the reference JBOD device over TCP.

Every connection is an independent session with its own mount state,
write permission and seek cursor; all sessions share one block store.
The store is selected by device.store.type: memory (lost on exit),
badger (a local directory) or s3 (one object per written block).

When metrics.enabled is set, /metrics and /health are served on
metrics.port.

Examples:
  # Serve an in-memory array on the default port
  dittoraid serve

  # Persist blocks with badger
  dittoraid serve --store badger --badger-path /var/lib/dittoraid

  # Environment overrides
  DITTORAID_DEVICE_PORT=4000 DITTORAID_METRICS_ENABLED=true dittoraid serve`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "listen address host:port (default: device.address:device.port from config)")
	serveCmd.Flags().StringVar(&serveStoreType, "store", "", "block store type (memory|badger|s3)")
	serveCmd.Flags().StringVar(&serveBadgerDir, "badger-path", "", "badger database directory")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveStoreType != "" {
		cfg.Device.Store.Type = serveStoreType
	}
	if serveBadgerDir != "" {
		cfg.Device.Store.Badger.Path = serveBadgerDir
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopObservability, err := initObservability(ctx, cfg, telemetry.RoleDevice)
	if err != nil {
		return err
	}
	defer stopObservability()

	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint)
	}

	// The registry must exist before any metrics constructor runs.
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	blockStore, err := config.CreateBlockStore(ctx, cfg.Device.Store, metrics.NewStoreMetrics())
	if err != nil {
		return err
	}
	defer func() {
		if err := blockStore.Close(); err != nil {
			logger.Error("Block store close error", logger.Err(err))
		}
	}()

	listen := serveListen
	if listen == "" {
		listen = cfg.Device.ListenAddr()
	}
	srv := server.New(server.Config{
		Address:         listen,
		MaxConnections:  cfg.Device.MaxConnections,
		ShutdownTimeout: cfg.Device.ShutdownTimeout,
	}, blockStore, metrics.NewServerMetrics())

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Serve(ctx)
	}()

	metricsRunning := false
	metricsDone := make(chan error, 1)
	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics.Addr(), func() error {
			select {
			case <-srv.Ready():
				return nil
			default:
				return errors.New("device server not accepting connections")
			}
		})
		go func() {
			metricsDone <- metricsServer.Start(ctx)
		}()
		metricsRunning = true
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
	} else {
		logger.Info("Metrics collection disabled")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("Device server is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()
		if err := <-serverDone; err != nil {
			logger.Error("Device server shutdown error", logger.Err(err))
			return err
		}
	case err := <-serverDone:
		cancel()
		if err != nil {
			logger.Error("Device server error", logger.Err(err))
			return err
		}
	case err := <-metricsDone:
		metricsRunning = false
		cancel()
		<-serverDone
		if err != nil {
			return err
		}
	}

	// Start returns once ctx is cancelled and the HTTP server has shut down.
	if metricsRunning {
		if err := <-metricsDone; err != nil {
			logger.Warn("Metrics server shutdown error", logger.Err(err))
		}
	}

	logger.Info("Device server stopped gracefully")
	return nil
}
