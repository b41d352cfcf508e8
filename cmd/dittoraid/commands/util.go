package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoraid/internal/logger"
	"github.com/marmos91/dittoraid/internal/telemetry"
	"github.com/marmos91/dittoraid/pkg/config"
	"github.com/marmos91/dittoraid/pkg/jbod"
	"github.com/marmos91/dittoraid/pkg/metrics"
	"github.com/marmos91/dittoraid/pkg/raid"
	"github.com/marmos91/dittoraid/pkg/transport"
)

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// loadConfig loads the configuration named by --config and initializes the
// logger from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return nil, err
	}
	if err := InitLogger(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// initObservability starts tracing and profiling as configured, tagged
// with role. The returned function flushes and stops both.
func initObservability(ctx context.Context, cfg *config.Config, role string) (func(), error) {
	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "dittoraid",
		ServiceVersion: Version,
		Role:           role,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "dittoraid",
		ServiceVersion: Version,
		Role:           role,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		_ = telemetryShutdown(ctx)
		return nil, fmt.Errorf("failed to initialize profiling: %w", err)
	}

	return func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("Profiling shutdown error", logger.Err(err))
		}
		// ctx may already be cancelled; the exporter still needs to flush.
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("Telemetry shutdown error", logger.Err(err))
		}
	}, nil
}

// checkLength rejects transfers larger than one array call allows before
// any buffer is sized from them.
func checkLength(op string, length uint64) error {
	if length > jbod.MaxIOSize {
		return jbod.NewError(jbod.CodeOutOfRange, op, "length %d exceeds the %d byte limit", length, jbod.MaxIOSize)
	}
	return nil
}

// clientOptions are the connection flags shared by read, write and trace.
type clientOptions struct {
	server    string
	cacheSize int
	noCache   bool
}

func (o *clientOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.server, "server", "s", "", "device server host:port (default: server.address:server.port from config)")
	cmd.Flags().IntVar(&o.cacheSize, "cache-size", 0, "enable the block cache with this many entries (2-4096)")
	cmd.Flags().BoolVar(&o.noCache, "no-cache", false, "disable the block cache even if the config enables it")
}

// apply folds the flags into cfg.
func (o *clientOptions) apply(cfg *config.Config) {
	if o.cacheSize > 0 {
		cfg.Cache.Enabled = true
		cfg.Cache.Capacity = o.cacheSize
	}
	if o.noCache {
		cfg.Cache.Enabled = false
	}
}

func (o *clientOptions) addr(cfg *config.Config) string {
	if o.server != "" {
		return o.server
	}
	return cfg.Server.Addr()
}

// session is an open connection to the device with the array on top.
type session struct {
	client *transport.Client
	array  *raid.Array
}

// openSession dials the device and builds the array with the configured
// cache.
func openSession(ctx context.Context, cfg *config.Config, opts *clientOptions) (*session, error) {
	o := *opts
	o.apply(cfg)

	blockCache, err := config.CreateCache(cfg.Cache, metrics.NewCacheMetrics())
	if err != nil {
		return nil, err
	}

	client, err := transport.Dial(ctx, o.addr(cfg), cfg.Server.DialTimeout, metrics.NewTransportMetrics())
	if err != nil {
		return nil, err
	}
	return &session{client: client, array: raid.New(client, blockCache)}, nil
}

// mount mounts the array and, when write is set, acquires write
// permission. The returned function undoes both.
func (s *session) mount(ctx context.Context, write bool) (func(), error) {
	if err := s.array.Mount(ctx); err != nil {
		return nil, fmt.Errorf("mount: %w", err)
	}
	if write {
		if err := s.array.GrantWrite(ctx); err != nil {
			_ = s.array.Unmount(ctx)
			return nil, fmt.Errorf("write permission: %w", err)
		}
	}

	return func() {
		if write {
			if err := s.array.RevokeWrite(ctx); err != nil {
				logger.Warn("Failed to revoke write permission", logger.Err(err))
			}
		}
		if err := s.array.Unmount(ctx); err != nil {
			logger.Warn("Failed to unmount array", logger.Err(err))
		}
	}, nil
}

func (s *session) close() {
	if s.array.CacheEnabled() {
		s.array.Cache().LogHitRate()
	}
	if err := s.client.Close(); err != nil {
		logger.Debug("Error closing device connection", logger.Err(err))
	}
}
