package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoraid/internal/cli/output"
	"github.com/marmos91/dittoraid/internal/logger"
	"github.com/marmos91/dittoraid/internal/telemetry"
	"github.com/marmos91/dittoraid/pkg/config"
	"github.com/marmos91/dittoraid/pkg/metrics"
	"github.com/marmos91/dittoraid/pkg/workload"
)

var (
	traceStopOnError bool
	traceOutput      string
	traceMetricsAddr string
	traceOptions     clientOptions
)

var traceCmd = &cobra.Command{
	Use:   "trace FILE",
	Short: "Replay a workload trace against the array",
	Long: `Replay a workload trace and verify every READ against the bytes the
trace itself wrote.

A trace has one operation per line:

  MOUNT
  UNMOUNT
  WRITE_PERMISSION
  REVOKE_WRITE_PERMISSION
  READ <addr> <length>
  WRITE <addr> <length> <byte>

Blank lines and text after '#' are ignored. Rejected operations are
reported and the replay continues unless --stop-on-error is set. The
command fails when any READ returns bytes that differ from what was
written.

With --metrics-addr (or metrics.enabled in the config) the cache and
transport counters are served on /metrics while the trace replays.

Examples:
  # Replay with a 64-entry cache
  dittoraid trace workload.trace --cache-size 64

  # Report as JSON
  dittoraid trace workload.trace -o json

  # Expose cache and transport metrics during a long replay
  dittoraid trace workload.trace --cache-size 256 --metrics-addr :9091`,
	Args: cobra.ExactArgs(1),
	RunE: runTrace,
}

func init() {
	traceCmd.Flags().BoolVar(&traceStopOnError, "stop-on-error", false, "abort at the first rejected operation")
	traceCmd.Flags().StringVarP(&traceOutput, "output", "o", "table", "Output format (table|json|yaml)")
	traceCmd.Flags().StringVar(&traceMetricsAddr, "metrics-addr", "", "serve /metrics and /health on this address during the replay")
	traceOptions.register(traceCmd)
}

func runTrace(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(traceOutput)
	if err != nil {
		return err
	}

	ops, err := workload.ParseFile(args[0])
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	stop, err := initObservability(ctx, cfg, telemetry.RoleClient)
	if err != nil {
		return err
	}
	defer stop()

	metricsAddr := traceMetricsAddress(cfg)
	if metricsAddr != "" {
		// Collectors are bound when the session builds its cache and client.
		metrics.InitRegistry()
	}

	s, err := openSession(ctx, cfg, &traceOptions)
	if err != nil {
		return err
	}
	defer s.close()

	if metricsAddr != "" {
		stopMetrics := serveTraceMetrics(ctx, metricsAddr, s)
		defer stopMetrics()
	}

	logger.Info("Replaying trace", "file", args[0], "operations", len(ops),
		"cache", s.array.CacheEnabled())

	report, err := workload.Replay(ctx, s.array, ops, workload.Options{StopOnError: traceStopOnError})
	if report != nil {
		if perr := output.NewPrinter(cmd.OutOrStdout(), format, false).Print(report); perr != nil {
			return perr
		}
	}
	if err != nil {
		return err
	}
	if !report.Verified() {
		return fmt.Errorf("trace verification failed: %d mismatched reads", len(report.Mismatches))
	}
	return nil
}

func traceMetricsAddress(cfg *config.Config) string {
	if traceMetricsAddr != "" {
		return traceMetricsAddr
	}
	if cfg.Metrics.Enabled {
		return cfg.Metrics.Addr()
	}
	return ""
}

// serveTraceMetrics runs the metrics endpoint until the returned function
// is called. /health fails once the device connection has been dropped.
func serveTraceMetrics(ctx context.Context, addr string, s *session) func() {
	ctx, cancel := context.WithCancel(ctx)
	srv := metrics.NewServer(addr, func() error {
		if !s.client.Connected() {
			return errors.New("device connection closed")
		}
		return nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Start(ctx); err != nil {
			logger.Warn("Metrics server error", logger.Err(err))
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
