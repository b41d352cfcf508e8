package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Config holds logger configuration
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or file path
}

var (
	// level is shared by every handler built below, so a level change
	// never needs a rebuild. The zero value is INFO.
	level slog.LevelVar

	mu      sync.RWMutex
	format            = "text"
	output  io.Writer = os.Stdout
	color   bool
	logFile *os.File
	slogger *slog.Logger
)

func init() {
	color = isTerminal(os.Stdout.Fd())
	rebuildLocked()
}

// parseLevel maps DEBUG, INFO, WARN and ERROR in any case to slog levels.
func parseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARN":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// Init applies cfg. Empty fields keep their current value. Output can be
// "stdout", "stderr", or a file path opened for appending; a file opened by
// an earlier Init is closed once the new output is in place.
func Init(cfg Config) error {
	var lvl slog.Level
	if cfg.Level != "" {
		var err error
		if lvl, err = parseLevel(cfg.Level); err != nil {
			return err
		}
	}
	newFormat := strings.ToLower(cfg.Format)
	if newFormat != "" && newFormat != "text" && newFormat != "json" {
		return fmt.Errorf("unknown log format %q", cfg.Format)
	}

	mu.Lock()
	defer mu.Unlock()

	if cfg.Output != "" {
		w, isTTY, f, err := openOutput(cfg.Output)
		if err != nil {
			return err
		}
		if logFile != nil {
			_ = logFile.Close()
		}
		output, color, logFile = w, isTTY, f
	}
	if newFormat != "" {
		format = newFormat
	}
	if cfg.Level != "" {
		level.Set(lvl)
	}
	rebuildLocked()
	return nil
}

func openOutput(name string) (w io.Writer, isTTY bool, f *os.File, err error) {
	switch strings.ToLower(name) {
	case "stdout":
		return os.Stdout, isTerminal(os.Stdout.Fd()), nil, nil
	case "stderr":
		return os.Stderr, isTerminal(os.Stderr.Fd()), nil, nil
	}
	f, err = os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, false, nil, fmt.Errorf("failed to open log file %q: %w", name, err)
	}
	return f, false, f, nil
}

func rebuildLocked() {
	opts := &slog.HandlerOptions{Level: &level}
	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(output, opts)
	} else {
		h = NewColorTextHandler(output, opts, color)
	}
	slogger = slog.New(h)
}

func getLogger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return slogger
}

// log emits msg with the LogContext fields of ctx (session, operation,
// trace) ahead of args.
func log(ctx context.Context, lvl slog.Level, msg string, args []any) {
	if ctx == nil {
		ctx = context.Background()
	}
	l := getLogger()
	if !l.Enabled(ctx, lvl) {
		return
	}
	l.Log(ctx, lvl, msg, appendContextFields(ctx, args)...)
}

// Debug logs at debug level with structured fields
// Usage: Debug("message", "key1", value1, "key2", value2)
func Debug(msg string, args ...any) { log(context.Background(), slog.LevelDebug, msg, args) }

// Info logs at info level with structured fields
func Info(msg string, args ...any) { log(context.Background(), slog.LevelInfo, msg, args) }

// Warn logs at warn level with structured fields
func Warn(msg string, args ...any) { log(context.Background(), slog.LevelWarn, msg, args) }

// Error logs at error level with structured fields
func Error(msg string, args ...any) { log(context.Background(), slog.LevelError, msg, args) }

// DebugCtx logs at debug level, prefixed with the LogContext in ctx
func DebugCtx(ctx context.Context, msg string, args ...any) { log(ctx, slog.LevelDebug, msg, args) }

// InfoCtx logs at info level, prefixed with the LogContext in ctx
func InfoCtx(ctx context.Context, msg string, args ...any) { log(ctx, slog.LevelInfo, msg, args) }

// WarnCtx logs at warn level, prefixed with the LogContext in ctx
func WarnCtx(ctx context.Context, msg string, args ...any) { log(ctx, slog.LevelWarn, msg, args) }

// ErrorCtx logs at error level, prefixed with the LogContext in ctx
func ErrorCtx(ctx context.Context, msg string, args ...any) { log(ctx, slog.LevelError, msg, args) }

func appendContextFields(ctx context.Context, args []any) []any {
	lc := FromContext(ctx)
	if lc == nil {
		return args
	}

	ctxArgs := make([]any, 0, 10+len(args))
	if lc.TraceID != "" {
		ctxArgs = append(ctxArgs, KeyTraceID, lc.TraceID)
	}
	if lc.SpanID != "" {
		ctxArgs = append(ctxArgs, KeySpanID, lc.SpanID)
	}
	if lc.SessionID != "" {
		ctxArgs = append(ctxArgs, KeySessionID, lc.SessionID)
	}
	if lc.Operation != "" {
		ctxArgs = append(ctxArgs, KeyOperation, lc.Operation)
	}
	if !lc.StartTime.IsZero() {
		ctxArgs = append(ctxArgs, KeyDurationMs, lc.DurationMs())
	}
	return append(ctxArgs, args...)
}

// Duration returns the time since start in milliseconds.
func Duration(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
