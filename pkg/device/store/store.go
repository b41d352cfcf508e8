// Package store defines the block persistence interface behind the
// reference device, plus an instrumenting wrapper.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marmos91/dittoraid/internal/logger"
	"github.com/marmos91/dittoraid/internal/telemetry"
	"github.com/marmos91/dittoraid/pkg/jbod"
)

// ErrStoreClosed is returned when operations are attempted on a closed store.
var ErrStoreClosed = errors.New("store is closed")

// Store persists whole blocks by location.
//
// Blocks never written read back as zeros; a backend must not report a
// missing block as an error.
type Store interface {
	// ReadBlock copies the block at loc into out.
	ReadBlock(ctx context.Context, loc jbod.Location, out *jbod.Block) error

	// WriteBlock replaces the block at loc with in.
	WriteBlock(ctx context.Context, loc jbod.Location, in *jbod.Block) error

	// Close releases any resources held by the store.
	Close() error
}

// Key returns the canonical "disk-<d>/block-<b>" name of a location, used
// as the object key suffix by remote backends.
func Key(loc jbod.Location) string {
	return fmt.Sprintf("disk-%02d/block-%03d", loc.Disk, loc.Block)
}

// Metrics records block store operations. A nil Metrics disables recording.
type Metrics interface {
	ObserveOperation(storeType, operation string, duration time.Duration, err error)
}

type instrumented struct {
	Store
	storeType string
	metrics   Metrics
}

// Instrument wraps s so every read and write gets a span, a debug log line
// and, when m is non-nil, a metrics observation.
func Instrument(s Store, storeType string, m Metrics) Store {
	return &instrumented{Store: s, storeType: storeType, metrics: m}
}

func (i *instrumented) ReadBlock(ctx context.Context, loc jbod.Location, out *jbod.Block) error {
	return i.observe(ctx, "read", loc, func(ctx context.Context) error {
		return i.Store.ReadBlock(ctx, loc, out)
	})
}

func (i *instrumented) WriteBlock(ctx context.Context, loc jbod.Location, in *jbod.Block) error {
	return i.observe(ctx, "write", loc, func(ctx context.Context) error {
		return i.Store.WriteBlock(ctx, loc, in)
	})
}

func (i *instrumented) observe(ctx context.Context, op string, loc jbod.Location, fn func(context.Context) error) error {
	start := time.Now()
	ctx, span := telemetry.StartStoreSpan(ctx, op, i.storeType,
		telemetry.Disk(loc.Disk), telemetry.Block(loc.Block))
	defer span.End()

	err := fn(ctx)
	if err != nil {
		telemetry.RecordError(ctx, err)
		logger.WarnCtx(ctx, "Block store operation failed",
			logger.StoreType(i.storeType), logger.Operation(op),
			logger.Disk(loc.Disk), logger.Block(loc.Block), logger.Err(err))
	} else {
		logger.DebugCtx(ctx, "Block store operation",
			logger.StoreType(i.storeType), logger.Operation(op),
			logger.Disk(loc.Disk), logger.Block(loc.Block),
			logger.DurationMs(logger.Duration(start)))
	}
	if i.metrics != nil {
		i.metrics.ObserveOperation(i.storeType, op, time.Since(start), err)
	}
	return err
}
