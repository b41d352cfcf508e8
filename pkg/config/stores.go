package config

import (
	"context"
	"fmt"

	"github.com/marmos91/dittoraid/internal/logger"
	"github.com/marmos91/dittoraid/pkg/cache"
	"github.com/marmos91/dittoraid/pkg/device/store"
	"github.com/marmos91/dittoraid/pkg/device/store/badger"
	"github.com/marmos91/dittoraid/pkg/device/store/memory"
	"github.com/marmos91/dittoraid/pkg/device/store/s3"
)

// CreateBlockStore opens the device block store described by cfg, wrapped
// so its operations are traced, logged and recorded in m (which may be nil).
func CreateBlockStore(ctx context.Context, cfg StoreConfig, m store.Metrics) (store.Store, error) {
	var (
		s   store.Store
		err error
	)

	switch cfg.Type {
	case "memory", "":
		s = memory.New()
	case "badger":
		s, err = createBadgerStore(cfg.Badger)
	case "s3":
		s, err = createS3Store(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown block store type: %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	storeType := cfg.Type
	if storeType == "" {
		storeType = "memory"
	}
	logger.Info("Block store opened", logger.StoreType(storeType))
	return store.Instrument(s, storeType, m), nil
}

func createBadgerStore(cfg BadgerConfig) (store.Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("badger block store requires path to be set")
	}
	s, err := badger.New(badger.Config{
		Path:             cfg.Path,
		SyncWrites:       cfg.SyncWrites,
		ValueLogFileSize: int64(cfg.ValueLogFileSize.Uint64()),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create badger block store: %w", err)
	}
	return s, nil
}

func createS3Store(ctx context.Context, cfg S3Config) (store.Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 block store requires bucket to be set")
	}
	s, err := s3.NewFromConfig(ctx, s3.Config{
		Bucket:         cfg.Bucket,
		Region:         cfg.Region,
		Endpoint:       cfg.Endpoint,
		KeyPrefix:      cfg.Prefix,
		ForcePathStyle: cfg.ForcePathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 block store: %w", err)
	}
	return s, nil
}

// CreateCache builds the client block cache. The cache is created with the
// configured capacity only when enabled; otherwise it starts uninitialized
// and every lookup bypasses it.
func CreateCache(cfg CacheConfig, m cache.CacheMetrics) (*cache.Cache, error) {
	c := cache.New(m)
	if !cfg.Enabled {
		return c, nil
	}
	if err := c.Create(cfg.Capacity); err != nil {
		return nil, fmt.Errorf("failed to create block cache: %w", err)
	}
	return c, nil
}
