package cache

import (
	"time"
)

// CacheMetrics provides observability for block cache operations.
//
// This is optional - a nil CacheMetrics disables collection. The Prometheus
// implementation lives in pkg/metrics/prometheus.
type CacheMetrics interface {
	// ObserveLookup records a lookup and whether it hit
	ObserveLookup(hit bool, duration time.Duration)

	// RecordInsert records an insert and whether it evicted a valid entry
	RecordInsert(evicted bool)

	// RecordOccupancy records the current number of valid entries
	RecordOccupancy(entries int)

	// RecordCapacity records the table size (0 after Destroy)
	RecordCapacity(entries int)
}
