package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so that log lines
// from the client, the transport and the device server can be correlated.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Session & Connection
	// ========================================================================
	KeySessionID    = "session_id"    // Client session (one per Array)
	KeyConnectionID = "connection_id" // Device server connection
	KeyRemoteAddr   = "remote_addr"   // Peer address
	KeyListenAddr   = "listen_addr"   // Server listen address

	// ========================================================================
	// Wire protocol
	// ========================================================================
	KeyCommand = "command" // Opcode command name: READ_BLOCK, MOUNT, ...
	KeyOpcode  = "opcode"  // Packed opcode word (hex)
	KeyInfo    = "info"    // Response info byte
	KeyPayload = "payload" // Whether a block payload was carried

	// ========================================================================
	// Addressing & I/O
	// ========================================================================
	KeyAddress      = "address"       // Logical byte address
	KeyLength       = "length"        // Requested byte count
	KeyDisk         = "disk"          // Disk index
	KeyBlock        = "block"         // Block index within a disk
	KeyOffset       = "offset"        // Offset within a block
	KeyBytesRead    = "bytes_read"    // Bytes returned by a read
	KeyBytesWritten = "bytes_written" // Bytes accepted by a write
	KeyMounted      = "mounted"       // Mount state
	KeyWritable     = "writable"      // Write-permission state

	// ========================================================================
	// Cache Layer
	// ========================================================================
	KeyCacheHit      = "cache_hit"      // Cache hit indicator
	KeyCacheHits     = "cache_hits"     // Cumulative hit count
	KeyCacheQueries  = "cache_queries"  // Cumulative lookup count
	KeyCacheHitRate  = "cache_hit_rate" // Hit rate percentage
	KeyCacheCapacity = "cache_capacity" // Table size in entries
	KeyAccesses      = "accesses"       // Access count of an entry
	KeyEvicted       = "evicted"        // Number of entries evicted

	// ========================================================================
	// Device store
	// ========================================================================
	KeyStoreType = "store_type" // memory, badger, s3
	KeyBucket    = "bucket"     // S3 bucket
	KeyKey       = "key"        // Object/KV key
	KeyPath      = "path"       // Filesystem path

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyErrorCode  = "error_code"  // Error code name
	KeySource     = "source"      // Data source: cache, device
	KeyOperation  = "operation"   // Logical operation: read, write, mount, ...
	KeyLine       = "line"        // Trace file line number
)

// ============================================================================
// Attribute Constructors
// ============================================================================

// TraceID returns a trace ID attribute.
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a span ID attribute.
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// SessionID returns a session ID attribute.
func SessionID(id string) slog.Attr {
	return slog.String(KeySessionID, id)
}

// ConnectionID returns a connection ID attribute.
func ConnectionID(id string) slog.Attr {
	return slog.String(KeyConnectionID, id)
}

// Command returns a command name attribute.
func Command(name string) slog.Attr {
	return slog.String(KeyCommand, name)
}

// Opcode returns the packed opcode word formatted as hex.
func Opcode(word uint32) slog.Attr {
	return slog.String(KeyOpcode, fmt.Sprintf("0x%08x", word))
}

// Address returns a logical address attribute.
func Address(addr uint32) slog.Attr {
	return slog.Uint64(KeyAddress, uint64(addr))
}

// Length returns a byte count attribute.
func Length(n uint32) slog.Attr {
	return slog.Uint64(KeyLength, uint64(n))
}

// Disk returns a disk index attribute.
func Disk(id uint32) slog.Attr {
	return slog.Uint64(KeyDisk, uint64(id))
}

// Block returns a block index attribute.
func Block(id uint32) slog.Attr {
	return slog.Uint64(KeyBlock, uint64(id))
}

// DurationMs returns a duration attribute in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns an error attribute. A nil error yields an empty attribute,
// which handlers drop.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Source returns a data source attribute.
func Source(src string) slog.Attr {
	return slog.String(KeySource, src)
}

// Operation returns an operation attribute.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// StoreType returns a store type attribute.
func StoreType(t string) slog.Attr {
	return slog.String(KeyStoreType, t)
}
