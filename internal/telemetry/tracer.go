package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for array, transport and device spans.
const (
	// ========================================================================
	// Peer attributes
	// ========================================================================
	AttrPeerAddr     = "net.peer.address"
	AttrConnectionID = "net.connection_id"

	// ========================================================================
	// Client session
	// ========================================================================
	AttrSessionID = "raid.session_id"
	AttrOperation = "raid.operation" // read, write, mount, ...
	AttrAddress   = "raid.address"   // Logical byte address
	AttrLength    = "raid.length"    // Requested byte count
	AttrBlocks    = "raid.blocks"    // Blocks touched by the request

	// ========================================================================
	// Wire protocol
	// ========================================================================
	AttrCommand = "jbod.command"
	AttrOpcode  = "jbod.opcode"
	AttrDisk    = "jbod.disk"
	AttrBlock   = "jbod.block"
	AttrFailed  = "jbod.failed"

	// ========================================================================
	// Cache attributes
	// ========================================================================
	AttrCacheHit      = "cache.hit"
	AttrCacheCapacity = "cache.capacity"

	// ========================================================================
	// Device store attributes
	// ========================================================================
	AttrStoreType = "store.type"
	AttrBucket    = "storage.bucket"
	AttrKey       = "storage.key"
)

// Span names.
// Format: <component>.<operation>
const (
	SpanArrayRead    = "raid.read"
	SpanArrayWrite   = "raid.write"
	SpanArrayMount   = "raid.mount"
	SpanArrayUnmount = "raid.unmount"

	SpanTransportDial = "transport.dial"
	SpanTransportOp   = "transport.operation"

	SpanDeviceRequest = "device.request"

	SpanStoreRead  = "store.read"
	SpanStoreWrite = "store.write"

	SpanWorkloadReplay = "workload.replay"
)

// SessionID returns an attribute for the client session
func SessionID(id string) attribute.KeyValue {
	return attribute.String(AttrSessionID, id)
}

// ConnectionID returns an attribute for a device server connection
func ConnectionID(id string) attribute.KeyValue {
	return attribute.String(AttrConnectionID, id)
}

// PeerAddr returns an attribute for the remote address
func PeerAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrPeerAddr, addr)
}

// Operation returns an attribute for the logical operation
func Operation(op string) attribute.KeyValue {
	return attribute.String(AttrOperation, op)
}

// Address returns an attribute for a logical byte address
func Address(addr uint32) attribute.KeyValue {
	return attribute.Int64(AttrAddress, int64(addr))
}

// Length returns an attribute for a requested byte count
func Length(n uint32) attribute.KeyValue {
	return attribute.Int64(AttrLength, int64(n))
}

// Blocks returns an attribute for the number of blocks touched
func Blocks(n int) attribute.KeyValue {
	return attribute.Int(AttrBlocks, n)
}

// Command returns an attribute for the command name
func Command(name string) attribute.KeyValue {
	return attribute.String(AttrCommand, name)
}

// Opcode returns an attribute for the packed opcode word in hex
func Opcode(word uint32) attribute.KeyValue {
	return attribute.String(AttrOpcode, fmt.Sprintf("0x%08x", word))
}

// Disk returns an attribute for a disk index
func Disk(id uint32) attribute.KeyValue {
	return attribute.Int64(AttrDisk, int64(id))
}

// Block returns an attribute for a block index
func Block(id uint32) attribute.KeyValue {
	return attribute.Int64(AttrBlock, int64(id))
}

// Failed returns an attribute for the response failure bit
func Failed(failed bool) attribute.KeyValue {
	return attribute.Bool(AttrFailed, failed)
}

// CacheHit returns an attribute for cache hit indicator
func CacheHit(hit bool) attribute.KeyValue {
	return attribute.Bool(AttrCacheHit, hit)
}

// CacheCapacity returns an attribute for the cache table size
func CacheCapacity(n int) attribute.KeyValue {
	return attribute.Int(AttrCacheCapacity, n)
}

// StoreType returns an attribute for store type
func StoreType(t string) attribute.KeyValue {
	return attribute.String(AttrStoreType, t)
}

// Bucket returns an attribute for S3 bucket name
func Bucket(name string) attribute.KeyValue {
	return attribute.String(AttrBucket, name)
}

// StorageKey returns an attribute for an object or KV key
func StorageKey(key string) attribute.KeyValue {
	return attribute.String(AttrKey, key)
}

// StartArraySpan starts a span for a client array operation.
func StartArraySpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{Operation(operation)}, attrs...)
	return StartSpan(ctx, "raid."+operation, trace.WithAttributes(allAttrs...))
}

// StartTransportSpan starts a client span for one request/response exchange.
func StartTransportSpan(ctx context.Context, command string, word uint32, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{Command(command), Opcode(word)}, attrs...)
	return StartSpan(ctx, SpanTransportOp, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(allAttrs...))
}

// StartStoreSpan starts a span for a device store operation.
func StartStoreSpan(ctx context.Context, operation, storeType string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{StoreType(storeType)}, attrs...)
	return StartSpan(ctx, "store."+operation, trace.WithAttributes(allAttrs...))
}

// StartDeviceSpan starts a server span for one opcode executed by the
// reference device.
func StartDeviceSpan(ctx context.Context, command string, word uint32, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{Command(command), Opcode(word)}, attrs...)
	return StartSpan(ctx, SpanDeviceRequest, trace.WithSpanKind(trace.SpanKindServer), trace.WithAttributes(allAttrs...))
}
