package workload

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/marmos91/dittoraid/internal/logger"
	"github.com/marmos91/dittoraid/internal/telemetry"
	"github.com/marmos91/dittoraid/pkg/cache"
	"github.com/marmos91/dittoraid/pkg/jbod"
)

// Target is the array a trace is replayed against. *raid.Array implements
// it.
type Target interface {
	Mount(ctx context.Context) error
	Unmount(ctx context.Context) error
	GrantWrite(ctx context.Context) error
	RevokeWrite(ctx context.Context) error
	Read(ctx context.Context, addr, length uint32, buf []byte) (int, error)
	Write(ctx context.Context, addr, length uint32, buf []byte) (int, error)
}

// cacheOwner is implemented by targets whose cache statistics belong in
// the report.
type cacheOwner interface {
	Cache() *cache.Cache
}

// Options tune a replay.
type Options struct {
	// StopOnError aborts the replay at the first failed operation. By
	// default failures are recorded and the replay continues, since
	// traces often exercise error paths on purpose.
	StopOnError bool
}

// Failure is an operation the target rejected.
type Failure struct {
	Line  int    `json:"line" yaml:"line"`
	Op    string `json:"op" yaml:"op"`
	Error string `json:"error" yaml:"error"`
}

// Mismatch is a READ that returned bytes differing from what the replay
// wrote. Addr is the first differing address.
type Mismatch struct {
	Line int    `json:"line" yaml:"line"`
	Addr uint32 `json:"addr" yaml:"addr"`
	Want byte   `json:"want" yaml:"want"`
	Got  byte   `json:"got" yaml:"got"`
}

// Report summarizes a replay.
type Report struct {
	Operations   int            `json:"operations" yaml:"operations"`
	Counts       map[string]int `json:"counts" yaml:"counts"`
	BytesRead    uint64         `json:"bytes_read" yaml:"bytes_read"`
	BytesWritten uint64         `json:"bytes_written" yaml:"bytes_written"`
	Failures     []Failure      `json:"failures,omitempty" yaml:"failures,omitempty"`
	Mismatches   []Mismatch     `json:"mismatches,omitempty" yaml:"mismatches,omitempty"`
	Duration     time.Duration  `json:"duration_ns" yaml:"duration"`
	Cache        *cache.Stats   `json:"cache,omitempty" yaml:"cache,omitempty"`
}

// Verified reports whether every READ matched the shadow copy.
func (r *Report) Verified() bool {
	return len(r.Mismatches) == 0
}

// Headers implements output.TableRenderer.
func (r *Report) Headers() []string {
	return []string{"METRIC", "VALUE"}
}

// Rows implements output.TableRenderer.
func (r *Report) Rows() [][]string {
	rows := [][]string{
		{"Operations", strconv.Itoa(r.Operations)},
	}
	for _, k := range []Kind{KindMount, KindUnmount, KindWritePermission, KindRevokeWritePermission, KindRead, KindWrite} {
		if n := r.Counts[k.String()]; n > 0 {
			rows = append(rows, []string{"  " + k.String(), strconv.Itoa(n)})
		}
	}
	rows = append(rows,
		[]string{"Bytes read", strconv.FormatUint(r.BytesRead, 10)},
		[]string{"Bytes written", strconv.FormatUint(r.BytesWritten, 10)},
		[]string{"Failures", strconv.Itoa(len(r.Failures))},
		[]string{"Mismatches", strconv.Itoa(len(r.Mismatches))},
		[]string{"Duration", r.Duration.Round(time.Microsecond).String()},
	)
	if r.Cache != nil {
		rows = append(rows,
			[]string{"Cache capacity", strconv.Itoa(r.Cache.Capacity)},
			[]string{"Cache queries", strconv.FormatUint(r.Cache.Queries, 10)},
			[]string{"Cache hits", strconv.FormatUint(r.Cache.Hits, 10)},
			[]string{"Cache evictions", strconv.FormatUint(r.Cache.Evictions, 10)},
			[]string{"Cache hit rate", fmt.Sprintf("%.1f%%", r.Cache.HitRate)},
		)
	}
	return rows
}

// shadow mirrors the bytes written during a replay. Only known bytes are
// verified, so a replay against a device holding older data stays valid.
type shadow struct {
	data  []byte
	known []bool
}

func newShadow() *shadow {
	return &shadow{data: make([]byte, jbod.TotalSize), known: make([]bool, jbod.TotalSize)}
}

func (s *shadow) store(addr uint32, buf []byte) {
	copy(s.data[addr:], buf)
	for i := range buf {
		s.known[int(addr)+i] = true
	}
}

// forget drops knowledge of a range whose content is uncertain, as after a
// failed multi-block write.
func (s *shadow) forget(addr, length uint32) {
	end := min(uint64(addr)+uint64(length), jbod.TotalSize)
	for i := uint64(addr); i < end; i++ {
		s.known[i] = false
	}
}

// check returns the first known byte of buf that differs from the shadow.
func (s *shadow) check(addr uint32, buf []byte) (int, bool) {
	for i, b := range buf {
		a := int(addr) + i
		if s.known[a] && s.data[a] != b {
			return i, false
		}
	}
	return 0, true
}

// Replay runs ops against t in order and verifies every successful READ
// against the bytes written earlier in the same replay. The returned error
// is non-nil only when StopOnError aborted the run or ctx was cancelled;
// the report is returned either way.
func Replay(ctx context.Context, t Target, ops []Op, opts Options) (*Report, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanWorkloadReplay)
	defer span.End()

	start := time.Now()
	report := &Report{Counts: make(map[string]int)}
	sh := newShadow()
	buf := make([]byte, jbod.MaxIOSize)

	finish := func() {
		report.Duration = time.Since(start)
		if co, ok := t.(cacheOwner); ok && co.Cache().Enabled() {
			stats := co.Cache().Stats()
			report.Cache = &stats
		}
	}

	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			finish()
			return report, err
		}

		report.Operations++
		report.Counts[op.Kind.String()]++

		err := apply(ctx, t, op, sh, buf, report)
		if err != nil {
			report.Failures = append(report.Failures, Failure{Line: op.Line, Op: op.String(), Error: err.Error()})
			logger.DebugCtx(ctx, "Trace operation failed", logger.KeyLine, op.Line, logger.Operation(op.String()), logger.Err(err))
			if opts.StopOnError {
				finish()
				telemetry.RecordError(ctx, err)
				return report, fmt.Errorf("line %d: %s: %w", op.Line, op, err)
			}
		}
	}

	finish()
	logger.InfoCtx(ctx, "Trace replayed",
		"operations", report.Operations, "failures", len(report.Failures),
		"mismatches", len(report.Mismatches), logger.DurationMs(logger.Duration(start)))
	return report, nil
}

func apply(ctx context.Context, t Target, op Op, sh *shadow, buf []byte, report *Report) error {
	switch op.Kind {
	case KindMount:
		return t.Mount(ctx)
	case KindUnmount:
		return t.Unmount(ctx)
	case KindWritePermission:
		return t.GrantWrite(ctx)
	case KindRevokeWritePermission:
		return t.RevokeWrite(ctx)

	case KindRead:
		buf, err := scratch(buf, "read", op.Length)
		if err != nil {
			return err
		}
		n, err := t.Read(ctx, op.Addr, op.Length, buf)
		if err != nil {
			return err
		}
		report.BytesRead += uint64(n)
		if i, ok := sh.check(op.Addr, buf[:n]); !ok {
			a := op.Addr + uint32(i)
			report.Mismatches = append(report.Mismatches, Mismatch{
				Line: op.Line, Addr: a, Want: sh.data[a], Got: buf[i],
			})
			logger.WarnCtx(ctx, "Read returned unexpected data",
				logger.KeyLine, op.Line, logger.Address(a), "want", sh.data[a], "got", buf[i])
		}
		return nil

	case KindWrite:
		data, err := scratch(buf, "write", op.Length)
		if err != nil {
			return err
		}
		for i := range data {
			data[i] = op.Fill
		}
		n, err := t.Write(ctx, op.Addr, op.Length, data)
		if err != nil {
			sh.forget(op.Addr, op.Length)
			return err
		}
		report.BytesWritten += uint64(n)
		sh.store(op.Addr, data[:n])
		return nil

	default:
		return fmt.Errorf("unsupported operation %s", op.Kind)
	}
}

// scratch slices a transfer buffer for op out of buf, which holds
// MaxIOSize bytes. Longer transfers are refused here with the code the
// array would give them.
func scratch(buf []byte, op string, length uint32) ([]byte, error) {
	if length > jbod.MaxIOSize {
		return nil, jbod.NewError(jbod.CodeOutOfRange, op,
			"length %d exceeds the %d byte limit", length, jbod.MaxIOSize)
	}
	return buf[:length], nil
}
