// Package storetest holds the conformance suite every block store backend
// must pass.
package storetest

import (
	"errors"
	"testing"

	"github.com/marmos91/dittoraid/pkg/device/store"
	"github.com/marmos91/dittoraid/pkg/jbod"
)

// StoreFactory creates a fresh Store for each test. It may use t.TempDir()
// and t.Cleanup().
type StoreFactory func(t *testing.T) store.Store

// RunConformanceSuite runs every conformance case against fresh stores
// from factory.
func RunConformanceSuite(t *testing.T, factory StoreFactory) {
	t.Helper()

	t.Run("UnwrittenBlockReadsZero", func(t *testing.T) {
		s := factory(t)
		out := fill(0xAA)
		if err := s.ReadBlock(t.Context(), jbod.Location{Disk: 3, Block: 7}, out); err != nil {
			t.Fatalf("ReadBlock() failed: %v", err)
		}
		if *out != (jbod.Block{}) {
			t.Fatal("unwritten block is not zero")
		}
	})

	t.Run("WriteThenRead", func(t *testing.T) {
		s := factory(t)
		loc := jbod.Location{Disk: 15, Block: 255}
		in := pattern(9)
		if err := s.WriteBlock(t.Context(), loc, in); err != nil {
			t.Fatalf("WriteBlock() failed: %v", err)
		}

		var out jbod.Block
		if err := s.ReadBlock(t.Context(), loc, &out); err != nil {
			t.Fatalf("ReadBlock() failed: %v", err)
		}
		if out != *in {
			t.Fatal("read back different content")
		}
	})

	t.Run("OverwriteReplaces", func(t *testing.T) {
		s := factory(t)
		loc := jbod.Location{Disk: 1, Block: 1}
		for _, seed := range []byte{1, 2} {
			if err := s.WriteBlock(t.Context(), loc, pattern(seed)); err != nil {
				t.Fatalf("WriteBlock() failed: %v", err)
			}
		}

		var out jbod.Block
		if err := s.ReadBlock(t.Context(), loc, &out); err != nil {
			t.Fatalf("ReadBlock() failed: %v", err)
		}
		if out != *pattern(2) {
			t.Fatal("overwrite not visible")
		}
	})

	t.Run("LocationsAreIndependent", func(t *testing.T) {
		s := factory(t)
		a := jbod.Location{Disk: 0, Block: 1}
		b := jbod.Location{Disk: 1, Block: 0}
		if err := s.WriteBlock(t.Context(), a, pattern(5)); err != nil {
			t.Fatalf("WriteBlock() failed: %v", err)
		}

		var out jbod.Block
		if err := s.ReadBlock(t.Context(), b, &out); err != nil {
			t.Fatalf("ReadBlock() failed: %v", err)
		}
		if out != (jbod.Block{}) {
			t.Fatal("write leaked into another location")
		}
	})

	t.Run("WriteCopiesInput", func(t *testing.T) {
		s := factory(t)
		loc := jbod.Location{Disk: 2, Block: 2}
		in := pattern(3)
		if err := s.WriteBlock(t.Context(), loc, in); err != nil {
			t.Fatalf("WriteBlock() failed: %v", err)
		}
		in[0] ^= 0xFF

		var out jbod.Block
		if err := s.ReadBlock(t.Context(), loc, &out); err != nil {
			t.Fatalf("ReadBlock() failed: %v", err)
		}
		if out != *pattern(3) {
			t.Fatal("store aliases the caller's buffer")
		}
	})

	t.Run("ClosedStoreFails", func(t *testing.T) {
		s := factory(t)
		if err := s.Close(); err != nil {
			t.Fatalf("Close() failed: %v", err)
		}
		var out jbod.Block
		if err := s.ReadBlock(t.Context(), jbod.Location{}, &out); !errors.Is(err, store.ErrStoreClosed) {
			t.Fatalf("ReadBlock() after Close = %v, want ErrStoreClosed", err)
		}
		if err := s.WriteBlock(t.Context(), jbod.Location{}, &out); !errors.Is(err, store.ErrStoreClosed) {
			t.Fatalf("WriteBlock() after Close = %v, want ErrStoreClosed", err)
		}
	})
}

func pattern(seed byte) *jbod.Block {
	var b jbod.Block
	for i := range b {
		b[i] = seed ^ byte(i*7)
	}
	return &b
}

func fill(v byte) *jbod.Block {
	var b jbod.Block
	for i := range b {
		b[i] = v
	}
	return &b
}
