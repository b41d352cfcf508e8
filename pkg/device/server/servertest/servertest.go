// Package servertest runs a device server on a loopback listener for
// tests of code that talks to the device over TCP.
package servertest

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittoraid/pkg/device/server"
	"github.com/marmos91/dittoraid/pkg/device/store"
	"github.com/marmos91/dittoraid/pkg/device/store/memory"
)

// Start serves s on 127.0.0.1 with a free port and stops the server when
// the test ends. A nil s gets a fresh in-memory store.
func Start(tb testing.TB, s store.Store, m server.Metrics) *server.Server {
	tb.Helper()
	if s == nil {
		s = memory.New()
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(tb, err)

	srv := server.New(server.Config{ShutdownTimeout: 2 * time.Second}, s, m)
	errc := make(chan error, 1)
	go func() { errc <- srv.ServeListener(context.Background(), ln) }()
	<-srv.Ready()

	tb.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
		<-errc
	})
	return srv
}

// Addr returns the "host:port" a test should dial.
func Addr(srv *server.Server) string {
	return srv.Addr().String()
}
