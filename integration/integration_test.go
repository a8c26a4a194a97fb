//go:build integration

package integration

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	hostmcp "github.com/wagiedev/host-mcp-go"
	"github.com/wagiedev/host-mcp-go/internal/sample"
)

const (
	testTimeout  = 5 * time.Second
	pollInterval = 10 * time.Millisecond
)

// harness is a server bound to real loopback listeners.
type harness struct {
	srv        *hostmcp.Server
	host       *sample.Host
	httpURL    string
	streamAddr string
}

// startServer serves the sample host over HTTP and the stream transport
// until the test ends.
func startServer(t *testing.T, opts ...hostmcp.Option) *harness {
	t.Helper()

	host := sample.NewHost("integration")

	procs, err := sample.Procedures(host)
	require.NoError(t, err)

	httpLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	streamLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	opts = append([]hostmcp.Option{
		hostmcp.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		hostmcp.WithProcedures(procs...),
		hostmcp.WithServerInfo("integration", "test"),
	}, opts...)

	srv := hostmcp.New(opts...)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)

	go func() { served <- srv.Serve(ctx, httpLn, streamLn) }()

	t.Cleanup(func() {
		cancel()

		select {
		case err := <-served:
			if err != nil && !errors.Is(err, context.Canceled) {
				t.Errorf("Serve: %v", err)
			}
		case <-time.After(15 * time.Second):
			t.Error("Serve did not return after cancel")
		}

		require.NoError(t, srv.Close())
	})

	return &harness{
		srv:        srv,
		host:       host,
		httpURL:    "http://" + httpLn.Addr().String(),
		streamAddr: streamLn.Addr().String(),
	}
}

func testContext(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Second)
	t.Cleanup(cancel)

	return ctx
}
