package server

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wagiedev/host-mcp-go/internal/bridge"
	"github.com/wagiedev/host-mcp-go/internal/protocol"
	"github.com/wagiedev/host-mcp-go/internal/registry"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	bridge     *bridge.Bridge
	dispatcher *protocol.Dispatcher
	sessions   *protocol.Sessions

	// waitCancelled receives once per "wait" call that observed cancellation.
	waitCancelled chan struct{}
	waitStarted   chan struct{}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := discardLogger()
	f := &fixture{
		waitCancelled: make(chan struct{}, 4),
		waitStarted:   make(chan struct{}, 4),
	}

	reg := registry.New(log)

	require.NoError(t, reg.Register(&registry.Procedure{
		Name:   "add",
		Schema: registry.SimpleSchema(map[string]string{"a": "int", "b": "int"}),
		Handler: func(_ context.Context, params map[string]any) (any, error) {
			return int(params["a"].(float64) + params["b"].(float64)), nil
		},
	}))

	require.NoError(t, reg.Register(&registry.Procedure{
		Name:   "scan",
		Schema: registry.SimpleSchema(map[string]string{"steps": "int"}),
		Handler: func(ctx context.Context, params map[string]any) (any, error) {
			steps := int(params["steps"].(float64))
			for i := range steps {
				_ = protocol.Progress(ctx, float64(i+1), float64(steps), "")
			}

			return steps, nil
		},
	}))

	require.NoError(t, reg.Register(&registry.Procedure{
		Name: "wait",
		Handler: func(ctx context.Context, _ map[string]any) (any, error) {
			f.waitStarted <- struct{}{}

			for {
				if err := bridge.Checkpoint(ctx); err != nil {
					f.waitCancelled <- struct{}{}

					return nil, err
				}

				time.Sleep(time.Millisecond)
			}
		},
	}))

	reg.Freeze()

	f.bridge = bridge.New(log, bridge.Options{})
	require.NoError(t, f.bridge.Start(context.Background()))
	t.Cleanup(f.bridge.Stop)

	f.sessions = protocol.NewSessions(log, 16)
	t.Cleanup(f.sessions.CloseAll)

	f.dispatcher = protocol.NewDispatcher(log, reg, f.bridge, protocol.Options{Timeout: 5 * time.Second})

	return f
}
