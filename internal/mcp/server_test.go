package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	mcpgo "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/wagiedev/host-mcp-go/internal/bridge"
	"github.com/wagiedev/host-mcp-go/internal/protocol"
	"github.com/wagiedev/host-mcp-go/internal/registry"
)

type testHost struct {
	wiped atomic.Int32
}

func newTestServer(t *testing.T, unsafe bool) (*Server, *testHost) {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	host := &testHost{}
	reg := registry.New(log)

	require.NoError(t, reg.Register(&registry.Procedure{
		Name:        "add",
		Description: "adds two integers",
		Schema:      registry.SimpleSchema(map[string]string{"a": "int", "b": "int"}),
		Handler: func(_ context.Context, params map[string]any) (any, error) {
			return map[string]any{"sum": params["a"].(float64) + params["b"].(float64)}, nil
		},
	}))

	require.NoError(t, reg.Register(&registry.Procedure{
		Name:   "wipe",
		Safety: registry.Unsafe,
		Handler: func(context.Context, map[string]any) (any, error) {
			host.wiped.Add(1)

			return "wiped", nil
		},
	}))

	require.NoError(t, reg.Register(&registry.Procedure{
		Name:   "scan",
		Schema: registry.SimpleSchema(map[string]string{"steps": "int"}),
		Handler: func(ctx context.Context, params map[string]any) (any, error) {
			steps := int(params["steps"].(float64))
			for i := range steps {
				_ = protocol.Progress(ctx, float64(i+1), float64(steps), "scanning")
			}

			return steps, nil
		},
	}))

	require.NoError(t, reg.Register(&registry.Procedure{
		Name: "status",
		Kind: registry.KindResource,
		Handler: func(context.Context, map[string]any) (any, error) {
			return map[string]any{"healthy": true}, nil
		},
	}))

	reg.Freeze()

	br := bridge.New(log, bridge.Options{})
	require.NoError(t, br.Start(context.Background()))
	t.Cleanup(br.Stop)

	d := protocol.NewDispatcher(log, reg, br, protocol.Options{
		Unsafe:        unsafe,
		Timeout:       5 * time.Second,
		ServerName:    "test-host",
		ServerVersion: "0.0.1",
	})

	return NewServer(log, reg, d), host
}

func connect(t *testing.T, s *Server, opts *mcpgo.ClientOptions) *mcpgo.ClientSession {
	t.Helper()

	ctx := context.Background()
	serverTransport, clientTransport := mcpgo.NewInMemoryTransports()

	serverSession, err := s.MCP().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	client := mcpgo.NewClient(&mcpgo.Implementation{Name: "test-client", Version: "1.0.0"}, opts)

	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })

	return cs
}

func resultText(t *testing.T, res *mcpgo.CallToolResult) string {
	t.Helper()

	require.Len(t, res.Content, 1)

	text, ok := res.Content[0].(*mcpgo.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])

	return text.Text
}

func TestServer_ListTools(t *testing.T) {
	s, _ := newTestServer(t, false)
	cs := connect(t, s, nil)

	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)

	names := make([]string, 0, len(res.Tools))
	byName := make(map[string]*mcpgo.Tool)

	for _, tool := range res.Tools {
		names = append(names, tool.Name)
		byName[tool.Name] = tool
	}

	require.ElementsMatch(t, []string{"add", "wipe", "scan"}, names)
	require.Equal(t, "adds two integers", byName["add"].Description)
	require.True(t, byName["add"].Annotations.ReadOnlyHint)
	require.NotNil(t, byName["wipe"].Annotations.DestructiveHint)
	require.True(t, *byName["wipe"].Annotations.DestructiveHint)
}

func TestServer_CallTool(t *testing.T) {
	s, _ := newTestServer(t, false)
	cs := connect(t, s, nil)

	res, err := cs.CallTool(context.Background(), &mcpgo.CallToolParams{
		Name:      "add",
		Arguments: map[string]any{"a": 2, "b": 40},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.JSONEq(t, `{"sum":42}`, resultText(t, res))

	structured, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	require.JSONEq(t, `{"sum":42}`, string(structured))
}

func TestServer_CallToolInvalidParameters(t *testing.T) {
	s, _ := newTestServer(t, false)
	cs := connect(t, s, nil)

	res, err := cs.CallTool(context.Background(), &mcpgo.CallToolParams{
		Name:      "add",
		Arguments: map[string]any{"a": "two", "b": 40},
	})
	require.NoError(t, err)
	require.True(t, res.IsError)
	require.Contains(t, resultText(t, res), "InvalidParametersError")
}

func TestServer_UnsafeGating(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		s, host := newTestServer(t, false)
		cs := connect(t, s, nil)

		res, err := cs.CallTool(context.Background(), &mcpgo.CallToolParams{Name: "wipe"})
		require.NoError(t, err)
		require.True(t, res.IsError)
		require.Contains(t, resultText(t, res), "UnsafeDisabledError")
		require.Zero(t, host.wiped.Load())
	})

	t.Run("enabled", func(t *testing.T) {
		s, host := newTestServer(t, true)
		cs := connect(t, s, nil)

		res, err := cs.CallTool(context.Background(), &mcpgo.CallToolParams{Name: "wipe"})
		require.NoError(t, err)
		require.False(t, res.IsError)
		require.Equal(t, `"wiped"`, resultText(t, res))
		require.Equal(t, int32(1), host.wiped.Load())
	})
}

func TestServer_ReadResource(t *testing.T) {
	s, _ := newTestServer(t, false)
	cs := connect(t, s, nil)

	list, err := cs.ListResources(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, list.Resources, 1)
	require.Equal(t, "host://status", list.Resources[0].URI)
	require.Equal(t, "application/json", list.Resources[0].MIMEType)

	res, err := cs.ReadResource(context.Background(), &mcpgo.ReadResourceParams{URI: "host://status"})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	require.JSONEq(t, `{"healthy":true}`, res.Contents[0].Text)
}

func TestServer_ForwardsProgress(t *testing.T) {
	s, _ := newTestServer(t, false)

	var (
		mu       sync.Mutex
		received []float64
	)

	cs := connect(t, s, &mcpgo.ClientOptions{
		ProgressNotificationHandler: func(_ context.Context, req *mcpgo.ProgressNotificationClientRequest) {
			mu.Lock()
			defer mu.Unlock()

			received = append(received, req.Params.Progress)
		},
	})

	params := &mcpgo.CallToolParams{
		Name:      "scan",
		Arguments: map[string]any{"steps": 3},
		// SetProgressToken writes into Meta and needs a non-nil map.
		Meta:      mcpgo.Meta{},
	}
	params.SetProgressToken("scan-1")

	res, err := cs.CallTool(context.Background(), params)
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.Equal(t, "3", resultText(t, res))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(received) == 3
	}, 2*time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	require.ElementsMatch(t, []float64{1, 2, 3}, received)
}
