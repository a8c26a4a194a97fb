package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wagiedev/host-mcp-go/internal/errors"
	"github.com/wagiedev/host-mcp-go/internal/protocol"
	"github.com/wagiedev/host-mcp-go/internal/registry"
)

// progressBuffer is how many progress reports may queue per tool call before
// further reports are dropped.
const progressBuffer = 64

// Server adapts a frozen registry to an MCP server.
type Server struct {
	log        *slog.Logger
	dispatcher *protocol.Dispatcher
	server     *mcp.Server
}

// NewServer builds an MCP server exposing every procedure in reg. Calls are
// executed through d. The registry should be frozen; procedures registered
// afterwards are not exposed.
func NewServer(log *slog.Logger, reg *registry.Registry, d *protocol.Dispatcher) *Server {
	opts := d.Options()

	s := &Server{
		log:        log.With("component", "mcp"),
		dispatcher: d,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    opts.ServerName,
			Version: opts.ServerVersion,
		}, &mcp.ServerOptions{
			Logger: log.With("component", "mcp-sdk"),
		}),
	}

	for proc := range reg.List() {
		switch proc.Kind {
		case registry.KindTool:
			s.addTool(proc)
		case registry.KindResource:
			s.addResource(proc)
		}
	}

	return s
}

// MCP returns the underlying go-sdk server, for connecting custom transports.
func (s *Server) MCP() *mcp.Server {
	return s.server
}

// Handler serves the MCP streamable HTTP transport.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, &mcp.StreamableHTTPOptions{
		Logger: s.log,
	})
}

// Run serves a single MCP session over t until the peer disconnects or ctx
// is cancelled.
func (s *Server) Run(ctx context.Context, t mcp.Transport) error {
	return s.server.Run(ctx, t)
}

func (s *Server) addTool(proc *registry.Procedure) {
	annotations := &mcp.ToolAnnotations{ReadOnlyHint: !proc.IsUnsafe()}
	if proc.IsUnsafe() {
		destructive := true
		annotations.DestructiveHint = &destructive
	}

	name := proc.Name

	s.server.AddTool(&mcp.Tool{
		Name:        name,
		Description: proc.Description,
		InputSchema: proc.Schema,
		Annotations: annotations,
	}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return s.callTool(ctx, name, req), nil
	})
}

// callTool runs a tool call. Failures are folded into the result so the
// client sees the error kind alongside the message.
func (s *Server) callTool(ctx context.Context, name string, req *mcp.CallToolRequest) *mcp.CallToolResult {
	params, err := parseArguments(req)
	if err != nil {
		return errorResult(err)
	}

	if token := req.Params.GetProgressToken(); token != nil && req.Session != nil {
		var stop func()

		ctx, stop = s.forwardProgress(ctx, req.Session, token)
		defer stop()
	}

	value, err := s.dispatcher.Call(ctx, name, params)
	if err != nil {
		s.log.Debug("MCP tool call failed", "tool", name, "kind", errors.KindOf(err), "error", err)

		return errorResult(err)
	}

	result, err := valueResult(value)
	if err != nil {
		return errorResult(&errors.HostError{Procedure: name, Message: "encoding result", Err: err})
	}

	return result
}

// forwardProgress installs a progress reporter on ctx that relays reports
// to the MCP session without blocking the bridge owner. stop waits for
// queued reports to be sent.
func (s *Server) forwardProgress(
	ctx context.Context,
	session *mcp.ServerSession,
	token any,
) (context.Context, func()) {
	reports := make(chan *mcp.ProgressNotificationParams, progressBuffer)

	var (
		mu     sync.Mutex
		closed bool
		wg     sync.WaitGroup
	)

	wg.Go(func() {
		for params := range reports {
			if err := session.NotifyProgress(ctx, params); err != nil {
				s.log.Debug("Dropping MCP progress notification", "error", err)
			}
		}
	})

	report := func(progress, total float64, message string) {
		mu.Lock()
		defer mu.Unlock()

		if closed {
			return
		}

		select {
		case reports <- &mcp.ProgressNotificationParams{
			ProgressToken: token,
			Progress:      progress,
			Total:         total,
			Message:       message,
		}:
		default:
			s.log.Debug("MCP progress buffer full, dropping report")
		}
	}

	stop := func() {
		mu.Lock()
		closed = true
		close(reports)
		mu.Unlock()

		wg.Wait()
	}

	return protocol.WithProgress(ctx, report), stop
}

func (s *Server) addResource(proc *registry.Procedure) {
	name := proc.Name

	s.server.AddResource(&mcp.Resource{
		Name:        name,
		URI:         proc.URI,
		MIMEType:    proc.MIMEType,
		Description: proc.Description,
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		value, err := s.dispatcher.Call(ctx, name, nil)
		if err != nil {
			if _, ok := errors.AsType[*errors.NotFoundError](err); ok {
				return nil, mcp.ResourceNotFoundError(req.Params.URI)
			}

			return nil, err
		}

		text, err := resourceText(value)
		if err != nil {
			return nil, fmt.Errorf("encoding resource %s: %w", name, err)
		}

		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{{
				URI:      proc.URI,
				MIMEType: proc.MIMEType,
				Text:     text,
			}},
		}, nil
	})
}

// parseArguments unmarshals tool call arguments into a parameter map.
func parseArguments(req *mcp.CallToolRequest) (map[string]any, error) {
	if req == nil || req.Params == nil || len(req.Params.Arguments) == 0 {
		return make(map[string]any), nil
	}

	var args map[string]any
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return nil, &errors.InvalidParametersError{Procedure: req.Params.Name, Err: err}
	}

	return args, nil
}

// valueResult renders a procedure result as JSON text. Results that encode
// to a JSON object are also attached as structured content.
func valueResult(value any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	result := &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}

	var object map[string]any
	if json.Unmarshal(data, &object) == nil && object != nil {
		result.StructuredContent = object
	}

	return result, nil
}

func errorResult(err error) *mcp.CallToolResult {
	result := &mcp.CallToolResult{}
	result.SetError(fmt.Errorf("%s: %w", errors.KindOf(err), err))

	return result
}

// resourceText renders a resource value. Strings are served verbatim.
func resourceText(value any) (string, error) {
	if text, ok := value.(string); ok {
		return text, nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}

	return string(data), nil
}
