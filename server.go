package hostmcp

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/wagiedev/host-mcp-go/internal/bridge"
	"github.com/wagiedev/host-mcp-go/internal/errors"
	internalmcp "github.com/wagiedev/host-mcp-go/internal/mcp"
	"github.com/wagiedev/host-mcp-go/internal/protocol"
	"github.com/wagiedev/host-mcp-go/internal/registry"
	"github.com/wagiedev/host-mcp-go/internal/server"
)

// Stats is a snapshot of the owner loop's counters.
type Stats = bridge.Stats

// Server exposes a non-thread-safe host to concurrent remote clients.
//
// Register procedures, then Start. Every call, from any transport, runs on a
// single owner goroutine in arrival order.
type Server struct {
	opts *Options
	log  *slog.Logger

	registry   *registry.Registry
	bridge     *bridge.Bridge
	sessions   *protocol.Sessions
	dispatcher *protocol.Dispatcher

	mu      sync.Mutex
	started bool
	closed  bool
	mcp     *internalmcp.Server
	handler http.Handler
}

// New creates a server. Nothing runs until Start.
func New(opts ...Option) *Server {
	options := applyOptions(opts)
	log := options.Logger

	reg := registry.New(log)
	br := bridge.New(log, bridge.Options{LockOSThread: options.LockOSThread})

	return &Server{
		opts:     options,
		log:      log,
		registry: reg,
		bridge:   br,
		sessions: protocol.NewSessions(log, options.EventBuffer),
		dispatcher: protocol.NewDispatcher(log, reg, br, protocol.Options{
			Unsafe:        options.Unsafe,
			Timeout:       options.RequestTimeout,
			ServerName:    options.ServerName,
			ServerVersion: options.ServerVersion,
		}),
	}
}

// Register adds procedures. It stops at the first failure; procedures before
// it stay registered. After Start it fails with ErrRegistryFrozen.
func (s *Server) Register(procs ...*Procedure) error {
	for _, p := range procs {
		if err := s.registry.Register(p); err != nil {
			return err
		}
	}

	return nil
}

// Procedures describes the registered procedures in registration order,
// optionally filtered by kind.
func (s *Server) Procedures(kinds ...ProcedureKind) []Descriptor {
	return s.registry.Describe(kinds...)
}

// Start freezes the registry and starts the owner loop. The owner runs until
// ctx is cancelled or Close is called, so ctx should live as long as the
// server.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.ErrServerClosed
	}

	if s.started {
		return errors.ErrServerAlreadyStarted
	}

	if err := s.Register(s.opts.Procedures...); err != nil {
		return fmt.Errorf("registering procedures: %w", err)
	}

	s.registry.Freeze()

	if err := s.bridge.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}

	httpOpts := server.HTTPOptions{MaxMessageBytes: s.opts.MaxMessageBytes}

	if !s.opts.DisableMCP {
		s.mcp = internalmcp.NewServer(s.log, s.registry, s.dispatcher)
		httpOpts.MCP = s.mcp.Handler()
	}

	s.handler = server.NewHTTP(s.log, s.dispatcher, s.sessions, s.bridge, httpOpts).Routes()
	s.started = true

	s.log.Info("Server started",
		"procedures", s.registry.Len(),
		"unsafe", s.opts.Unsafe,
		"request_timeout", s.opts.RequestTimeout,
		"mcp", !s.opts.DisableMCP,
	)

	return nil
}

// running reports whether the server is started and not closed.
func (s *Server) running() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return errors.ErrServerClosed
	case !s.started:
		return errors.ErrServerNotStarted
	default:
		return nil
	}
}

// Call runs a procedure in-process through the same path remote requests
// take: lookup, unsafe gate, validation, then the owner loop.
func (s *Server) Call(ctx context.Context, name string, params map[string]any) (any, error) {
	if err := s.running(); err != nil {
		return nil, err
	}

	return s.dispatcher.Call(ctx, name, params)
}

// Handler returns the HTTP routes: /rpc, /events, /sessions/{id}, /healthz
// and, unless disabled, /mcp.
func (s *Server) Handler() (http.Handler, error) {
	if err := s.running(); err != nil {
		return nil, err
	}

	return s.handler, nil
}

// ServeMCP serves a single MCP session over t, such as mcp.StdioTransport,
// until the peer disconnects or ctx is cancelled.
func (s *Server) ServeMCP(ctx context.Context, t mcp.Transport) error {
	if err := s.running(); err != nil {
		return err
	}

	if s.mcp == nil {
		return fmt.Errorf("MCP is disabled")
	}

	return s.mcp.Run(ctx, t)
}

// ServeStream serves line-delimited JSON on ln until ctx is cancelled.
func (s *Server) ServeStream(ctx context.Context, ln net.Listener) error {
	if err := s.running(); err != nil {
		return err
	}

	return server.NewStream(s.log, s.dispatcher, s.sessions, server.StreamOptions{
		MaxMessageBytes: int(s.opts.MaxMessageBytes),
	}).Serve(ctx, ln)
}

// Serve serves HTTP on httpLn and the stream transport on streamLn until ctx
// is cancelled or a transport fails. Either listener may be nil. The server
// is started with ctx if it was not already.
func (s *Server) Serve(ctx context.Context, httpLn, streamLn net.Listener) error {
	if httpLn == nil && streamLn == nil {
		return fmt.Errorf("no listeners")
	}

	if err := s.Start(ctx); err != nil && !stderrors.Is(err, errors.ErrServerAlreadyStarted) {
		return err
	}

	handler, err := s.Handler()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if httpLn != nil {
		srv := &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: s.opts.HTTP.ReadHeaderTimeout,
			ReadTimeout:       s.opts.HTTP.ReadTimeout,
			WriteTimeout:      s.opts.HTTP.WriteTimeout,
			IdleTimeout:       s.opts.HTTP.IdleTimeout,
			ErrorLog:          slog.NewLogLogger(s.log.Handler(), slog.LevelWarn),
		}

		g.Go(func() error {
			s.log.Info("HTTP transport listening", "addr", httpLn.Addr().String())

			if err := srv.Serve(httpLn); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http: %w", err)
			}

			return nil
		})

		g.Go(func() error {
			<-gctx.Done()

			// Event streams only end when their session closes.
			s.sessions.CloseAll()

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.HTTP.ShutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				s.log.Warn("HTTP shutdown incomplete", "error", err)

				return srv.Close()
			}

			return nil
		})
	}

	if streamLn != nil {
		g.Go(func() error {
			if err := s.ServeStream(gctx, streamLn); err != nil {
				return fmt.Errorf("stream: %w", err)
			}

			return nil
		})
	}

	return g.Wait()
}

// ListenAndServe listens on httpAddr and streamAddr, either of which may be
// empty, and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, httpAddr, streamAddr string) error {
	var lc net.ListenConfig

	var httpLn, streamLn net.Listener

	if httpAddr != "" {
		ln, err := lc.Listen(ctx, "tcp", httpAddr)
		if err != nil {
			return fmt.Errorf("listen http: %w", err)
		}

		httpLn = ln
	}

	if streamAddr != "" {
		ln, err := lc.Listen(ctx, "tcp", streamAddr)
		if err != nil {
			if httpLn != nil {
				httpLn.Close()
			}

			return fmt.Errorf("listen stream: %w", err)
		}

		streamLn = ln
	}

	return s.Serve(ctx, httpLn, streamLn)
}

// Stats returns the owner loop's counters.
func (s *Server) Stats() Stats {
	return s.bridge.Stats()
}

// Close closes every session, stops the owner loop and fails queued calls.
// It is safe to call more than once.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()

		return nil
	}

	s.closed = true
	s.mu.Unlock()

	s.sessions.CloseAll()
	s.bridge.Stop()

	s.log.Info("Server closed", "stats", s.bridge.Stats())

	return nil
}

// WithServer manages server lifecycle with automatic cleanup.
//
// It creates and starts a server with opts, runs fn, and closes the server
// when fn returns. Register procedures with WithProcedures.
//
// Example usage:
//
//	err := hostmcp.WithServer(ctx, func(s *hostmcp.Server) error {
//	    return s.ListenAndServe(ctx, "127.0.0.1:8765", "")
//	},
//	    hostmcp.WithLogger(log),
//	    hostmcp.WithProcedures(add, echo),
//	)
func WithServer(ctx context.Context, fn func(*Server) error, opts ...Option) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s := New(opts...)
	if err := s.Start(ctx); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	defer func() {
		if closeErr := s.Close(); closeErr != nil {
			s.log.Warn("failed to close server", "error", closeErr)
		}
	}()

	return fn(s)
}
