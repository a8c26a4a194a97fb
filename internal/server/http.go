package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wagiedev/host-mcp-go/internal/bridge"
	"github.com/wagiedev/host-mcp-go/internal/errors"
	"github.com/wagiedev/host-mcp-go/internal/protocol"
)

const (
	// SessionHeader selects the session a POST /rpc request runs on.
	SessionHeader = "X-Session-ID"

	// DefaultMaxMessageBytes caps a single request body or stream line.
	DefaultMaxMessageBytes = 4 << 20

	defaultKeepAlive = 15 * time.Second
)

// HTTPOptions configures the HTTP transport.
type HTTPOptions struct {
	// MaxMessageBytes caps request bodies. Zero means DefaultMaxMessageBytes.
	MaxMessageBytes int64

	// KeepAlive is the interval between SSE comment pings. Zero means 15s.
	KeepAlive time.Duration

	// MCP, when set, is mounted at /mcp.
	MCP http.Handler
}

// HTTP serves the protocol over HTTP.
type HTTP struct {
	log        *slog.Logger
	dispatcher *protocol.Dispatcher
	sessions   *protocol.Sessions
	bridge     *bridge.Bridge
	opts       HTTPOptions
}

// NewHTTP creates the HTTP transport. Call Routes to obtain the handler.
func NewHTTP(
	log *slog.Logger,
	dispatcher *protocol.Dispatcher,
	sessions *protocol.Sessions,
	br *bridge.Bridge,
	opts HTTPOptions,
) *HTTP {
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = DefaultMaxMessageBytes
	}

	if opts.KeepAlive <= 0 {
		opts.KeepAlive = defaultKeepAlive
	}

	return &HTTP{
		log:        log.With("component", "http"),
		dispatcher: dispatcher,
		sessions:   sessions,
		bridge:     br,
		opts:       opts,
	}
}

// Routes returns the transport's router.
func (h *HTTP) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", h.handleHealthz)
	r.Post("/rpc", h.handleRPC)
	r.Get("/events", h.handleEvents)
	r.Delete("/sessions/{session_id}", h.handleDeleteSession)

	if h.opts.MCP != nil {
		r.Mount("/mcp", h.opts.MCP)
	}

	return r
}

// handleRPC runs one request. The session comes from the X-Session-ID header
// or the session query parameter; without either, the request runs on a
// session that lives only for this call.
func (h *HTTP) handleRPC(w http.ResponseWriter, r *http.Request) {
	sess, ephemeral, ok := h.resolveSession(w, r)
	if !ok {
		return
	}

	if ephemeral {
		defer sess.Close()
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.opts.MaxMessageBytes))
	if err != nil {
		status := http.StatusBadRequest

		if _, tooLarge := errors.AsType[*http.MaxBytesError](err); tooLarge {
			status = http.StatusRequestEntityTooLarge
		}

		writeRPCError(w, status, &errors.ProtocolError{Message: "reading request body", Err: err})

		return
	}

	resp := h.dispatcher.Handle(r.Context(), sess, body)
	if resp == nil {
		status := http.StatusAccepted
		if !ephemeral && sess.Closed() {
			status = http.StatusGone
		}

		w.WriteHeader(status)

		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// resolveSession finds the session named by the request, or creates an
// ephemeral one. It writes the error response itself when ok is false.
func (h *HTTP) resolveSession(w http.ResponseWriter, r *http.Request) (sess *protocol.Session, ephemeral, ok bool) {
	id := r.Header.Get(SessionHeader)
	if id == "" {
		id = r.URL.Query().Get("session")
	}

	if id == "" {
		return h.sessions.Create(), true, true
	}

	sess, found := h.sessions.Get(id)
	if !found {
		writeRPCError(w, http.StatusNotFound, &errors.ProtocolError{Message: "unknown session " + id})

		return nil, false, false
	}

	return sess, false, true
}

func (h *HTTP) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")

	if !h.sessions.Close(id) {
		writeRPCError(w, http.StatusNotFound, &errors.ProtocolError{Message: "unknown session " + id})

		return
	}

	h.log.Debug("Session closed by client", "session_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// Health is the body of GET /healthz.
type Health struct {
	Status   string                    `json:"status"`
	Sessions int                       `json:"sessions"`
	Bridge   bridge.Stats              `json:"bridge"`
	Requests map[protocol.State]uint64 `json:"requests"`
}

func (h *HTTP) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	status := "ok"

	select {
	case <-h.bridge.Done():
		status = "stopping"
	default:
	}

	writeJSON(w, http.StatusOK, &Health{
		Status:   status,
		Sessions: h.sessions.Len(),
		Bridge:   h.bridge.Stats(),
		Requests: h.dispatcher.Outcomes(),
	})
}

// logRequests logs each request once it completes.
func (h *HTTP) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		h.log.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

// writeRPCError writes a transport-level failure as an uncorrelated error
// response.
func writeRPCError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, &protocol.Response{
		JSONRPC: protocol.Version,
		ID:      json.RawMessage("null"),
		Error:   protocol.NewErrorObject(err),
	})
}
