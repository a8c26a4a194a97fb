package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/wagiedev/host-mcp-go/internal/bridge"
	"github.com/wagiedev/host-mcp-go/internal/errors"
	"github.com/wagiedev/host-mcp-go/internal/registry"
)

// DefaultTimeout bounds a bridge submission when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// Options configures a Dispatcher.
type Options struct {
	// Unsafe enables execution of procedures marked unsafe.
	Unsafe bool

	// Timeout bounds each bridge submission.
	Timeout time.Duration

	ServerName    string
	ServerVersion string
}

// ServerInfo identifies the server in the initialize result.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ServerCapabilities is advertised in the initialize result.
type ServerCapabilities struct {
	Tools     int  `json:"tools"`
	Resources int  `json:"resources"`
	Unsafe    bool `json:"unsafe"`
	Progress  bool `json:"progress"`
}

// InitializeResult is the result of the initialize method.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	ServerInfo      ServerInfo         `json:"serverInfo"`
	SessionID       string             `json:"sessionId"`
	Capabilities    ServerCapabilities `json:"capabilities"`
}

type initializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
}

type listParams struct {
	Kind registry.Kind `json:"kind"`
}

type cancelParams struct {
	ID json.RawMessage `json:"id"`
}

// Dispatcher drives a single message from parse to response.
//
// Order per request: parse, built-in methods, registry lookup, unsafe gate,
// parameter validation, bridge submission. Every failure becomes a typed
// error response; nothing a client sends can crash the dispatcher or the
// bridge owner.
type Dispatcher struct {
	log      *slog.Logger
	registry *registry.Registry
	bridge   *bridge.Bridge
	opts     Options

	outcomesMu sync.Mutex
	outcomes   map[State]uint64
}

// NewDispatcher creates a dispatcher over a frozen registry and a started bridge.
func NewDispatcher(
	log *slog.Logger,
	reg *registry.Registry,
	br *bridge.Bridge,
	opts Options,
) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	if opts.ServerName == "" {
		opts.ServerName = "host-mcp-go"
	}

	return &Dispatcher{
		log:      log.With("component", "dispatcher"),
		registry: reg,
		bridge:   br,
		opts:     opts,
		outcomes: make(map[State]uint64, 8),
	}
}

// Options returns the dispatcher's effective options.
func (d *Dispatcher) Options() Options {
	return d.opts
}

// Handle parses data and dispatches it on sess. It returns nil when no
// response is due: for notifications, and for cancelled requests whose
// session has already closed.
func (d *Dispatcher) Handle(ctx context.Context, sess *Session, data []byte) *Response {
	req, err := ParseRequest(data)
	if err != nil {
		d.record(StateProtocolInvalid)
		d.log.Warn("Rejected malformed message", "session_id", sess.ID, "error", err)

		return newErrorResponse(salvageID(data), err)
	}

	return d.HandleRequest(ctx, sess, req)
}

// HandleRequest dispatches an already parsed request on sess.
func (d *Dispatcher) HandleRequest(ctx context.Context, sess *Session, req *Request) *Response {
	if req.IsNotification() {
		d.handleNotification(ctx, sess, req)

		return nil
	}

	key, err := idKey(req.ID)
	if err != nil {
		d.record(StateProtocolInvalid)

		return newErrorResponse(nullID, err)
	}

	reqCtx, finish, err := sess.Begin(ctx, key, req.Method)
	if err != nil {
		if errors.Is(err, errors.ErrSessionClosed) {
			d.log.Debug("Dropping request for closed session", "session_id", sess.ID, "request_id", key)

			return nil
		}

		d.record(StateProtocolInvalid)

		return newErrorResponse(req.ID, err)
	}
	defer finish()

	start := time.Now()

	d.log.Debug("Handling request",
		"session_id", sess.ID,
		"request_id", key,
		"method", req.Method,
	)

	value, err := d.dispatch(reqCtx, sess, req)
	state := Outcome(err)
	d.record(state)

	if err != nil {
		if state == StateCancelled && sess.Closed() {
			d.log.Debug("Dropping cancelled response for closed session",
				"session_id", sess.ID,
				"request_id", key,
			)

			return nil
		}

		d.log.Warn("Request failed",
			"session_id", sess.ID,
			"request_id", key,
			"method", req.Method,
			"state", state,
			"duration", time.Since(start),
			"error", err,
		)

		return newErrorResponse(req.ID, err)
	}

	d.log.Debug("Request succeeded",
		"session_id", sess.ID,
		"request_id", key,
		"method", req.Method,
		"duration", time.Since(start),
	)

	return newResultResponse(req.ID, value)
}

// dispatch routes a request to a built-in or to a registered procedure.
func (d *Dispatcher) dispatch(ctx context.Context, sess *Session, req *Request) (any, error) {
	switch req.Method {
	case MethodInitialize:
		return d.initialize(sess, req)

	case MethodPing:
		return struct{}{}, nil

	case MethodListProcedures:
		return d.listProcedures(req)

	case MethodCancelRequest:
		return d.cancelRequest(sess, req)
	}

	params, err := req.ParamsMap()
	if err != nil {
		return nil, err
	}

	ctx = withRequest(ctx, &requestInfo{
		session:       sess,
		method:        req.Method,
		progressToken: progressToken(params, req.ID),
	})

	return d.Call(ctx, req.Method, params)
}

// Call runs a registered procedure by name: lookup, unsafe gate, validation,
// then submission to the bridge with the configured timeout. Transports that
// speak other protocols use it to share the same execution path.
func (d *Dispatcher) Call(ctx context.Context, name string, params map[string]any) (any, error) {
	proc, err := d.registry.Lookup(name)
	if err != nil {
		return nil, err
	}

	// Unsafe gate precedes validation; a gated handler is never reached.
	if proc.IsUnsafe() && !d.opts.Unsafe {
		return nil, &errors.UnsafeDisabledError{Name: name}
	}

	validated, err := proc.Validate(params)
	if err != nil {
		return nil, err
	}

	value, err := d.bridge.Submit(ctx, func(ctx context.Context) (any, error) {
		return proc.Handler(ctx, validated)
	}, d.opts.Timeout)
	if err != nil {
		if hostErr, ok := errors.AsType[*errors.HostError](err); ok && hostErr.Procedure == "" {
			hostErr.Procedure = name
		}

		return nil, err
	}

	return value, nil
}

func (d *Dispatcher) initialize(sess *Session, req *Request) (any, error) {
	var params initializeParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}

	sess.SetCapabilities(params.Capabilities)

	var tools, resources int

	for p := range d.registry.List() {
		if p.Kind == registry.KindResource {
			resources++
		} else {
			tools++
		}
	}

	d.log.Info("Session initialized",
		"session_id", sess.ID,
		"client_protocol_version", params.ProtocolVersion,
	)

	return &InitializeResult{
		ProtocolVersion: Version,
		ServerInfo: ServerInfo{
			Name:    d.opts.ServerName,
			Version: d.opts.ServerVersion,
		},
		SessionID: sess.ID,
		Capabilities: ServerCapabilities{
			Tools:     tools,
			Resources: resources,
			Unsafe:    d.opts.Unsafe,
			Progress:  true,
		},
	}, nil
}

func (d *Dispatcher) listProcedures(req *Request) (any, error) {
	var params listParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}

	switch params.Kind {
	case "":
		return d.registry.Describe(), nil
	case registry.KindTool, registry.KindResource:
		return d.registry.Describe(params.Kind), nil
	default:
		return nil, &errors.InvalidParametersError{
			Procedure: MethodListProcedures,
			Err:       fmt.Errorf("unknown kind %q", params.Kind),
		}
	}
}

func (d *Dispatcher) cancelRequest(sess *Session, req *Request) (any, error) {
	var params cancelParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}

	if len(params.ID) == 0 {
		return nil, &errors.InvalidParametersError{
			Procedure: MethodCancelRequest,
			Err:       fmt.Errorf("id is required"),
		}
	}

	key, err := idKey(params.ID)
	if err != nil {
		return nil, &errors.InvalidParametersError{Procedure: MethodCancelRequest, Err: err}
	}

	return map[string]bool{"cancelled": sess.CancelRequest(key)}, nil
}

// handleNotification processes a message that expects no response.
// Procedure notifications still run; their outcome is only logged.
func (d *Dispatcher) handleNotification(ctx context.Context, sess *Session, req *Request) {
	switch req.Method {
	case MethodCancelRequest:
		if _, err := d.cancelRequest(sess, req); err != nil {
			d.log.Debug("Ignoring invalid cancel notification", "session_id", sess.ID, "error", err)
		}

		return

	case MethodInitialized, MethodPing:
		return

	case MethodInitialize, MethodListProcedures:
		d.log.Debug("Ignoring built-in sent as notification", "method", req.Method)

		return
	}

	params, err := req.ParamsMap()
	if err != nil {
		d.log.Debug("Ignoring notification with invalid params", "method", req.Method, "error", err)

		return
	}

	ctx = withRequest(ctx, &requestInfo{
		session:       sess,
		method:        req.Method,
		progressToken: progressToken(params, nil),
	})

	_, err = d.Call(ctx, req.Method, params)
	d.record(Outcome(err))

	if err != nil {
		d.log.Debug("Notification failed", "session_id", sess.ID, "method", req.Method, "error", err)
	}
}

// record counts a request's terminal state.
func (d *Dispatcher) record(state State) {
	d.outcomesMu.Lock()
	d.outcomes[state]++
	d.outcomesMu.Unlock()
}

// Outcomes returns how many requests ended in each terminal state.
func (d *Dispatcher) Outcomes() map[State]uint64 {
	d.outcomesMu.Lock()
	defer d.outcomesMu.Unlock()

	return maps.Clone(d.outcomes)
}

// decodeParams decodes a built-in method's params into dst. Absent params
// leave dst at its zero value.
func decodeParams(req *Request, dst any) error {
	params, err := req.ParamsMap()
	if err != nil || params == nil {
		return err
	}

	data, err := json.Marshal(params)
	if err != nil {
		return &errors.InvalidParametersError{Procedure: req.Method, Err: err}
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return &errors.InvalidParametersError{Procedure: req.Method, Err: err}
	}

	return nil
}
