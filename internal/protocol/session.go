package protocol

import (
	"cmp"
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/wagiedev/host-mcp-go/internal/errors"
)

// Session is one client connection's lifecycle and its in-flight requests.
//
// Closing a session cancels every in-flight request; requests still queued on
// the bridge are removed, and running handlers observe cancellation at their
// next checkpoint.
type Session struct {
	// ID is a ULID assigned at creation.
	ID        string
	CreatedAt time.Time

	log *slog.Logger

	mu           sync.Mutex
	capabilities map[string]any
	inFlight     map[string]*inFlightRequest
	nextSeq      uint64
	closed       bool

	// events is never closed; readers select on Done as well.
	events chan *Notification

	closeOnce sync.Once
	done      chan struct{}
	onClose   func(*Session)
}

// inFlightRequest tracks a request accepted on a session.
type inFlightRequest struct {
	seq       uint64
	method    string
	cancel    context.CancelCauseFunc
	startTime time.Time
}

// NewSession creates a standalone session. Most callers use Sessions.Create.
func NewSession(log *slog.Logger, eventBuffer int) *Session {
	if eventBuffer < 1 {
		eventBuffer = 1
	}

	id := ulid.Make().String()

	return &Session{
		ID:        id,
		CreatedAt: time.Now(),
		log:       log.With("component", "session", "session_id", id),
		inFlight:  make(map[string]*inFlightRequest, 8),
		events:    make(chan *Notification, eventBuffer),
		done:      make(chan struct{}),
	}
}

// Capabilities returns a copy of the capabilities the client sent in initialize.
func (s *Session) Capabilities() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	return maps.Clone(s.capabilities)
}

// SetCapabilities records the client's negotiated capabilities.
func (s *Session) SetCapabilities(caps map[string]any) {
	s.mu.Lock()
	s.capabilities = maps.Clone(caps)
	s.mu.Unlock()
}

// Begin registers an in-flight request under key and returns a context that
// is cancelled when the request is cancelled or the session closes. The
// returned finish func must be called once the response has been produced.
//
// Returns ProtocolError if key is already in flight and ErrSessionClosed if
// the session is closed.
func (s *Session) Begin(ctx context.Context, key, method string) (context.Context, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, nil, errors.ErrSessionClosed
	}

	if _, exists := s.inFlight[key]; exists {
		return nil, nil, &errors.ProtocolError{Message: "request id " + key + " is already in flight"}
	}

	reqCtx, cancel := context.WithCancelCause(ctx)

	s.nextSeq++
	req := &inFlightRequest{
		seq:       s.nextSeq,
		method:    method,
		cancel:    cancel,
		startTime: time.Now(),
	}
	s.inFlight[key] = req

	finish := func() {
		s.mu.Lock()
		if s.inFlight[key] == req {
			delete(s.inFlight, key)
		}
		s.mu.Unlock()

		cancel(context.Canceled)
	}

	return reqCtx, finish, nil
}

// CancelRequest cancels the in-flight request registered under key. It is a
// no-op returning false when the request has already finished.
func (s *Session) CancelRequest(key string) bool {
	s.mu.Lock()
	req, exists := s.inFlight[key]
	s.mu.Unlock()

	if !exists {
		s.log.Debug("Cancel for request not in flight", "request_id", key)

		return false
	}

	req.cancel(errors.ErrRequestCancelled)
	s.log.Debug("Cancelled in-flight request", "request_id", key, "method", req.method)

	return true
}

// InFlight returns the keys of in-flight requests in acceptance order.
func (s *Session) InFlight() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	type entry struct {
		key string
		seq uint64
	}

	entries := make([]entry, 0, len(s.inFlight))
	for key, req := range s.inFlight {
		entries = append(entries, entry{key: key, seq: req.seq})
	}

	slices.SortFunc(entries, func(a, b entry) int { return cmp.Compare(a.seq, b.seq) })

	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.key
	}

	return keys
}

// Notify queues a notification on the session's event stream without
// blocking. Returns ErrEventDropped if the buffer is full and
// ErrSessionClosed after Close.
func (s *Session) Notify(method string, params any) error {
	select {
	case <-s.done:
		return errors.ErrSessionClosed
	default:
	}

	n := &Notification{JSONRPC: Version, Method: method, Params: params}

	select {
	case s.events <- n:
		return nil
	default:
		s.log.Warn("Dropping notification, event buffer full", "method", method)

		return errors.ErrEventDropped
	}
}

// Events returns the session's push stream. The channel is never closed;
// consumers also watch Done.
func (s *Session) Events() <-chan *Notification {
	return s.events
}

// Done returns a channel closed when the session closes.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Close cancels all in-flight requests and marks the session closed. Safe to
// call multiple times.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		pending := slices.Collect(maps.Values(s.inFlight))
		onClose := s.onClose
		s.mu.Unlock()

		for _, req := range pending {
			req.cancel(errors.ErrSessionClosed)
		}

		close(s.done)

		if onClose != nil {
			onClose(s)
		}

		s.log.Debug("Session closed", "cancelled_requests", len(pending))
	})
}
