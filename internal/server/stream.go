package server

import (
	"bufio"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/wagiedev/host-mcp-go/internal/errors"
	"github.com/wagiedev/host-mcp-go/internal/protocol"
)

// streamWriteTimeout bounds a single line write to a slow peer.
const streamWriteTimeout = 10 * time.Second

// StreamOptions configures the stream transport.
type StreamOptions struct {
	// MaxMessageBytes caps a single line. Zero means DefaultMaxMessageBytes.
	MaxMessageBytes int
}

// Stream serves line-delimited JSON over a stream listener. Each connection
// is one session.
type Stream struct {
	log        *slog.Logger
	dispatcher *protocol.Dispatcher
	sessions   *protocol.Sessions
	opts       StreamOptions

	// activeConnections tracks connection handlers so Serve returns only
	// after every session it opened is closed.
	activeConnections sync.WaitGroup
}

// NewStream creates the stream transport.
func NewStream(
	log *slog.Logger,
	dispatcher *protocol.Dispatcher,
	sessions *protocol.Sessions,
	opts StreamOptions,
) *Stream {
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = DefaultMaxMessageBytes
	}

	return &Stream{
		log:        log.With("component", "stream"),
		dispatcher: dispatcher,
		sessions:   sessions,
		opts:       opts,
	}
}

// Serve accepts connections on ln until ctx is cancelled or ln is closed,
// then closes every connection it accepted and waits for their handlers.
// It closes ln on return.
func (s *Stream) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.log.Info("Stream transport listening", "addr", ln.Addr().String())

	var acceptErr error

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() == nil && !stderrors.Is(err, net.ErrClosed) {
				acceptErr = err
			}

			break
		}

		s.activeConnections.Go(func() {
			s.handleConnection(ctx, conn)
		})
	}

	cancel()
	s.activeConnections.Wait()

	s.log.Info("Stream transport stopped")

	return acceptErr
}

// handleConnection reads requests line by line and answers them
// concurrently. A single writer goroutine owns the connection's write side.
func (s *Stream) handleConnection(ctx context.Context, conn net.Conn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sess := s.sessions.Create()
	log := s.log.With("session_id", sess.ID, "remote", conn.RemoteAddr().String())

	log.Debug("Stream connection opened")

	out := make(chan []byte, 32)
	peerGone := make(chan struct{})

	var writerDone sync.WaitGroup

	writerDone.Go(func() {
		s.writeLoop(ctx, conn, sess, out, peerGone, log)
	})

	// Close the connection when the context ends so the blocked reader wakes.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	var handlers sync.WaitGroup

	send := func(resp *protocol.Response) {
		data, err := json.Marshal(resp)
		if err != nil {
			log.Error("Failed to marshal response", "error", err)

			return
		}

		select {
		case out <- data:
		case <-ctx.Done():
		}
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, min(64*1024, s.opts.MaxMessageBytes)), s.opts.MaxMessageBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		msg := make([]byte, len(line))
		copy(msg, line)

		handlers.Go(func() {
			if resp := s.dispatcher.Handle(ctx, sess, msg); resp != nil {
				send(resp)
			}
		})
	}

	readErr := scanner.Err()

	switch {
	case readErr == nil:
	case stderrors.Is(readErr, bufio.ErrTooLong):
		log.Warn("Closing stream connection: message too large", "limit", s.opts.MaxMessageBytes)
		send(&protocol.Response{
			JSONRPC: protocol.Version,
			ID:      json.RawMessage("null"),
			Error:   protocol.NewErrorObject(&errors.ProtocolError{Message: "message too large", Err: readErr}),
		})
	case ctx.Err() == nil && !isClosedConn(readErr):
		log.Warn("Stream read failed", "error", readErr)
	}

	// A clean EOF may be a half-close: the peer is done sending but still
	// reading. Accepted requests keep their session until they answer, unless
	// a failed write shows nobody is listening.
	if readErr == nil && ctx.Err() == nil {
		log.Debug("Stream input closed, finishing in-flight requests")

		drained := make(chan struct{})

		go func() {
			handlers.Wait()
			close(drained)
		}()

		select {
		case <-drained:
		case <-peerGone:
			log.Debug("Stream peer gone, cancelling in-flight requests")
		case <-ctx.Done():
		}
	}

	// Cancel whatever is left, let handlers return, then flush.
	sess.Close()
	handlers.Wait()
	close(out)
	writerDone.Wait()

	log.Debug("Stream connection closed")
}

// writeLoop writes responses and session notifications as JSON lines until
// out is closed. peerGone is closed on the first failed write.
func (s *Stream) writeLoop(
	ctx context.Context,
	conn net.Conn,
	sess *protocol.Session,
	out <-chan []byte,
	peerGone chan<- struct{},
	log *slog.Logger,
) {
	w := bufio.NewWriter(conn)
	broken := false

	write := func(data []byte) {
		if broken {
			return
		}

		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))

		_, err := w.Write(data)
		if err == nil {
			err = w.WriteByte('\n')
		}

		if err == nil {
			err = w.Flush()
		}

		if err != nil {
			broken = true
			close(peerGone)

			if ctx.Err() == nil && !isClosedConn(err) {
				log.Warn("Stream write failed", "error", err)
			}
		}
	}

	events := sess.Events()

	for {
		select {
		case data, ok := <-out:
			if !ok {
				return
			}

			write(data)

		case n := <-events:
			data, err := json.Marshal(n)
			if err != nil {
				log.Error("Failed to marshal notification", "error", err)

				continue
			}

			write(data)
		}
	}
}

// isClosedConn reports whether err is the expected result of a peer hanging up.
func isClosedConn(err error) bool {
	return stderrors.Is(err, io.EOF) ||
		stderrors.Is(err, io.ErrClosedPipe) ||
		stderrors.Is(err, net.ErrClosed) ||
		stderrors.Is(err, syscall.ECONNRESET) ||
		stderrors.Is(err, syscall.EPIPE)
}
