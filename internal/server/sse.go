package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wagiedev/host-mcp-go/internal/errors"
)

// handleEvents opens the push stream for a new session.
//
// The first event is "endpoint", whose data is the URI the client posts
// requests to for this session. Notifications follow as "message" events.
// Dropping the stream closes the session.
func (h *HTTP) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeRPCError(w, http.StatusInternalServerError,
			&errors.ProtocolError{Message: "streaming not supported by response writer"})

		return
	}

	sess := h.sessions.Create()
	defer sess.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set(SessionHeader, sess.ID)
	w.WriteHeader(http.StatusOK)

	endpoint := "/rpc?session=" + url.QueryEscape(sess.ID)
	if err := writeEvent(w, "endpoint", endpoint); err != nil {
		return
	}

	flusher.Flush()

	h.log.Debug("Event stream opened", "session_id", sess.ID)

	keepAlive := time.NewTicker(h.opts.KeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case n := <-sess.Events():
			data, err := json.Marshal(n)
			if err != nil {
				h.log.Error("Failed to marshal notification", "session_id", sess.ID, "error", err)

				continue
			}

			if err := writeEvent(w, "message", string(data)); err != nil {
				h.log.Debug("Event stream write failed", "session_id", sess.ID, "error", err)

				return
			}

			flusher.Flush()

		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}

			flusher.Flush()

		case <-sess.Done():
			h.log.Debug("Event stream ended by session close", "session_id", sess.ID)

			return

		case <-r.Context().Done():
			h.log.Debug("Event stream disconnected", "session_id", sess.ID)

			return
		}
	}
}

// writeEvent writes one SSE event. Multi-line data is split into several
// data fields.
func writeEvent(w http.ResponseWriter, event, data string) error {
	var b strings.Builder

	b.WriteString("event: ")
	b.WriteString(event)
	b.WriteString("\n")

	for line := range strings.SplitSeq(data, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")

	_, err := fmt.Fprint(w, b.String())

	return err
}
