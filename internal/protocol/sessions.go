package protocol

import (
	"log/slog"
	"maps"
	"slices"
	"sync"
)

// Sessions is the table of open sessions, keyed by session id.
type Sessions struct {
	log         *slog.Logger
	eventBuffer int

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessions creates an empty table. eventBuffer sizes each session's push
// stream.
func NewSessions(log *slog.Logger, eventBuffer int) *Sessions {
	return &Sessions{
		log:         log,
		eventBuffer: eventBuffer,
		sessions:    make(map[string]*Session, 16),
	}
}

// Create opens a new session and adds it to the table. The session removes
// itself when closed.
func (t *Sessions) Create() *Session {
	sess := NewSession(t.log, t.eventBuffer)
	sess.onClose = t.remove

	t.mu.Lock()
	t.sessions[sess.ID] = sess
	count := len(t.sessions)
	t.mu.Unlock()

	t.log.Debug("Session opened", "session_id", sess.ID, "open_sessions", count)

	return sess
}

// Get returns the open session with the given id.
func (t *Sessions) Get(id string) (*Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	sess, ok := t.sessions[id]

	return sess, ok
}

// Close closes the session with the given id. Returns false if it is unknown.
func (t *Sessions) Close(id string) bool {
	sess, ok := t.Get(id)
	if !ok {
		return false
	}

	sess.Close()

	return true
}

// CloseAll closes every open session.
func (t *Sessions) CloseAll() {
	t.mu.RLock()
	open := slices.Collect(maps.Values(t.sessions))
	t.mu.RUnlock()

	for _, sess := range open {
		sess.Close()
	}
}

// Len returns the number of open sessions.
func (t *Sessions) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.sessions)
}

func (t *Sessions) remove(sess *Session) {
	t.mu.Lock()
	delete(t.sessions, sess.ID)
	t.mu.Unlock()
}
