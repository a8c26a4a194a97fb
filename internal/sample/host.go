// Package sample is a small host environment that is not safe for concurrent
// use. It panics if two calls enter it at once, which makes it a direct check
// that every call is funnelled through the bridge owner.
package sample

import (
	"fmt"
	"maps"
	"slices"
	"sync/atomic"
	"time"
)

// Host is a key/value table with call accounting. Its methods must only be
// called from one goroutine at a time.
type Host struct {
	name    string
	started time.Time

	entered atomic.Bool

	// Guarded by entered, not by a lock.
	values map[string]any
	calls  uint64
}

// NewHost creates an empty host.
func NewHost(name string) *Host {
	return &Host{
		name:    name,
		started: time.Now(),
		values:  make(map[string]any),
	}
}

// enter marks the host busy and returns the matching exit. It panics if the
// host is already busy.
func (h *Host) enter() func() {
	if !h.entered.CompareAndSwap(false, true) {
		panic("sample: concurrent host entry")
	}

	h.calls++

	return func() { h.entered.Store(false) }
}

// Get returns the value stored under key.
func (h *Host) Get(key string) (any, error) {
	defer h.enter()()

	v, ok := h.values[key]
	if !ok {
		return nil, fmt.Errorf("no value for key %q", key)
	}

	return v, nil
}

// Set stores value under key and returns the previous value, if any.
func (h *Host) Set(key string, value any) (previous any, existed bool) {
	defer h.enter()()

	previous, existed = h.values[key]
	h.values[key] = value

	return previous, existed
}

// Delete removes key and reports whether it was present.
func (h *Host) Delete(key string) bool {
	defer h.enter()()

	_, ok := h.values[key]
	delete(h.values, key)

	return ok
}

// Values returns a copy of the table.
func (h *Host) Values() map[string]any {
	defer h.enter()()

	return maps.Clone(h.values)
}

// Keys returns the stored keys in sorted order.
func (h *Host) Keys() []string {
	defer h.enter()()

	return slices.Sorted(maps.Keys(h.values))
}

// Step performs one unit of a long-running scan. It holds the host for d to
// widen the window in which concurrent entry would be caught.
func (h *Host) Step(d time.Duration) {
	defer h.enter()()

	time.Sleep(d)
}

// Info is a snapshot of host metadata.
type Info struct {
	Name      string    `json:"name"`
	StartedAt time.Time `json:"started_at"`
	Calls     uint64    `json:"calls"`
	Values    int       `json:"values"`
}

// Info returns the host's metadata. The call itself is counted.
func (h *Host) Info() Info {
	defer h.enter()()

	return Info{
		Name:      h.name,
		StartedAt: h.started,
		Calls:     h.calls,
		Values:    len(h.values),
	}
}
