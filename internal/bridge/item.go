package bridge

import (
	"container/list"
	"context"
	"sync/atomic"
	"time"

	"github.com/wagiedev/host-mcp-go/internal/errors"
)

// Func is a unit of host-touching work. ctx is cancelled when the submitter
// gives up on the result.
type Func func(ctx context.Context) (any, error)

type itemState int32

const (
	stateQueued itemState = iota
	stateRunning
	stateDone
	stateCancelled
)

// WorkItem is one pending invocation submitted to a Bridge.
//
// Its result slot is written exactly once: by the owner after running it, or
// by Cancel/Stop when it never started.
type WorkItem struct {
	// Seq is the submission sequence number. Items run in Seq order.
	Seq uint64

	bridge     *Bridge
	fn         Func
	ctx        context.Context
	cancel     context.CancelCauseFunc
	enqueuedAt time.Time

	// elem is the item's queue position; guarded by bridge.mu.
	elem *list.Element

	state     atomic.Int32
	abandoned atomic.Bool

	// counted is set by whichever of Cancel and Wait records the item's
	// cancellation or timeout in the stats.
	counted atomic.Bool

	done  chan struct{}
	value any
	err   error
}

// Done returns a channel closed once the result slot has been written.
func (w *WorkItem) Done() <-chan struct{} {
	return w.done
}

// Context returns the cancellation token shared with the running handler.
func (w *WorkItem) Context() context.Context {
	return w.ctx
}

// finish writes the result slot. Callers guarantee it runs once per item.
func (w *WorkItem) finish(value any, err error) {
	w.value = value
	w.err = err
	close(w.done)
}

// claimOutcome reports whether the caller is the first to record how the
// item was given up on.
func (w *WorkItem) claimOutcome() bool {
	return w.counted.CompareAndSwap(false, true)
}

// result returns the written result without blocking.
func (w *WorkItem) result() (any, error, bool) {
	select {
	case <-w.done:
		return w.value, w.err, true
	default:
		return nil, nil, false
	}
}

// Wait blocks until the owner has written the result, the item's context is
// cancelled, or timeout elapses. A timeout of zero or less waits without a
// deadline.
//
// On timeout the item is cancelled and SyncTimeoutError is returned; the
// owner is not interrupted and a late result is discarded.
func (w *WorkItem) Wait(timeout time.Duration) (any, error) {
	var deadline <-chan time.Time

	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		deadline = timer.C
	}

	select {
	case <-w.done:
		return w.value, w.err

	case <-deadline:
		if value, err, ok := w.result(); ok {
			return value, err
		}

		timeoutErr := &errors.SyncTimeoutError{Timeout: timeout}
		w.bridge.abandon(w, timeoutErr)

		if w.claimOutcome() {
			w.bridge.stats.timedOut.Add(1)
		}

		return nil, timeoutErr

	case <-w.ctx.Done():
		if value, err, ok := w.result(); ok {
			return value, err
		}

		cause := context.Cause(w.ctx)
		w.bridge.abandon(w, cause)

		if w.claimOutcome() {
			w.bridge.stats.cancelled.Add(1)
		}

		return nil, &errors.CancelledError{Reason: "cancelled by caller", Err: cause}
	}
}
