package bridge

import (
	"container/list"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wagiedev/host-mcp-go/internal/errors"
)

// Options configures a Bridge.
type Options struct {
	// LockOSThread pins the owner goroutine to a single OS thread for hosts
	// whose API has thread affinity, not just a single-caller requirement.
	LockOSThread bool
}

// Stats is a point-in-time snapshot of bridge counters.
type Stats struct {
	Submitted  uint64 `json:"submitted"`
	Completed  uint64 `json:"completed"`
	Failed     uint64 `json:"failed"`
	TimedOut   uint64 `json:"timed_out"`
	Cancelled  uint64 `json:"cancelled"`
	QueueDepth int    `json:"queue_depth"`
	Running    bool   `json:"running"`
}

type counters struct {
	submitted atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	timedOut  atomic.Uint64
	cancelled atomic.Uint64
}

// ownerKey maps contexts handed to running work back to their WorkItem.
type ownerKey struct{}

// Bridge runs submitted work on a single owner goroutine in FIFO order.
//
// The Bridge must be started with Start() before use. Stop drains the queue,
// failing every item that has not started with CancelledError.
type Bridge struct {
	log  *slog.Logger
	opts Options

	// Queue state
	mu      sync.Mutex
	queue   *list.List
	current *WorkItem
	started bool
	stopped bool

	// wake has capacity one; a pending token means the queue may be non-empty.
	wake chan struct{}

	seq   atomic.Uint64
	stats counters

	// Lifecycle management
	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// New creates a bridge. Call Start to launch the owner goroutine.
func New(log *slog.Logger, opts Options) *Bridge {
	return &Bridge{
		log:   log.With("component", "bridge"),
		opts:  opts,
		queue: list.New(),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Start launches the owner goroutine. The owner exits when ctx is cancelled
// or Stop is called.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return errors.ErrBridgeStopped
	}

	if b.started {
		return fmt.Errorf("bridge already started")
	}

	b.started = true

	b.wg.Go(func() {
		b.run(ctx)
	})

	b.log.Info("Bridge owner started", "lock_os_thread", b.opts.LockOSThread)

	return nil
}

// Stop signals the owner to exit, advises the running item to stop, waits for
// the owner, and fails everything still queued. Safe to call multiple times.
func (b *Bridge) Stop() {
	b.closeOnce.Do(func() {
		close(b.done)
	})

	b.mu.Lock()
	b.stopped = true
	running := b.current
	b.mu.Unlock()

	if running != nil {
		running.cancel(errors.ErrBridgeStopped)
	}

	b.wg.Wait()
	b.drain()
}

// Done returns a channel that is closed when Stop is called.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// Submit runs fn on the owner and blocks for its result.
//
// Returns SyncTimeoutError if timeout elapses first and CancelledError if ctx
// is cancelled first. Failures returned or raised by fn are folded into
// HostError unless they already belong to the error taxonomy.
//
// A Submit issued from inside work already running on this bridge's owner
// runs fn inline instead of queueing behind itself.
func (b *Bridge) Submit(ctx context.Context, fn Func, timeout time.Duration) (any, error) {
	if b.OnOwner(ctx) {
		return b.invoke(ctx, 0, fn)
	}

	item, err := b.Enqueue(ctx, fn)
	if err != nil {
		return nil, err
	}

	return item.Wait(timeout)
}

// Enqueue appends fn to the queue and returns its WorkItem without waiting.
func (b *Bridge) Enqueue(ctx context.Context, fn Func) (*WorkItem, error) {
	if fn == nil {
		return nil, stderrors.New("bridge: nil work function")
	}

	itemCtx, cancel := context.WithCancelCause(ctx)

	item := &WorkItem{
		bridge:     b,
		fn:         fn,
		cancel:     cancel,
		enqueuedAt: time.Now(),
		done:       make(chan struct{}),
	}
	item.ctx = context.WithValue(itemCtx, ownerKey{}, item)

	b.mu.Lock()

	switch {
	case b.stopped:
		b.mu.Unlock()
		cancel(errors.ErrBridgeStopped)

		return nil, errors.ErrBridgeStopped
	case !b.started:
		b.mu.Unlock()
		cancel(errors.ErrBridgeNotStarted)

		return nil, errors.ErrBridgeNotStarted
	}

	// Seq is assigned under the lock so queue order and Seq order agree.
	item.Seq = b.seq.Add(1)
	item.elem = b.queue.PushBack(item)
	depth := b.queue.Len()
	b.mu.Unlock()

	b.stats.submitted.Add(1)

	select {
	case b.wake <- struct{}{}:
	default:
	}

	b.log.Debug("Work item queued", "seq", item.Seq, "queue_depth", depth)

	return item, nil
}

// Cancel sets the item's cancellation flag. An item that has not started is
// removed from the queue and its waiter receives CancelledError. A running
// item is only advised to stop. Returns true if the item was removed.
func (b *Bridge) Cancel(item *WorkItem) bool {
	removed := b.cancelWith(item, context.Canceled)
	if removed && item.claimOutcome() {
		b.stats.cancelled.Add(1)
	}

	return removed
}

// OnOwner reports whether ctx belongs to work currently executing on this
// bridge's owner. A context kept past its item's completion no longer counts.
func (b *Bridge) OnOwner(ctx context.Context) bool {
	item, _ := ctx.Value(ownerKey{}).(*WorkItem)
	if item == nil || item.bridge != b {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	return b.current == item && itemState(item.state.Load()) == stateRunning
}

// Stats returns a snapshot of the bridge counters.
func (b *Bridge) Stats() Stats {
	b.mu.Lock()
	depth := b.queue.Len()
	running := b.current != nil
	b.mu.Unlock()

	return Stats{
		Submitted:  b.stats.submitted.Load(),
		Completed:  b.stats.completed.Load(),
		Failed:     b.stats.failed.Load(),
		TimedOut:   b.stats.timedOut.Load(),
		Cancelled:  b.stats.cancelled.Load(),
		QueueDepth: depth,
		Running:    running,
	}
}

// run is the owner loop.
func (b *Bridge) run(ctx context.Context) {
	if b.opts.LockOSThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	defer b.log.Debug("Bridge owner stopped")

	for {
		item, ok := b.next(ctx)
		if !ok {
			b.mu.Lock()
			b.stopped = true
			b.mu.Unlock()

			b.drain()

			return
		}

		b.execute(item)
	}
}

// next dequeues the oldest item, blocking while the queue is empty.
func (b *Bridge) next(ctx context.Context) (*WorkItem, bool) {
	for {
		select {
		case <-b.done:
			return nil, false
		case <-ctx.Done():
			return nil, false
		default:
		}

		b.mu.Lock()

		if front := b.queue.Front(); front != nil {
			item := b.queue.Remove(front).(*WorkItem)
			item.elem = nil
			item.state.Store(int32(stateRunning))
			b.current = item
			b.mu.Unlock()

			return item, true
		}

		b.mu.Unlock()

		select {
		case <-b.wake:
		case <-b.done:
			return nil, false
		case <-ctx.Done():
			return nil, false
		}
	}
}

// execute runs one item on the owner and writes its result slot.
func (b *Bridge) execute(item *WorkItem) {
	defer func() {
		b.mu.Lock()
		b.current = nil
		b.mu.Unlock()
	}()

	// Cancelled between dequeue and start: never touch the host.
	if item.ctx.Err() != nil {
		item.state.Store(int32(stateCancelled))
		item.finish(nil, &errors.CancelledError{
			Reason: "cancelled before execution",
			Err:    context.Cause(item.ctx),
		})

		return
	}

	b.log.Debug("Executing work item",
		"seq", item.Seq,
		"queued_for", time.Since(item.enqueuedAt),
	)

	start := time.Now()
	value, err := b.invoke(item.ctx, item.Seq, item.fn)

	if err != nil {
		b.stats.failed.Add(1)
	} else {
		b.stats.completed.Add(1)
	}

	if item.abandoned.Load() {
		b.log.Debug("Discarding result of abandoned work item",
			"seq", item.Seq,
			"duration", time.Since(start),
			"error", err,
		)
	}

	item.state.Store(int32(stateDone))
	item.finish(value, err)
}

// invoke calls fn, recovering panics and folding failures into the taxonomy.
func (b *Bridge) invoke(ctx context.Context, seq uint64, fn Func) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("Recovered panic in host call",
				"seq", seq,
				"panic", r,
				"stack", string(debug.Stack()),
			)

			value = nil
			err = &errors.HostError{Message: fmt.Sprint(r), Panic: true}
		}
	}()

	value, err = fn(ctx)
	if err != nil {
		return nil, errors.AsHostError("", err)
	}

	return value, nil
}

// abandon marks an item as no longer awaited and cancels it.
func (b *Bridge) abandon(item *WorkItem, cause error) {
	item.abandoned.Store(true)
	b.cancelWith(item, cause)
}

// cancelWith cancels the item's context and removes it if still queued.
func (b *Bridge) cancelWith(item *WorkItem, cause error) bool {
	item.cancel(cause)

	b.mu.Lock()

	if !item.state.CompareAndSwap(int32(stateQueued), int32(stateCancelled)) {
		b.mu.Unlock()

		return false
	}

	if item.elem != nil {
		b.queue.Remove(item.elem)
		item.elem = nil
	}

	b.mu.Unlock()

	b.log.Debug("Work item removed from queue", "seq", item.Seq, "cause", cause)

	item.finish(nil, &errors.CancelledError{Reason: "cancelled before execution", Err: cause})

	return true
}

// drain fails every queued item. Called once the owner can no longer run them.
func (b *Bridge) drain() {
	b.mu.Lock()

	pending := make([]*WorkItem, 0, b.queue.Len())

	for e := b.queue.Front(); e != nil; e = b.queue.Front() {
		item := b.queue.Remove(e).(*WorkItem)
		item.elem = nil

		if item.state.CompareAndSwap(int32(stateQueued), int32(stateCancelled)) {
			pending = append(pending, item)
		}
	}

	b.mu.Unlock()

	for _, item := range pending {
		item.cancel(errors.ErrBridgeStopped)
		item.finish(nil, &errors.CancelledError{Reason: "bridge stopped", Err: errors.ErrBridgeStopped})
	}

	if len(pending) > 0 {
		b.log.Info("Failed queued work items on shutdown", "count", len(pending))
	}
}

// Checkpoint returns CancelledError if ctx has been cancelled. Long-running
// handlers call it at points where abandoning host work is safe.
func Checkpoint(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}

	return &errors.CancelledError{Reason: "cancelled at checkpoint", Err: context.Cause(ctx)}
}
