// Package bridge serializes host-touching work onto a single owner goroutine.
//
// The host environment behind this server is not safe to call from more than
// one context at a time. A Bridge owns one goroutine that drains a FIFO queue
// of WorkItems and runs them one after another; any number of callers submit
// work and block until their own item's result is written.
//
// Cancellation is cooperative. Each WorkItem carries a context that is
// cancelled when its submitter times out, is cancelled, or its session closes.
// An item that has not started yet is removed from the queue. An item that is
// already running keeps running until its handler checks the context (see
// Checkpoint); whatever it returns afterwards is discarded.
//
// Example usage:
//
//	b := bridge.New(log, bridge.Options{LockOSThread: true})
//	if err := b.Start(ctx); err != nil {
//	    return err
//	}
//	defer b.Stop()
//
//	value, err := b.Submit(ctx, func(ctx context.Context) (any, error) {
//	    return host.FunctionCount(), nil
//	}, 5*time.Second)
package bridge
