// Package hostmcp exposes a host environment that is not safe for concurrent
// use to remote AI-assistant clients.
//
// Host functionality is published as procedures: tools, which clients invoke
// with parameters, and resources, which clients read. Clients connect
// concurrently over HTTP, a line-delimited TCP stream, or the Model Context
// Protocol, yet every procedure runs on one owner goroutine, one at a time, in
// arrival order.
//
// # Basic Usage
//
// Register procedures, start the server, and serve:
//
//	srv := hostmcp.New(
//	    hostmcp.WithLogger(slog.Default()),
//	    hostmcp.WithRequestTimeout(10*time.Second),
//	)
//
//	err := srv.Register(
//	    hostmcp.NewTool("add", "Add two integers",
//	        hostmcp.SimpleSchema(map[string]string{"a": "int", "b": "int"}),
//	        func(ctx context.Context, params map[string]any) (any, error) {
//	            return params["a"].(float64) + params["b"].(float64), nil
//	        },
//	    ),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := srv.ListenAndServe(ctx, "127.0.0.1:8765", ""); err != nil {
//	    log.Fatal(err)
//	}
//
// # Wire Protocol
//
// Requests are JSON objects {"jsonrpc":"2.0","id":1,"method":"add","params":{...}}
// sent to POST /rpc or as one line on the stream transport. Responses carry
// either a result or an error with a numeric code and a taxonomy kind:
//
//	{"jsonrpc":"2.0","id":1,"error":{"code":-32001,"kind":"UnsafeDisabledError","message":"..."}}
//
// The built-in methods are initialize, ping, procedures/list and
// $/cancelRequest. Messages without an id are notifications and never get a
// response.
//
// # Safety
//
// Procedures created with AsUnsafe only run when the server was created with
// WithUnsafe(true). Otherwise they fail with UnsafeDisabledError before their
// parameters are even validated.
//
// # Cancellation and Progress
//
// A request is cancelled when its caller gives up, its session closes, or the
// client sends $/cancelRequest. Queued work is removed without running.
// Running work is not interrupted; long handlers poll Checkpoint and may
// report Progress:
//
//	for i := range steps {
//	    if err := hostmcp.Checkpoint(ctx); err != nil {
//	        return nil, err
//	    }
//	    doStep(i)
//	    _ = hostmcp.Progress(ctx, float64(i+1), float64(steps), "")
//	}
//
// # Error Handling
//
// Every failure belongs to a small taxonomy of typed errors:
//
//	result, err := srv.Call(ctx, "add", params)
//	if err != nil {
//	    if timeout, ok := errors.AsType[*hostmcp.SyncTimeoutError](err); ok {
//	        log.Printf("gave up after %s", timeout.Timeout)
//	    }
//	    log.Printf("%s: %v", hostmcp.KindOf(err), err)
//	}
package hostmcp
