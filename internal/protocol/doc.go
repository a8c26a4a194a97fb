// Package protocol implements the request/response protocol spoken with
// remote clients.
//
// Messages are JSON-RPC style objects. A Dispatcher parses each message,
// resolves its method against the registry, gates unsafe procedures,
// validates parameters, submits the handler to the bridge, and turns the
// outcome into a Response carrying either a result or a typed error.
//
// The Dispatcher handles:
//   - Built-in methods: initialize, ping, procedures/list, $/cancelRequest
//   - Per-session in-flight tracking so every request id gets one response
//   - Cancellation of in-flight work when a session closes
//   - Progress notifications pushed to the session's event stream
//
// Transports (HTTP, SSE, line-delimited TCP) live in package server and only
// move bytes; all protocol decisions are made here.
//
// Example usage:
//
//	sessions := protocol.NewSessions(log, 64)
//	dispatcher := protocol.NewDispatcher(log, reg, br, protocol.Options{
//	    Timeout: 30 * time.Second,
//	})
//
//	sess := sessions.Create()
//	defer sessions.Close(sess.ID)
//
//	resp := dispatcher.Handle(ctx, sess, []byte(`{"id":1,"method":"add","params":{"a":2,"b":3}}`))
package protocol
