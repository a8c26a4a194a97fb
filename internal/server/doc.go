// Package server provides the network transports in front of the protocol
// dispatcher.
//
// Two transports are offered:
//
//   - HTTP: POST /rpc carries one request per call and returns its response in
//     the body; GET /events opens a Server-Sent Events stream that creates a
//     session and pushes its notifications. Routing uses chi.
//   - Stream: a TCP listener speaking line-delimited JSON. Each connection is
//     one session; requests on it are handled concurrently and their responses
//     are multiplexed back with the session's notifications by a single writer.
//
// Transports only move bytes and manage connection lifetimes. Closing a
// connection or stream closes its session, which cancels the session's
// in-flight work.
package server
