// Package mcp exposes the procedure registry as a Model Context Protocol
// server built on the official go-sdk.
//
// Tools become MCP tools and resources become MCP resources keyed by their
// URI. Every call goes through protocol.Dispatcher.Call, so MCP clients see
// the same unsafe gating, parameter validation, timeouts and single-owner
// execution as native protocol clients. Taxonomy errors are reported as tool
// results with IsError set rather than as JSON-RPC failures.
package mcp
