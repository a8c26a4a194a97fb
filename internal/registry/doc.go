// Package registry holds the table of procedures exposed to clients.
//
// A Registry is built during startup by registration calls, frozen when the
// server starts serving, and read without coordination afterwards. Each
// Procedure carries a JSON Schema describing its parameters; the schema is
// resolved once at registration and used to validate every request before the
// handler is reached.
package registry
