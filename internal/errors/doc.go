// Package errors defines the error taxonomy shared by the registry, the
// synchronization bridge, and the protocol server.
//
// Every error that can reach a client implements HostMCPError and reports a
// Kind, which is the string placed in the "kind" field of a wire error. All
// error types support unwrapping and can be checked using errors.Is,
// errors.As, and errors.AsType.
package errors
