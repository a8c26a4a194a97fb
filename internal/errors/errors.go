package errors

import (
	"errors"
	"fmt"
	"time"
)

// Kind names an entry of the error taxonomy. Its string value is what clients
// see in the "kind" field of an error response.
type Kind string

const (
	KindDuplicateName     Kind = "DuplicateNameError"
	KindNotFound          Kind = "NotFoundError"
	KindInvalidParameters Kind = "InvalidParametersError"
	KindUnsafeDisabled    Kind = "UnsafeDisabledError"
	KindHost              Kind = "HostError"
	KindSyncTimeout       Kind = "SyncTimeoutError"
	KindCancelled         Kind = "CancelledError"
	KindProtocol          Kind = "ProtocolError"
)

// Code returns the JSON-RPC error code reported alongside the kind.
func (k Kind) Code() int {
	switch k {
	case KindProtocol:
		return -32600
	case KindNotFound:
		return -32601
	case KindInvalidParameters:
		return -32602
	case KindUnsafeDisabled:
		return -32001
	case KindSyncTimeout:
		return -32002
	case KindCancelled:
		return -32800
	case KindDuplicateName:
		return -32003
	default:
		return -32000
	}
}

// HostMCPError is the base interface for all taxonomy errors.
type HostMCPError interface {
	error
	Kind() Kind
}

// Compile-time verification that all error types implement HostMCPError.
var (
	_ HostMCPError = (*DuplicateNameError)(nil)
	_ HostMCPError = (*NotFoundError)(nil)
	_ HostMCPError = (*InvalidParametersError)(nil)
	_ HostMCPError = (*UnsafeDisabledError)(nil)
	_ HostMCPError = (*HostError)(nil)
	_ HostMCPError = (*SyncTimeoutError)(nil)
	_ HostMCPError = (*CancelledError)(nil)
	_ HostMCPError = (*ProtocolError)(nil)
)

// Sentinel errors for commonly checked conditions.
var (
	// ErrRegistryFrozen indicates a registration attempt after the server started.
	ErrRegistryFrozen = errors.New("registry frozen: procedures must be registered before serving")

	// ErrBridgeStopped indicates the bridge owner loop is no longer running.
	ErrBridgeStopped = errors.New("bridge stopped")

	// ErrBridgeNotStarted indicates work was submitted before Start.
	ErrBridgeNotStarted = errors.New("bridge not started")

	// ErrSessionClosed indicates the session was closed by the client or the server.
	ErrSessionClosed = errors.New("session closed")

	// ErrRequestCancelled indicates the client cancelled an in-flight request.
	ErrRequestCancelled = errors.New("request cancelled by client")

	// ErrServerNotStarted indicates the server must be started first.
	ErrServerNotStarted = errors.New("server not started")

	// ErrServerAlreadyStarted indicates Start was called twice.
	ErrServerAlreadyStarted = errors.New("server already started")

	// ErrServerClosed indicates the server has been closed and cannot be reused.
	ErrServerClosed = errors.New("server closed")

	// ErrEventDropped indicates a push notification was discarded because the
	// session's event buffer was full.
	ErrEventDropped = errors.New("event dropped: session event buffer full")
)

// DuplicateNameError indicates a procedure name is already registered.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("procedure %q already registered", e.Name)
}

// Kind implements HostMCPError.
func (e *DuplicateNameError) Kind() Kind { return KindDuplicateName }

// NotFoundError indicates an unknown method or procedure name.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("procedure %q not found", e.Name)
}

// Kind implements HostMCPError.
func (e *NotFoundError) Kind() Kind { return KindNotFound }

// InvalidParametersError indicates request parameters failed shape validation.
type InvalidParametersError struct {
	Procedure string
	Err       error
}

func (e *InvalidParametersError) Error() string {
	if e.Procedure == "" {
		return fmt.Sprintf("invalid parameters: %v", e.Err)
	}

	return fmt.Sprintf("invalid parameters for %q: %v", e.Procedure, e.Err)
}

func (e *InvalidParametersError) Unwrap() error {
	return e.Err
}

// Kind implements HostMCPError.
func (e *InvalidParametersError) Kind() Kind { return KindInvalidParameters }

// UnsafeDisabledError indicates an unsafe procedure was invoked while unsafe
// execution is disabled.
type UnsafeDisabledError struct {
	Name string
}

func (e *UnsafeDisabledError) Error() string {
	return fmt.Sprintf("procedure %q is unsafe and unsafe procedures are disabled", e.Name)
}

// Kind implements HostMCPError.
func (e *UnsafeDisabledError) Kind() Kind { return KindUnsafeDisabled }

// HostError indicates the host-touching handler itself failed.
//
// Panic is set when the failure was a recovered panic rather than a returned error.
type HostError struct {
	Procedure string
	Message   string
	Panic     bool
	Err       error
}

func (e *HostError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}

	if e.Procedure != "" {
		return fmt.Sprintf("host error in %q: %s", e.Procedure, msg)
	}

	return "host error: " + msg
}

func (e *HostError) Unwrap() error {
	return e.Err
}

// Kind implements HostMCPError.
func (e *HostError) Kind() Kind { return KindHost }

// SyncTimeoutError indicates a bridge submission exceeded its timeout.
type SyncTimeoutError struct {
	Timeout time.Duration
}

func (e *SyncTimeoutError) Error() string {
	return fmt.Sprintf("host call timed out after %s", e.Timeout)
}

// Kind implements HostMCPError.
func (e *SyncTimeoutError) Kind() Kind { return KindSyncTimeout }

// CancelledError indicates the caller or its session cancelled the work.
type CancelledError struct {
	Reason string
	Err    error
}

func (e *CancelledError) Error() string {
	if e.Reason != "" {
		return "cancelled: " + e.Reason
	}

	return "cancelled"
}

func (e *CancelledError) Unwrap() error {
	return e.Err
}

// Kind implements HostMCPError.
func (e *CancelledError) Kind() Kind { return KindCancelled }

// ProtocolError indicates a malformed wire message.
type ProtocolError struct {
	Message string
	Err     error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Message, e.Err)
	}

	return "protocol error: " + e.Message
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Kind implements HostMCPError.
func (e *ProtocolError) Kind() Kind { return KindProtocol }

// KindOf returns the taxonomy kind of err. Errors outside the taxonomy are
// reported as HostError so clients never see an unclassified failure.
func KindOf(err error) Kind {
	if typed, ok := errors.AsType[HostMCPError](err); ok {
		return typed.Kind()
	}

	return KindHost
}

// AsHostError folds err into the taxonomy. Taxonomy errors pass through
// unchanged; anything else becomes a HostError attributed to procedure.
func AsHostError(procedure string, err error) error {
	if err == nil {
		return nil
	}

	if _, ok := errors.AsType[HostMCPError](err); ok {
		return err
	}

	return &HostError{Procedure: procedure, Message: err.Error(), Err: err}
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// AsType finds the first error in err's tree that matches E.
func AsType[E error](err error) (E, bool) {
	return errors.AsType[E](err)
}
