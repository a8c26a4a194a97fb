package hostmcp

import "github.com/wagiedev/host-mcp-go/internal/errors"

// Re-export error types from internal package

// HostMCPError is the interface implemented by every taxonomy error.
type HostMCPError = errors.HostMCPError

// ErrorKind names a taxonomy entry as it appears on the wire.
type ErrorKind = errors.Kind

// DuplicateNameError indicates a procedure name is already registered.
type DuplicateNameError = errors.DuplicateNameError

// NotFoundError indicates an unknown procedure.
type NotFoundError = errors.NotFoundError

// InvalidParametersError indicates parameters failed validation.
type InvalidParametersError = errors.InvalidParametersError

// UnsafeDisabledError indicates an unsafe procedure was called while unsafe
// execution is disabled.
type UnsafeDisabledError = errors.UnsafeDisabledError

// HostError indicates the handler failed or panicked.
type HostError = errors.HostError

// SyncTimeoutError indicates the caller stopped waiting for the owner.
type SyncTimeoutError = errors.SyncTimeoutError

// CancelledError indicates the request was cancelled.
type CancelledError = errors.CancelledError

// ProtocolError indicates a malformed message.
type ProtocolError = errors.ProtocolError

// Error kinds.
const (
	KindDuplicateName     = errors.KindDuplicateName
	KindNotFound          = errors.KindNotFound
	KindInvalidParameters = errors.KindInvalidParameters
	KindUnsafeDisabled    = errors.KindUnsafeDisabled
	KindHost              = errors.KindHost
	KindSyncTimeout       = errors.KindSyncTimeout
	KindCancelled         = errors.KindCancelled
	KindProtocol          = errors.KindProtocol
)

// Re-export sentinel errors from internal package.
var (
	// ErrRegistryFrozen indicates a registration after Start.
	ErrRegistryFrozen = errors.ErrRegistryFrozen

	// ErrServerNotStarted indicates the server must be started first.
	ErrServerNotStarted = errors.ErrServerNotStarted

	// ErrServerAlreadyStarted indicates Start was called twice.
	ErrServerAlreadyStarted = errors.ErrServerAlreadyStarted

	// ErrServerClosed indicates the server has been closed and cannot be reused.
	ErrServerClosed = errors.ErrServerClosed

	// ErrBridgeStopped indicates the owner loop is no longer running.
	ErrBridgeStopped = errors.ErrBridgeStopped

	// ErrSessionClosed indicates the session was closed.
	ErrSessionClosed = errors.ErrSessionClosed

	// ErrEventDropped indicates a progress notification was discarded.
	ErrEventDropped = errors.ErrEventDropped
)

// KindOf returns the taxonomy kind of err. Errors outside the taxonomy
// report KindHost.
func KindOf(err error) ErrorKind {
	return errors.KindOf(err)
}
