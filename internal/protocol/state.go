package protocol

import (
	"github.com/wagiedev/host-mcp-go/internal/errors"
)

// State is a request's position in its lifecycle. Requests move from
// pending to submitted and end in exactly one terminal state.
type State string

const (
	StatePending         State = "pending"
	StateSubmitted       State = "submitted"
	StateSucceeded       State = "succeeded"
	StateRejected        State = "rejected"
	StateHostFailed      State = "host-failed"
	StateTimedOut        State = "timed-out"
	StateCancelled       State = "cancelled"
	StateProtocolInvalid State = "protocol-invalid"
)

// Terminal reports whether no further transitions are possible from s.
func (s State) Terminal() bool {
	return s != StatePending && s != StateSubmitted
}

// Outcome maps a finished request's error to its terminal state. Requests
// refused before reaching the bridge (unknown method, invalid parameters,
// unsafe gate) end as rejected.
func Outcome(err error) State {
	if err == nil {
		return StateSucceeded
	}

	switch errors.KindOf(err) {
	case errors.KindSyncTimeout:
		return StateTimedOut
	case errors.KindCancelled:
		return StateCancelled
	case errors.KindProtocol:
		return StateProtocolInvalid
	case errors.KindNotFound, errors.KindInvalidParameters, errors.KindUnsafeDisabled:
		return StateRejected
	default:
		return StateHostFailed
	}
}
