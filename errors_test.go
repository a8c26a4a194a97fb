package hostmcp

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestKindOf tests that every taxonomy error reports its kind through wrapping.
func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		kind ErrorKind
	}{
		{&DuplicateNameError{Name: "add"}, KindDuplicateName},
		{&NotFoundError{Name: "nope"}, KindNotFound},
		{&InvalidParametersError{Procedure: "add", Err: errors.New("a: not an integer")}, KindInvalidParameters},
		{&UnsafeDisabledError{Name: "set_value"}, KindUnsafeDisabled},
		{&HostError{Procedure: "add", Message: "boom"}, KindHost},
		{&SyncTimeoutError{Timeout: time.Second}, KindSyncTimeout},
		{&CancelledError{Reason: "client"}, KindCancelled},
		{&ProtocolError{Message: "bad json"}, KindProtocol},
		{errors.New("plain"), KindHost},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			require.Equal(t, tt.kind, KindOf(tt.err))
			require.Equal(t, tt.kind, KindOf(fmt.Errorf("wrapped: %w", tt.err)))
		})
	}
}

// TestInvalidParametersError_Unwrap tests that the validation cause is preserved.
func TestInvalidParametersError_Unwrap(t *testing.T) {
	cause := errors.New("missing property b")
	err := &InvalidParametersError{Procedure: "add", Err: cause}

	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "add")
	require.Contains(t, err.Error(), "missing property b")
}

// TestHostMCPError_Interface tests that typed errors are reachable through the interface.
func TestHostMCPError_Interface(t *testing.T) {
	err := fmt.Errorf("call: %w", &UnsafeDisabledError{Name: "wipe"})

	typed, ok := errors.AsType[HostMCPError](err)
	require.True(t, ok)
	require.Equal(t, KindUnsafeDisabled, typed.Kind())
}
