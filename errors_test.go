package dex

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChannelClosedErrorMatchesSentinel(t *testing.T) {
	err := &ChannelClosedError{Op: "send"}
	require.ErrorIs(t, err, ErrChannelClosed)
	require.Contains(t, err.Error(), "send")
}

func TestTimedOutErrorMatchesSentinel(t *testing.T) {
	err := &TimedOutError{}
	require.ErrorIs(t, err, ErrTimedOut)
}

func TestCancelledErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("boom")
	err := &CancelledError{Cause: cause}
	require.ErrorIs(t, err, ErrCancelled)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "boom")
}

func TestIOErrorUnwrapsErrno(t *testing.T) {
	errno := errors.New("EIO")
	err := &IOError{Op: "read", Fd: 3, Errno: errno}
	require.ErrorIs(t, err, errno)
	require.Contains(t, err.Error(), "read")
	require.Contains(t, err.Error(), "3")
}

func TestInvalidStateErrorMatchesSentinel(t *testing.T) {
	err := &InvalidStateError{Message: "already resolved"}
	require.ErrorIs(t, err, ErrInvalidState)
	require.Contains(t, err.Error(), "already resolved")
}

func TestIOErrorWrapsBacklogFullSentinel(t *testing.T) {
	err := &IOError{Op: "write", Fd: 5, Errno: ErrBacklogFull}
	require.ErrorIs(t, err, ErrBacklogFull)
}
