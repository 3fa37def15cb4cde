package dex

import (
	"errors"
	"fmt"
)

// Closed set of error kinds surfaced by this package. Each is a distinct
// concrete type so callers can both pattern-match with [errors.As] and
// compare against the package-level sentinels below with [errors.Is].
var (
	// ErrChannelClosed is the sentinel matched by a [ChannelClosedError].
	ErrChannelClosed = errors.New("dex: channel closed")
	// ErrTimedOut is the sentinel matched by a [TimedOutError].
	ErrTimedOut = errors.New("dex: timed out")
	// ErrCancelled is the sentinel matched by a [CancelledError].
	ErrCancelled = errors.New("dex: cancelled")
	// ErrInvalidState is the sentinel matched by an [InvalidStateError].
	ErrInvalidState = errors.New("dex: invalid state")
	// ErrBacklogFull is wrapped in the [IOError] returned when an
	// AioContext's backlog rate limiter rejects a submission.
	ErrBacklogFull = errors.New("dex: aio backlog limiter rejected submission")
)

// ChannelClosedError is returned when a send is attempted on a closed
// send-side, or a receive can never be fulfilled because there are not
// enough pending items or senders left to satisfy it.
type ChannelClosedError struct {
	// Op names the operation that failed ("send" or "receive").
	Op string
}

func (e *ChannelClosedError) Error() string {
	if e.Op == "" {
		return "dex: channel closed"
	}
	return fmt.Sprintf("dex: channel closed: %s", e.Op)
}

// Is reports whether target is [ErrChannelClosed].
func (e *ChannelClosedError) Is(target error) bool { return target == ErrChannelClosed }

// TimedOutError is returned when a timeout future's deadline elapses
// before it is resolved or postponed past that deadline.
type TimedOutError struct {
	// Message is an optional human-readable description.
	Message string
}

func (e *TimedOutError) Error() string {
	if e.Message == "" {
		return "dex: timed out"
	}
	return "dex: timed out: " + e.Message
}

// Is reports whether target is [ErrTimedOut].
func (e *TimedOutError) Is(target error) bool { return target == ErrTimedOut }

// CancelledError is returned when an operation is abandoned by rejecting
// the future it depended on. It is distinct from a timeout: the caller
// decided, rather than a deadline elapsing.
type CancelledError struct {
	// Cause is the error that triggered the cancellation, if any.
	Cause error
}

func (e *CancelledError) Error() string {
	if e.Cause == nil {
		return "dex: cancelled"
	}
	return "dex: cancelled: " + e.Cause.Error()
}

// Unwrap returns the underlying cause for use with [errors.Is] and [errors.As].
func (e *CancelledError) Unwrap() error { return e.Cause }

// Is reports whether target is [ErrCancelled].
func (e *CancelledError) Is(target error) bool { return target == ErrCancelled }

// IOError wraps a kernel completion status (an errno, or an equivalent
// mapped code for non-Unix backends) surfaced by an AIO completion.
type IOError struct {
	// Errno is the raw kernel error code, when available.
	Errno error
	// Op names the operation ("read" or "write").
	Op string
	// Fd is the file descriptor the operation targeted.
	Fd int
}

func (e *IOError) Error() string {
	if e.Errno == nil {
		return fmt.Sprintf("dex: io error: %s fd=%d", e.Op, e.Fd)
	}
	return fmt.Sprintf("dex: io error: %s fd=%d: %v", e.Op, e.Fd, e.Errno)
}

// Unwrap returns the underlying kernel error for use with [errors.Is] and [errors.As].
func (e *IOError) Unwrap() error { return e.Errno }

// InvalidStateError signals a program-logic error, such as a submission
// to an [AioContext] that is closing or closed. Resolving or rejecting an
// already-terminal [Promise] does not produce one: Resolve and Reject
// return false instead.
type InvalidStateError struct {
	Message string
}

func (e *InvalidStateError) Error() string {
	if e.Message == "" {
		return "dex: invalid state"
	}
	return "dex: invalid state: " + e.Message
}

// Is reports whether target is [ErrInvalidState].
func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }
