package dex

import "sync"

// FutureState is the lifecycle state of a [Future].
type FutureState int32

const (
	// Pending indicates the future has not yet settled.
	Pending FutureState = iota
	// Resolved indicates the future settled with a value.
	Resolved
	// Rejected indicates the future settled with an error.
	Rejected
)

func (s FutureState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Resolved:
		return "resolved"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Observer is invoked exactly once when a future transitions to a
// terminal state, with the outcome that transition produced. err is nil
// for a resolved future and non-nil for a rejected one.
type Observer func(value any, err error)

// Future is a read-only handle to a deferred result. It is produced by a
// [Promise], a channel operation, an AIO operation, or a fiber's return
// value. A future's state transitions at most once, from [Pending] to
// either [Resolved] or [Rejected]; once terminal it never changes again.
type Future interface {
	// State returns the future's current lifecycle state.
	State() FutureState

	// Outcome returns the settled (value, err) pair. While Pending it
	// returns (nil, nil).
	Outcome() (value any, err error)

	// OnComplete attaches an observer. If the future is already
	// terminal, cb fires synchronously, inline, before OnComplete
	// returns. Otherwise cb is appended to an ordered list and fires
	// later, outside of any lock, when the future settles. Every
	// observer fires exactly once.
	OnComplete(cb Observer)
}

// future is the shared state machine behind both Future and Promise:
// one mutex, a terminal outcome pair, and an append-only (while
// pending) slice of subscribers.
type future struct {
	mu        sync.Mutex
	state     FutureState
	value     any
	err       error
	observers []Observer
}

var _ Future = (*future)(nil)

func newFuture() *future {
	return &future{state: Pending}
}

// newResolved returns an already-terminal future resolved with value.
func newResolved(value any) *future {
	return &future{state: Resolved, value: value}
}

// newRejected returns an already-terminal future rejected with err.
func newRejected(err error) *future {
	return &future{state: Rejected, err: err}
}

// NewResolved returns a [Future] that is already resolved with value.
func NewResolved(value any) Future { return newResolved(value) }

// NewRejected returns a [Future] that is already rejected with err.
func NewRejected(err error) Future { return newRejected(err) }

func (f *future) State() FutureState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *future) Outcome() (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.err
}

func (f *future) OnComplete(cb Observer) {
	if cb == nil {
		return
	}

	f.mu.Lock()
	if f.state != Pending {
		value, err := f.value, f.err
		f.mu.Unlock()
		cb(value, err)
		return
	}
	f.observers = append(f.observers, cb)
	f.mu.Unlock()
}

// complete performs the generalized terminal transition used by every
// internal producer (resolve, reject, timeout, AIO completion). It is
// the single place pending→terminal happens: the lock guards the state
// check and the snapshot of observers, which are then drained in
// insertion order outside the lock.
//
// Returns false if the future was already terminal (a no-op).
func (f *future) complete(state FutureState, value any, err error) bool {
	f.mu.Lock()
	if f.state != Pending {
		f.mu.Unlock()
		return false
	}
	f.state = state
	f.value = value
	f.err = err
	observers := f.observers
	f.observers = nil
	f.mu.Unlock()

	for _, obs := range observers {
		obs(value, err)
	}
	return true
}

// Promise is the write side of a [Future]. At most one of Resolve/Reject
// succeeds; later calls are no-ops.
type Promise struct {
	f *future
}

// NewPromise creates a pending future and returns the promise that
// drives its resolution.
func NewPromise() *Promise {
	return &Promise{f: newFuture()}
}

// Future returns the read-only view of this promise's result.
func (p *Promise) Future() Future { return p.f }

// Resolve transitions the promise's future to [Resolved] with value.
// Returns false if the future was already terminal.
func (p *Promise) Resolve(value any) bool {
	return p.f.complete(Resolved, value, nil)
}

// Reject transitions the promise's future to [Rejected] with err.
// Returns false if the future was already terminal.
func (p *Promise) Reject(err error) bool {
	return p.f.complete(Rejected, nil, err)
}

// Complete is the generalized terminal transition, used by internal
// producers that already know which of value/err applies.
func (p *Promise) Complete(value any, err error) bool {
	if err != nil {
		return p.f.complete(Rejected, nil, err)
	}
	return p.f.complete(Resolved, value, nil)
}

// Chain propagates source's eventual outcome into target, preserving
// both the value and the error exactly.
func Chain(source Future, target *Promise) {
	source.OnComplete(func(value any, err error) {
		target.Complete(value, err)
	})
}

// Await blocks the calling goroutine until f settles and returns its
// outcome. It is the non-fiber entrypoint; fibers use [Fiber.Await]
// instead so that suspension yields the scheduler rather than parking
// an OS thread.
func Await(f Future) (any, error) {
	if f.State() != Pending {
		return f.Outcome()
	}
	done := make(chan struct{})
	var value any
	var err error
	f.OnComplete(func(v any, e error) {
		value, err = v, e
		close(done)
	})
	<-done
	return value, err
}
