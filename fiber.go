package dex

import (
	"sync/atomic"
)

// FiberState is the lifecycle state of a [Fiber].
type FiberState int32

const (
	// FiberReady indicates the fiber is runnable but not currently executing.
	FiberReady FiberState = iota
	// FiberRunning indicates the fiber is the one currently executing on its scheduler's goroutine.
	FiberRunning
	// FiberWaiting indicates the fiber suspended inside Await, attached as an observer of some future.
	FiberWaiting
	// FiberExited indicates the fiber's entry function has returned; its stack has been reclaimed.
	FiberExited
)

func (s FiberState) String() string {
	switch s {
	case FiberReady:
		return "ready"
	case FiberRunning:
		return "running"
	case FiberWaiting:
		return "waiting"
	case FiberExited:
		return "exited"
	default:
		return "unknown"
	}
}

// Entry is a fiber's body. fiber is passed back so the body can call
// fiber.Await from inside itself.
type Entry func(f *Fiber, data any) (result any, err error)

var fiberIDs atomic.Uint64

// Fiber is a stackful coroutine bound to an [Entry] function. Go offers
// no user-space stack-switching primitive without cgo or platform
// assembly; go-dex's fibers are instead backed one-to-one by a
// goroutine, gated by a pair of unbuffered rendezvous channels so that
// exactly one of {scheduler, fiber} ever runs at a time, the same
// mutual-exclusion invariant a hand-swapped stack would give. The
// stack pool (stack.go) hands out stacks that Fiber itself doesn't use
// (the goroutine's own Go-runtime-managed stack fills that role); the
// pool is instead exercised by the AIO thread-pool backend's worker
// goroutines (aio_threadpool.go), this package's other consumer of
// pooled fixed-size execution contexts.
type Fiber struct {
	id    uint64
	entry Entry
	data  any

	state atomic.Int32 // FiberState

	sched *Scheduler // scheduler this fiber is bound to, nil if detached

	resumeCh chan struct{} // scheduler -> fiber: run
	yieldCh  chan struct{} // fiber -> scheduler: suspended or exited

	result *Promise // resolves/rejects with the entry function's return

	started atomic.Bool
	gid     atomic.Uint64 // goroutine ID of this fiber's backing goroutine, set once on start
}

// New constructs a detached fiber bound to entry/data. stackSize is
// accepted for interface parity with callers that think in terms of a
// fixed stack size, since the Go runtime grows goroutine stacks on
// demand; any value, zero included, is accepted and ignored (the stack
// pool goes unused here).
func New(entry Entry, data any, stackSize int) *Fiber {
	_ = stackSize // ignored: fibers run on goroutine stacks, not pooled ones
	f := &Fiber{
		id:       fiberIDs.Add(1),
		entry:    entry,
		data:     data,
		resumeCh: make(chan struct{}),
		yieldCh:  make(chan struct{}),
		result:   NewPromise(),
	}
	f.state.Store(int32(FiberReady))
	return f
}

// ID returns the fiber's unique identifier.
func (f *Fiber) ID() uint64 { return f.id }

// State returns the fiber's current lifecycle state.
func (f *Fiber) State() FiberState { return FiberState(f.state.Load()) }

// Result is the future that resolves with the entry function's return
// value, or rejects with its returned error, once the fiber exits.
func (f *Fiber) Result() Future { return f.result.Future() }

// Scheduler returns the scheduler this fiber is currently bound to, or
// nil if detached.
func (f *Fiber) Scheduler() *Scheduler { return f.sched }

// start launches the fiber's goroutine on first run. It blocks until the
// goroutine has recorded its goroutine ID; the goroutine then waits on
// resumeCh for the scheduler's first swap-in.
func (f *Fiber) start() {
	ready := make(chan struct{})
	go func() {
		f.gid.Store(getGoroutineID())
		close(ready)
		<-f.resumeCh // wait for the scheduler's first swap-in

		value, err := f.entry(f, f.data)

		f.state.Store(int32(FiberExited))
		f.result.Complete(value, err)

		// Final yield: hand control back to the scheduler one last time
		// so Dispatch's swap-out completes symmetrically.
		f.yieldCh <- struct{}{}
	}()
	<-ready
}

// resume is the scheduler-side half of the swap: it runs the fiber
// until it next suspends (Await on a pending future) or exits. It must
// only be called by the fiber's owning Scheduler while holding that
// scheduler's reentrant lock.
func (f *Fiber) resume() {
	if !f.started.Swap(true) {
		f.start()
	}
	f.state.Store(int32(FiberRunning))
	f.resumeCh <- struct{}{}
	<-f.yieldCh
}

// Await is the fiber-side half of the swap, and the fiber primitive's
// only suspension point. If future is already terminal, it returns the
// outcome directly with no suspension. Otherwise the fiber attaches
// itself as an observer, marks itself waiting, moves to its scheduler's
// waiting set, and yields back to the scheduler; when the observer
// fires, the fiber is moved back to ready and the scheduler's readiness
// source is woken.
func (f *Fiber) Await(future Future) (any, error) {
	if future.State() != Pending {
		return future.Outcome()
	}

	type outcome struct {
		value any
		err   error
	}
	settled := make(chan outcome, 1)

	f.state.Store(int32(FiberWaiting))
	if f.sched != nil {
		f.sched.parkWaiting(f)
	}

	future.OnComplete(func(value any, err error) {
		settled <- outcome{value, err}
		if f.sched != nil {
			f.sched.wake(f)
		}
	})

	// Yield to the scheduler: signal suspension, then block until the
	// scheduler resumes us again (which only happens after the above
	// observer has moved us back to ready and the scheduler re-dispatches).
	f.yieldCh <- struct{}{}
	<-f.resumeCh

	out := <-settled
	return out.value, out.err
}
