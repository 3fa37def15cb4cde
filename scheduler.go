package dex

import (
	"context"
	"sync"
	"sync/atomic"
)

// Scheduler is a per-thread cooperative runner of fibers. Every fiber
// hosted by a given Scheduler runs only while that Scheduler is
// dispatching; at most one fiber runs at a time.
//
// Scheduler doubles as a host-loop readiness source: Prepare/Check/
// Dispatch let an external event loop drive it. Since that host loop is
// out of scope for this package, [Scheduler.Run] also ships a minimal
// standalone driver that plays the host loop's role by itself.
type Scheduler struct {
	name    string
	metrics *Metrics

	dataMu  sync.Mutex
	ready   []*Fiber
	waiting map[uint64]*Fiber

	// execMu + owner + depth implement a recursive mutex: held while a
	// fiber executes, admitting same-goroutine reentry (host-loop
	// reentrancy triggered by a running fiber), blocking foreign
	// goroutines on the real mutex otherwise. Ownership is tracked by
	// goroutine id (goroutineid.go), with an explicit depth counter
	// making the lock recursive.
	execMu sync.Mutex
	owner  atomic.Uint64
	depth  int

	current atomic.Pointer[Fiber]

	wakeCh chan struct{} // buffered 1; signals "ready queue became non-empty" to Run's driver loop

	closed atomic.Bool // set by Finalize; makes Dispatch a no-op and Run exit
}

// NewScheduler creates an empty scheduler with no fibers.
func NewScheduler(opts ...SchedulerOption) *Scheduler {
	cfg := defaultSchedulerOptions()
	for _, o := range opts {
		o.applyScheduler(&cfg)
	}
	return &Scheduler{
		name:    cfg.name,
		metrics: cfg.metrics,
		waiting: make(map[uint64]*Fiber),
		wakeCh:  make(chan struct{}, 1),
	}
}

// Name returns the scheduler's configured name, primarily useful for
// logging (see logging.go) when a process hosts several schedulers.
func (s *Scheduler) Name() string { return s.name }

// Current returns the fiber currently running on this scheduler, or nil.
func (s *Scheduler) Current() *Fiber { return s.current.Load() }

// MigrateTo places fiber into scheduler's ready queue and signals its
// readiness source. This is the standard way to hand a freshly created
// (or currently-detached) fiber off to whichever thread should run it;
// it is legal to call from any goroutine.
func MigrateTo(f *Fiber, s *Scheduler) {
	f.sched = s
	f.state.Store(int32(FiberReady))
	s.enqueueReady(f)
}

func (s *Scheduler) enqueueReady(f *Fiber) {
	s.dataMu.Lock()
	s.ready = append(s.ready, f)
	depth := len(s.ready)
	s.dataMu.Unlock()
	if s.metrics != nil {
		s.metrics.Depth.UpdateSchedulerDepth(depth)
	}
	s.signal()
}

func (s *Scheduler) signal() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// parkWaiting moves f into the waiting set. Called from f.Await while f
// is the currently-running fiber on this scheduler.
func (s *Scheduler) parkWaiting(f *Fiber) {
	s.dataMu.Lock()
	s.waiting[f.id] = f
	s.dataMu.Unlock()
}

// wake moves f from waiting back to ready and signals the scheduler:
// the observer callback, on fire, moves the fiber back to ready and
// wakes the scheduler's readiness source. Safe to call from any
// goroutine, including the goroutine of a different fiber's future
// completing f's await.
func (s *Scheduler) wake(f *Fiber) {
	s.dataMu.Lock()
	moved := false
	if _, ok := s.waiting[f.id]; ok {
		delete(s.waiting, f.id)
		f.state.Store(int32(FiberReady))
		s.ready = append(s.ready, f)
		moved = true
	}
	depth := len(s.ready)
	s.dataMu.Unlock()
	if moved && s.metrics != nil {
		s.metrics.Depth.UpdateSchedulerDepth(depth)
	}
	s.signal()
}

// lock acquires the scheduler's recursive execution mutex, admitting
// reentry from whichever goroutine currently holds it.
func (s *Scheduler) lock() {
	gid := getGoroutineID()
	if s.owner.Load() == gid {
		s.depth++
		return
	}
	s.execMu.Lock()
	s.owner.Store(gid)
	s.depth = 1
}

func (s *Scheduler) unlock() {
	s.depth--
	if s.depth == 0 {
		s.owner.Store(0)
		s.execMu.Unlock()
	}
}

// Prepare reports whether Dispatch would find work immediately: ready
// iff the ready queue is non-empty, otherwise not-ready with no timeout
// hint. It satisfies half of a typical host-loop readiness-source
// contract (prepare/check/dispatch).
func (s *Scheduler) Prepare() bool {
	s.dataMu.Lock()
	ready := len(s.ready) > 0
	s.dataMu.Unlock()
	return ready
}

// Check reports the same thing as Prepare, matching a readiness
// source's separate prepare/check steps; go-dex's scheduler has no
// intermediate polling state so the two coincide.
func (s *Scheduler) Check() bool { return s.Prepare() }

// Dispatch runs ready fibers until the ready queue is empty or a
// running fiber yields without re-entering ready. It acquires the
// scheduler's recursive mutex for its duration, admitting reentrant
// calls made by the fiber it is currently running (a nested dispatch
// invoked from inside a running fiber's own body).
func (s *Scheduler) Dispatch() {
	if s.closed.Load() {
		return
	}

	s.lock()
	defer s.unlock()

	for {
		s.dataMu.Lock()
		if len(s.ready) == 0 {
			s.dataMu.Unlock()
			return
		}
		f := s.ready[0]
		s.ready = s.ready[1:]
		depth := len(s.ready)
		s.dataMu.Unlock()

		if s.metrics != nil {
			s.metrics.Depth.UpdateSchedulerDepth(depth)
		}
		s.runFiber(f)
	}
}

// runFiber executes one fiber until it next suspends or exits,
// delegating recursive-lock ownership to the fiber's own goroutine for
// the duration so that a Dispatch call made from inside the fiber body
// (host-loop reentrancy) is recognized as same-owner, not foreign.
func (s *Scheduler) runFiber(f *Fiber) {
	s.current.Store(f)
	if !f.started.Swap(true) {
		f.start()
	}
	prevOwner := s.owner.Load()
	s.owner.Store(f.gidOrZero())

	f.resume()

	s.owner.Store(prevOwner)
	s.current.Store(nil)
}

// gidOrZero returns the backing goroutine's ID, or 0 before it has
// started (in which case there is nothing to delegate ownership to yet).
func (f *Fiber) gidOrZero() uint64 { return f.gid.Load() }

// Run is a minimal standalone host-loop driver: it repeatedly dispatches
// ready fibers, blocking for new work between batches, until ctx is
// done. It exists because the real host event loop is out of scope for
// this package; production embedders instead register the scheduler as
// a source with their own loop via Prepare/Check/Dispatch.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		s.Dispatch()
		if s.closed.Load() {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-s.wakeCh:
		}
	}
}

// Finalize implements the host-loop source contract's teardown step: it
// marks the scheduler closed, so a subsequent Dispatch becomes a no-op
// and a running Run driver loop exits on its next iteration. Unlike an
// [AioContext], a Scheduler holds no kernel-level registration to
// release, so there is nothing else to tear down.
func (s *Scheduler) Finalize() {
	s.closed.Store(true)
	s.signal()
}
