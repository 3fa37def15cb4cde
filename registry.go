package dex

import (
	"errors"
	"sync"
)

// ErrDefaultSchedulerAlreadySet is returned by [SetDefaultScheduler]
// when a process default has already been installed: it may be set
// once, and fails if set twice.
var ErrDefaultSchedulerAlreadySet = errors.New("dex: default scheduler already set")

// schedulerRegistry is the process-wide + per-thread lookup table: a
// set-once process default, and a rebindable per-goroutine slot. It
// exists purely for convenience entrypoints that need *a* scheduler but
// weren't handed one explicitly; nothing on go-dex's own critical path
// (future completion, channel pair-up, AIO dispatch) consults it. The
// per-thread slot is keyed by getGoroutineID, the same goroutine
// identity the scheduler's reentrant lock uses.
type schedulerRegistry struct {
	mu        sync.Mutex
	processSet bool
	process   *Scheduler

	gmu          sync.RWMutex
	perGoroutine map[uint64]*Scheduler
}

var defaultRegistry = &schedulerRegistry{
	perGoroutine: make(map[uint64]*Scheduler),
}

// SetDefaultScheduler installs the process-wide default scheduler. It
// may only succeed once per process; later calls return
// [ErrDefaultSchedulerAlreadySet].
func SetDefaultScheduler(s *Scheduler) error {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	if defaultRegistry.processSet {
		return ErrDefaultSchedulerAlreadySet
	}
	defaultRegistry.process = s
	defaultRegistry.processSet = true
	return nil
}

// DefaultScheduler returns the process-wide default scheduler, or nil if
// none has been set.
func DefaultScheduler() *Scheduler {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	return defaultRegistry.process
}

// SetThreadScheduler rebinds the calling goroutine's default scheduler.
// Unlike the process default, this slot may be rebound freely.
func SetThreadScheduler(s *Scheduler) {
	gid := getGoroutineID()
	defaultRegistry.gmu.Lock()
	defer defaultRegistry.gmu.Unlock()
	if s == nil {
		delete(defaultRegistry.perGoroutine, gid)
		return
	}
	defaultRegistry.perGoroutine[gid] = s
}

// ThreadScheduler returns the calling goroutine's bound scheduler, or
// nil if none has been set via [SetThreadScheduler].
func ThreadScheduler() *Scheduler {
	gid := getGoroutineID()
	defaultRegistry.gmu.RLock()
	defer defaultRegistry.gmu.RUnlock()
	return defaultRegistry.perGoroutine[gid]
}

// resolveScheduler is used by convenience entrypoints that need *a*
// scheduler: the calling goroutine's thread-default if bound, else the
// process default, else nil.
func resolveScheduler() *Scheduler {
	if s := ThreadScheduler(); s != nil {
		return s
	}
	return DefaultScheduler()
}
