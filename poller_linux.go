//go:build linux

package dex

import (
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// eventfdWatcher watches a single eventfd (the uring backend's
// registered completion notifier) via epoll, giving [AioContext.Check]
// a non-blocking way to ask "would Dispatch find a completion right
// now" without issuing io_uring_enter itself. Trimmed down from the
// teacher's own multi-fd FastPoller: go-dex's ring backend only ever
// has the one eventfd to watch, registered once at construction.
type eventfdWatcher struct {
	epfd    int32
	watched int32
	closed  atomic.Bool
}

func newEventfdWatcher(watchFd int) (*eventfdWatcher, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	w := &eventfdWatcher{epfd: int32(epfd), watched: int32(watchFd)}
	ev := &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(watchFd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, watchFd, ev); err != nil {
		_ = unix.Close(epfd)
		return nil, err
	}
	return w, nil
}

// Ready reports whether the watched eventfd currently has pending
// readiness, matching a readiness source's Check step. It never
// blocks: timeoutMs is always 0.
func (w *eventfdWatcher) Ready() bool {
	if w.closed.Load() {
		return false
	}
	var events [1]unix.EpollEvent
	n, err := unix.EpollWait(w.epfd, events[:], 0)
	if err != nil {
		return false
	}
	return n > 0
}

// Wait blocks up to timeoutMs milliseconds for the watched eventfd to
// become readable, or forever if timeoutMs < 0. Used by a standalone
// driver loop (no external host loop) to avoid busy-polling.
func (w *eventfdWatcher) Wait(timeoutMs int) bool {
	if w.closed.Load() {
		return false
	}
	var events [1]unix.EpollEvent
	n, err := unix.EpollWait(w.epfd, events[:], timeoutMs)
	if err != nil {
		return false
	}
	return n > 0
}

func (w *eventfdWatcher) Close() error {
	w.closed.Store(true)
	return unix.Close(int(w.epfd))
}
