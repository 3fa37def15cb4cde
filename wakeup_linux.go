//go:build linux

package dex

import (
	"golang.org/x/sys/unix"
)

// newEventFD creates an eventfd used to wake a blocked epoll_wait once
// the kernel posts an io_uring completion, per IORING_REGISTER_EVENTFD.
func newEventFD() (int, error) {
	return unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
}

// drainEventFD consumes the pending counter value so the next readiness
// notification doesn't fire spuriously for an already-observed wakeup.
func drainEventFD(fd int) error {
	var buf [8]byte
	_, err := unix.Read(fd, buf[:])
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

func closeEventFD(fd int) error {
	if fd < 0 {
		return nil
	}
	return unix.Close(fd)
}
