//go:build linux || darwin

package dex

import (
	"golang.org/x/sys/unix"
)

// closeFD closes a file descriptor.
func closeFD(fd int) error {
	return unix.Close(fd)
}

// preadFD reads from fd at the given offset, the blocking primitive the
// thread-pool AIO backend's workers call directly (aio_threadpool.go).
func preadFD(fd int, buf []byte, offset int64) (int, error) {
	return unix.Pread(fd, buf, offset)
}

// pwriteFD writes to fd at the given offset.
func pwriteFD(fd int, buf []byte, offset int64) (int, error) {
	return unix.Pwrite(fd, buf, offset)
}
