//go:build darwin

package dex

import (
	"golang.org/x/sys/unix"
)

func osPageSize() int {
	return unix.Getpagesize()
}

// allocStack mirrors stack_linux.go's mmap+guard-page scheme; darwin and
// linux share the same BSD-derived mmap/mprotect contract via
// golang.org/x/sys/unix.
func allocStack(size int) (*stack, error) {
	guard := osPageSize()
	total := guard + size

	mem, err := unix.Mmap(-1, 0, total, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, &IOError{Op: "mmap", Errno: err}
	}

	if err := unix.Mprotect(mem[:guard], unix.PROT_NONE); err != nil {
		_ = unix.Munmap(mem)
		return nil, &IOError{Op: "mprotect", Errno: err}
	}

	return &stack{
		full:    mem,
		mem:     mem[guard:],
		size:    size,
		guarded: true,
	}, nil
}

func releaseStack(s *stack) error {
	return unix.Munmap(s.full)
}
