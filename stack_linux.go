//go:build linux

package dex

import (
	"golang.org/x/sys/unix"
)

func osPageSize() int {
	return unix.Getpagesize()
}

// allocStack mmaps size+guardPage bytes of anonymous memory and
// mprotects the leading page to PROT_NONE: allocation is page-aligned,
// and a guard page at the low-address end protects against overflow.
// Stacks grow downward on every platform this runtime targets, so the
// guard page sits before the usable region.
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
