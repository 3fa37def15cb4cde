//go:build !linux && !darwin

package dex

// allocStack on platforms without a direct mmap/mprotect contract via
// golang.org/x/sys/unix falls back to a plain heap allocation with no
// overflow guard page. This is a documented platform limitation, not a
// silent gap: Guarded() reports false so callers (and tests) can tell.
func allocStack(size int) (*stack, error) {
	return &stack{
		mem:     make([]byte, size),
		size:    size,
		guarded: false,
	}, nil
}

func releaseStack(*stack) error {
	return nil
}

func osPageSize() int {
	return 4096
}
