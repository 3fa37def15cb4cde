//go:build !linux

package dex

// newPlatformBackend on non-Linux platforms always uses the portable
// thread-pool backend; the ring backend is Linux-only (io_uring).
func newPlatformBackend(cfg aioOptions) (aioBackend, error) {
	return newThreadPoolBackend(cfg)
}
