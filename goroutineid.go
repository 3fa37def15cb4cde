package dex

import "runtime"

// getGoroutineID returns the current goroutine's runtime ID by parsing
// the header of runtime.Stack's output. Go deliberately exposes no
// public goroutine-identity API; this parsing trick detects whether the
// calling goroutine is the one driving a particular Scheduler, the
// basis for both the scheduler registry's per-thread slot and the fiber
// scheduler's reentrant lock.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
