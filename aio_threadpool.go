package dex

import (
	"sync"
)

// threadPoolBackend is the portable [aioBackend] fallback used on
// platforms without a ring (everywhere but Linux), or when the ring
// backend's setup fails. A fixed pool of worker goroutines executes
// blocking Pread/Pwrite calls against a guarded bounce buffer drawn
// from the [stackPool] (stack.go) — fibers use the Go runtime's own
// goroutine stacks instead of the pool, so the guarded, fixed-size
// regions are exercised here, as each worker's private I/O buffer.
type threadPoolBackend struct {
	work chan *aioRequest
	done chan struct{}

	completedMu sync.Mutex
	completed   []int // count of resolved requests per worker, for diagnostics only

	wg sync.WaitGroup

	pool       *stackPool
	bufferSize int
}

func newThreadPoolBackend(cfg aioOptions) (*threadPoolBackend, error) {
	workers := int(cfg.ringDepth)
	if workers <= 0 {
		workers = 4
	}

	b := &threadPoolBackend{
		work:       make(chan *aioRequest, workers*4),
		done:       make(chan struct{}),
		pool:       newStackPool(false),
		bufferSize: DefaultStackSize,
		completed:  make([]int, workers),
	}

	for i := 0; i < workers; i++ {
		s, err := b.pool.get(b.bufferSize)
		if err != nil {
			close(b.done)
			return nil, err
		}
		b.wg.Add(1)
		go b.worker(i, s)
	}

	return b, nil
}

func (b *threadPoolBackend) worker(id int, s *stack) {
	defer b.wg.Done()
	defer b.pool.put(s)

	bounce := s.Bytes()

	for {
		select {
		case <-b.done:
			return
		case req, ok := <-b.work:
			if !ok {
				return
			}
			b.execute(req, bounce)
			b.completedMu.Lock()
			b.completed[id]++
			b.completedMu.Unlock()
		}
	}
}

// execute performs req's blocking syscall in chunks no larger than
// bounce, copying through the guarded buffer rather than handing the
// caller's slice directly to the kernel.
func (b *threadPoolBackend) execute(req *aioRequest, bounce []byte) {
	total := 0
	remaining := req.buf
	offset := req.offset

	for len(remaining) > 0 {
		chunk := remaining
		if len(chunk) > len(bounce) {
			chunk = chunk[:len(bounce)]
		}

		var n int
		var err error
		switch req.op {
		case AioWrite:
			copy(bounce, chunk)
			n, err = pwriteFD(req.fd, bounce[:len(chunk)], offset)
		default:
			n, err = preadFD(req.fd, bounce[:len(chunk)], offset)
			if n > 0 {
				copy(chunk[:n], bounce[:n])
			}
		}

		if err != nil {
			req.promise.Reject(&IOError{Op: req.op.String(), Fd: req.fd, Errno: err})
			return
		}
		if n == 0 {
			break
		}

		total += n
		offset += int64(n)
		remaining = remaining[n:]
	}

	req.promise.Resolve(total)
}

// submit implements [aioBackend.submit]. The work channel's buffer
// models a bounded submission capacity: a full channel is reported the
// same way a full ring would be, so [AioContext.drain] retries on the
// next Dispatch.
func (b *threadPoolBackend) submit(req *aioRequest) error {
	select {
	case b.work <- req:
		return nil
	default:
		return &InvalidStateError{Message: "thread pool work queue full"}
	}
}

// poll is a no-op for this backend: workers resolve each request's
// promise directly as they finish, with no separate completion queue
// to drain.
func (b *threadPoolBackend) poll() int { return 0 }

// ready always reports false: there is nothing to dispatch from this
// backend's own completion side, since workers settle futures inline.
func (b *threadPoolBackend) ready() bool { return false }

func (b *threadPoolBackend) wait(timeoutMs int) {}

func (b *threadPoolBackend) close() error {
	close(b.done)
	b.wg.Wait()
	return nil
}
