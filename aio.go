package dex

import (
	"sync"
	"time"

	"github.com/joeycumines/go-catrate"
)

// AioOp is the operation kind an [AioContext] can submit.
type AioOp int

const (
	// AioRead reads from a file descriptor at an offset.
	AioRead AioOp = iota
	// AioWrite writes to a file descriptor at an offset.
	AioWrite
)

func (op AioOp) String() string {
	if op == AioWrite {
		return "write"
	}
	return "read"
}

// aioRequest is one queued operation, backlogged until the backend has
// a free submission slot.
type aioRequest struct {
	op      AioOp
	fd      int
	buf     []byte
	offset  int64
	promise *Promise
}

// aioBackend is the pluggable engine an [AioContext] drives: submit
// admits a request (possibly deferring it internally), poll
// drains whatever completions are available without blocking, and
// close releases backend resources. aio_uring_linux.go implements this
// with a real io_uring instance; aio_threadpool.go implements it with a
// pool of worker goroutines issuing blocking Pread/Pwrite calls, for
// platforms (or operations) with no ring available.
type aioBackend interface {
	submit(req *aioRequest) error
	poll() int
	ready() bool
	wait(timeoutMs int)
	close() error
}

// AioContext submits reads and writes against file descriptors and
// resolves a [Future] per operation on completion. It queues requests
// in a backlog FIFO ahead of the backend's own submission capacity, and
// gates new submissions through a sliding-window rate limiter
// (github.com/joeycumines/go-catrate) when a backlog limit is
// configured: a burst that would exceed it is rejected with
// [ErrBacklogFull] rather than admitted unbounded.
type AioContext struct {
	backend aioBackend
	logger  Logger
	metrics *Metrics

	state *lifecycleState

	mu           sync.Mutex
	backlog      []*aioRequest
	backlogLimit int
	limiter      *catrate.Limiter
	limiterCat   any
}

// NewAioContext creates an [AioContext]. On Linux it uses an io_uring
// backend; elsewhere it uses the portable thread-pool backend. Use
// [NewAioContextWithBackend] to force a specific backend (e.g. the
// thread-pool fallback on Linux, for operations that don't benefit from
// a ring).
func NewAioContext(opts ...AioOption) (*AioContext, error) {
	cfg := defaultAioOptions()
	for _, o := range opts {
		o.applyAio(&cfg)
	}
	backend, err := newPlatformBackend(cfg)
	if err != nil {
		return nil, err
	}
	return newAioContext(backend, cfg), nil
}

// NewAioContextWithBackend wires an explicit backend, primarily for
// tests and for embedders who want the thread-pool fallback even where
// a ring is available.
func NewAioContextWithBackend(backend aioBackend, opts ...AioOption) *AioContext {
	cfg := defaultAioOptions()
	for _, o := range opts {
		o.applyAio(&cfg)
	}
	return newAioContext(backend, cfg)
}

func newAioContext(backend aioBackend, cfg aioOptions) *AioContext {
	c := &AioContext{
		backend:      backend,
		logger:       cfg.logger,
		metrics:      cfg.metrics,
		state:        newLifecycleState(),
		backlogLimit: cfg.backlogLimit,
	}
	if cfg.backlogLimit > 0 {
		// A single sliding 100ms window admitting at most backlogLimit
		// submissions, so a burst that fills the backlog drains and
		// refills gradually rather than instantly re-admitting another
		// burst the moment one completion frees a slot.
		c.limiter = catrate.NewLimiter(map[time.Duration]int{100 * time.Millisecond: cfg.backlogLimit})
		c.limiterCat = "aio-submit"
	}
	return c
}

// Read submits a read of len(buf) bytes from fd at offset, returning a
// future that resolves with the number of bytes read, or rejects with
// an [IOError].
func (c *AioContext) Read(fd int, buf []byte, offset int64) Future {
	return c.queue(AioRead, fd, buf, offset)
}

// Write submits a write of buf to fd at offset, returning a future that
// resolves with the number of bytes written, or rejects with an
// [IOError].
func (c *AioContext) Write(fd int, buf []byte, offset int64) Future {
	return c.queue(AioWrite, fd, buf, offset)
}

func (c *AioContext) queue(op AioOp, fd int, buf []byte, offset int64) Future {
	if !c.state.CanSubmit() {
		return newRejected(&InvalidStateError{Message: "aio context closed"})
	}

	if c.limiter != nil {
		if _, ok := c.limiter.Allow(c.limiterCat); !ok {
			logAt(c.logger, LevelWarn, "aio", "backlog limiter rejected submission", nil, map[string]any{"fd": fd, "op": op.String()})
			return newRejected(&IOError{Op: op.String(), Fd: fd, Errno: ErrBacklogFull})
		}
	}

	req := &aioRequest{op: op, fd: fd, buf: buf, offset: offset, promise: NewPromise()}

	if c.metrics != nil {
		submitted := time.Now()
		req.promise.Future().OnComplete(func(any, error) {
			c.metrics.Completion.Record(time.Since(submitted))
		})
	}

	c.mu.Lock()
	c.backlog = append(c.backlog, req)
	depth := len(c.backlog)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.Depth.UpdateAioDepth(depth)
	}

	c.drain()
	return req.promise.Future()
}

// drain attempts to hand backlogged requests to the backend until it
// stops accepting them (backend is at ring capacity for the ring
// backend, or the worker pool's work channel is full for the thread
// pool backend).
func (c *AioContext) drain() {
	for {
		c.mu.Lock()
		if len(c.backlog) == 0 {
			c.mu.Unlock()
			return
		}
		req := c.backlog[0]
		c.mu.Unlock()

		if err := c.backend.submit(req); err != nil {
			return
		}

		c.mu.Lock()
		c.backlog = c.backlog[1:]
		depth := len(c.backlog)
		c.mu.Unlock()
		if c.metrics != nil {
			c.metrics.Depth.UpdateAioDepth(depth)
		}
	}
}

// Prepare reports whether Dispatch would find a completion immediately,
// satisfying half of a readiness source's prepare/check contract.
func (c *AioContext) Prepare() bool {
	return c.backend.ready()
}

// Check is identical to Prepare for this source; go-dex's AIO context
// has no separate polling phase.
func (c *AioContext) Check() bool { return c.Prepare() }

// Dispatch drains available completions, resolving each operation's
// future, and tries to admit more of the backlog into the freed
// capacity.
func (c *AioContext) Dispatch() {
	c.backend.poll()
	c.drain()
}

// Close stops accepting new submissions and waits until every backlogged
// request has been handed to the backend, then releases backend
// resources. It does not wait for operations already handed to the
// backend to complete.
func (c *AioContext) Close() error {
	if !c.state.TryTransition(AioOpen, AioClosing) {
		return nil
	}
	for {
		c.mu.Lock()
		pending := len(c.backlog)
		c.mu.Unlock()
		if pending == 0 {
			break
		}
		c.Dispatch()
		if pending > 0 {
			c.backend.wait(10)
		}
	}
	err := c.backend.close()
	c.state.TryTransition(AioClosing, AioClosed)
	return err
}

// Finalize implements the host-loop source contract's teardown step: it
// drains the backlog and releases the backend, equivalent to [Close]
// but discarding the error since the source contract's finalize step
// has no error return.
func (c *AioContext) Finalize() {
	_ = c.Close()
}

// BacklogLen returns the current backlog depth, primarily for tests and
// diagnostics.
func (c *AioContext) BacklogLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.backlog)
}
