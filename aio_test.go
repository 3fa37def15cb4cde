package dex

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeAioBackend is a minimal in-memory [aioBackend] used to exercise
// [AioContext]'s backlog/drain/close logic without a real kernel ring or
// blocking syscalls.
type fakeAioBackend struct {
	mu       sync.Mutex
	capacity int // max requests admitted before submit starts refusing
	admitted []*aioRequest
	closed   bool
}

func (b *fakeAioBackend) submit(req *aioRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.capacity > 0 && len(b.admitted) >= b.capacity {
		return &InvalidStateError{Message: "fake backend full"}
	}
	b.admitted = append(b.admitted, req)
	return nil
}

func (b *fakeAioBackend) poll() int { return 0 }

func (b *fakeAioBackend) ready() bool { return false }

func (b *fakeAioBackend) wait(timeoutMs int) {}

func (b *fakeAioBackend) close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// completeOne resolves every admitted request still pending and removes
// it from the in-flight set, as a stand-in for what a real backend's
// poll() would do on a completion (freeing its submission slot).
func (b *fakeAioBackend) completeOne(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, req := range b.admitted {
		req.promise.Resolve(n)
	}
	b.admitted = nil
}

func TestAioContextQueueDrainsIntoBackend(t *testing.T) {
	backend := &fakeAioBackend{}
	ctx := NewAioContextWithBackend(backend)

	f := ctx.Read(3, make([]byte, 8), 0)
	require.Equal(t, 0, ctx.BacklogLen(), "drain should hand the request straight to the backend")

	backend.completeOne(8)
	value, err := Await(f)
	require.NoError(t, err)
	require.Equal(t, 8, value)
}

func TestAioContextBacklogsWhenBackendFull(t *testing.T) {
	backend := &fakeAioBackend{capacity: 1}
	ctx := NewAioContextWithBackend(backend)

	f1 := ctx.Read(1, make([]byte, 1), 0)
	f2 := ctx.Read(1, make([]byte, 1), 0)

	require.Equal(t, 1, ctx.BacklogLen())
	require.Equal(t, Pending, f1.State())
	require.Equal(t, Pending, f2.State())

	backend.completeOne(1)
	ctx.Dispatch()
	require.Equal(t, 0, ctx.BacklogLen())
}

func TestAioContextBacklogLimiterRejectsBurst(t *testing.T) {
	backend := &fakeAioBackend{}
	ctx := NewAioContextWithBackend(backend, WithBacklogLimit(1))

	f1 := ctx.Read(1, make([]byte, 1), 0)
	backend.completeOne(1)
	_, err := Await(f1)
	require.NoError(t, err)

	f2 := ctx.Read(1, make([]byte, 1), 0)
	_, err = Await(f2)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrBacklogFull)
}

func TestAioContextCloseDrainsBacklogBeforeClosingBackend(t *testing.T) {
	backend := &fakeAioBackend{capacity: 1}
	ctx := NewAioContextWithBackend(backend)

	f1 := ctx.Read(1, make([]byte, 1), 0)
	f2 := ctx.Read(1, make([]byte, 1), 0)

	go func() {
		time.Sleep(5 * time.Millisecond)
		backend.completeOne(1)
	}()

	err := ctx.Close()
	require.NoError(t, err)
	require.True(t, backend.closed)

	_, err1 := Await(f1)
	require.NoError(t, err1)
	_, err2 := f2.Outcome()
	_ = err2 // Close handed f2 to the backend before returning, but the fake backend never completes it, so it is still pending
}

func TestAioContextMetricsTracksBacklogDepthAndCompletionLatency(t *testing.T) {
	backend := &fakeAioBackend{capacity: 1}
	m := NewMetrics()
	ctx := NewAioContextWithBackend(backend, WithAioMetrics(m))

	f1 := ctx.Read(1, make([]byte, 1), 0)
	f2 := ctx.Read(1, make([]byte, 1), 0)
	require.Equal(t, 1, m.Depth.AioCurrent)

	backend.completeOne(1)
	_, err := Await(f1)
	require.NoError(t, err)
	require.Positive(t, m.Completion.Sample())

	ctx.Dispatch()
	backend.completeOne(1)
	_, err = Await(f2)
	require.NoError(t, err)
	require.Equal(t, 0, m.Depth.AioCurrent)
}

func TestAioContextFinalizeClosesBackend(t *testing.T) {
	backend := &fakeAioBackend{}
	ctx := NewAioContextWithBackend(backend)

	ctx.Finalize()
	require.True(t, backend.closed)

	f := ctx.Read(1, make([]byte, 1), 0)
	_, err := Await(f)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestAioContextQueueAfterCloseRejected(t *testing.T) {
	backend := &fakeAioBackend{}
	ctx := NewAioContextWithBackend(backend)
	require.NoError(t, ctx.Close())

	f := ctx.Read(1, make([]byte, 1), 0)
	_, err := Await(f)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestThreadPoolBackendReadWriteRealFile(t *testing.T) {
	dir := t.TempDir()
	file, err := os.CreateTemp(dir, "dex-aio-*")
	require.NoError(t, err)
	defer file.Close()

	backend, err := newThreadPoolBackend(aioOptions{ringDepth: 2})
	require.NoError(t, err)
	ctx := NewAioContextWithBackend(backend)
	defer ctx.Close()

	payload := []byte("hello, dex")
	wf := ctx.Write(int(file.Fd()), payload, 0)
	n, err := Await(wf)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	buf := make([]byte, len(payload))
	rf := ctx.Read(int(file.Fd()), buf, 0)
	n, err = Await(rf)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.Equal(t, payload, buf)
}
