package dex

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPromiseResolveFansOutToObservers(t *testing.T) {
	p := NewPromise()

	const n = 10
	var wg sync.WaitGroup
	wg.Add(n)
	results := make([]any, n)

	for i := 0; i < n; i++ {
		i := i
		p.Future().OnComplete(func(value any, err error) {
			defer wg.Done()
			require.NoError(t, err)
			results[i] = value
		})
	}

	p.Resolve("done")
	wg.Wait()

	for i, r := range results {
		require.Equal(t, "done", r, "observer %d", i)
	}
}

func TestPromiseLateBindingObservesImmediately(t *testing.T) {
	p := NewPromise()
	p.Resolve("late")

	var got any
	p.Future().OnComplete(func(value any, err error) {
		got = value
	})

	require.Equal(t, "late", got)
}

func TestPromiseSettlesAtMostOnce(t *testing.T) {
	p := NewPromise()
	require.True(t, p.Resolve(1))
	require.False(t, p.Resolve(2))
	require.False(t, p.Reject(errors.New("boom")))

	value, err := p.Future().Outcome()
	require.NoError(t, err)
	require.Equal(t, 1, value)
}

func TestChainPropagatesOutcome(t *testing.T) {
	source := NewPromise()
	target := NewPromise()
	Chain(source.Future(), target)

	source.Reject(ErrCancelled)

	_, err := target.Future().Outcome()
	require.ErrorIs(t, err, ErrCancelled)
}

func TestAwaitBlocksUntilSettled(t *testing.T) {
	p := NewPromise()
	go func() {
		time.Sleep(5 * time.Millisecond)
		p.Resolve(42)
	}()

	value, err := Await(p.Future())
	require.NoError(t, err)
	require.Equal(t, 42, value)
}

func TestNewResolvedAndNewRejected(t *testing.T) {
	r := NewResolved("ok")
	require.Equal(t, Resolved, r.State())
	v, err := r.Outcome()
	require.NoError(t, err)
	require.Equal(t, "ok", v)

	e := NewRejected(ErrTimedOut)
	require.Equal(t, Rejected, e.State())
	_, err = e.Outcome()
	require.ErrorIs(t, err, ErrTimedOut)
}
