package dex

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFiberRunToCompletion(t *testing.T) {
	sched := NewScheduler(WithName("test"))
	f := New(func(fiber *Fiber, data any) (any, error) {
		return data.(int) * 2, nil
	}, 21, 0)

	MigrateTo(f, sched)
	sched.Dispatch()

	require.Equal(t, FiberExited, f.State())
	value, err := Await(f.Result())
	require.NoError(t, err)
	require.Equal(t, 42, value)
}

func TestFiberAwaitSumsTwoPromises(t *testing.T) {
	sched := NewScheduler()
	a := NewPromise()
	b := NewPromise()

	f := New(func(fiber *Fiber, data any) (any, error) {
		av, err := fiber.Await(a.Future())
		if err != nil {
			return nil, err
		}
		bv, err := fiber.Await(b.Future())
		if err != nil {
			return nil, err
		}
		return av.(int) + bv.(int), nil
	}, nil, 0)

	MigrateTo(f, sched)
	sched.Dispatch()
	require.Equal(t, FiberWaiting, f.State())

	a.Resolve(1)
	// Resolve runs the fiber's observer inline, which moves it back to
	// ready; the poll below is only a safety margin before re-dispatching.
	for i := 0; i < 100 && !sched.Prepare(); i++ {
		time.Sleep(time.Millisecond)
	}
	sched.Dispatch()
	require.Equal(t, FiberWaiting, f.State())

	b.Resolve(41)
	for i := 0; i < 100 && !sched.Prepare(); i++ {
		time.Sleep(time.Millisecond)
	}
	sched.Dispatch()

	require.Equal(t, FiberExited, f.State())
	value, err := Await(f.Result())
	require.NoError(t, err)
	require.Equal(t, 42, value)
}

func TestFiberAwaitAlreadySettledDoesNotSuspend(t *testing.T) {
	sched := NewScheduler()
	pre := NewResolved("immediate")

	f := New(func(fiber *Fiber, data any) (any, error) {
		return fiber.Await(pre)
	}, nil, 0)

	MigrateTo(f, sched)
	sched.Dispatch()

	require.Equal(t, FiberExited, f.State())
	value, err := Await(f.Result())
	require.NoError(t, err)
	require.Equal(t, "immediate", value)
}

func TestFiberPropagatesEntryError(t *testing.T) {
	sched := NewScheduler()
	f := New(func(fiber *Fiber, data any) (any, error) {
		return nil, ErrCancelled
	}, nil, 0)

	MigrateTo(f, sched)
	sched.Dispatch()

	_, err := Await(f.Result())
	require.ErrorIs(t, err, ErrCancelled)
}
