package dex

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetDefaultSchedulerOnlySucceedsOnce(t *testing.T) {
	first := NewScheduler(WithName("first"))
	require.NoError(t, SetDefaultScheduler(first))
	require.Same(t, first, DefaultScheduler())

	second := NewScheduler(WithName("second"))
	err := SetDefaultScheduler(second)
	require.ErrorIs(t, err, ErrDefaultSchedulerAlreadySet)
	require.Same(t, first, DefaultScheduler())
}

func TestThreadSchedulerIsPerGoroutineAndRebindable(t *testing.T) {
	require.Nil(t, ThreadScheduler())

	sched := NewScheduler(WithName("thread-bound"))
	SetThreadScheduler(sched)
	require.Same(t, sched, ThreadScheduler())

	SetThreadScheduler(nil)
	require.Nil(t, ThreadScheduler())
}

func TestResolveSchedulerPrefersThreadOverProcessDefault(t *testing.T) {
	// SetDefaultScheduler is set-once per process, so this test works
	// with whatever process default earlier tests installed rather
	// than installing its own.
	require.Same(t, DefaultScheduler(), resolveScheduler())

	thread := NewScheduler(WithName("thread"))
	SetThreadScheduler(thread)
	defer SetThreadScheduler(nil)

	require.Same(t, thread, resolveScheduler())
}
