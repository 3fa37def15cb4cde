package dex

import (
	"container/heap"
	"sync"
	"time"
)

// TimeoutFuture is a [Promise] whose [Future] rejects with a
// [TimedOutError] when its deadline elapses. The deadline can be pushed
// back atomically with [TimeoutFuture.Postpone] as long as it has not
// already fired.
type TimeoutFuture struct {
	*Promise
	entry *timerEntry
}

// timerEntry is one scheduled deadline, linked into the package-wide
// deadline queue (timerQueue). Rather than depend on an external event
// loop for deadline callbacks, go-dex runs one lightweight background
// goroutine per process that services a container/heap min-heap of
// pending deadlines.
type timerEntry struct {
	when    time.Time
	promise *Promise
	index   int // heap index, maintained by container/heap
	fired   bool
}

// timerEntryHeap is a min-heap of pending deadlines ordered by when.
type timerEntryHeap []*timerEntry

func (h timerEntryHeap) Len() int            { return len(h) }
func (h timerEntryHeap) Less(i, j int) bool  { return h[i].when.Before(h[j].when) }
func (h timerEntryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index, h[j].index = i, j }
func (h *timerEntryHeap) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *timerEntryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// timerQueue is a process-wide deadline scheduler: a mutex-guarded heap
// plus one goroutine that sleeps until the next deadline, wakes on a
// channel when an earlier deadline is added or an existing one is
// postponed, and rejects fired entries with [ErrTimedOut].
type timerQueue struct {
	mu      sync.Mutex
	heap    timerEntryHeap
	wake    chan struct{}
	started bool
}

var globalTimerQueue = &timerQueue{wake: make(chan struct{}, 1)}

func (q *timerQueue) add(e *timerEntry) {
	q.mu.Lock()
	heap.Push(&q.heap, e)
	q.ensureRunningLocked()
	q.mu.Unlock()
	q.notify()
}

// remove cancels e if it is still armed (not yet fired). Used when the
// promise it guards settles some other way before the deadline.
func (q *timerQueue) remove(e *timerEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e.index >= 0 && e.index < len(q.heap) && q.heap[e.index] == e {
		heap.Remove(&q.heap, e.index)
	}
}

// postpone atomically resets e's deadline if it is still armed. Returns
// false if e already fired.
func (q *timerQueue) postpone(e *timerEntry, newDeadline time.Time) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e.fired || e.index < 0 || e.index >= len(q.heap) || q.heap[e.index] != e {
		return false
	}
	e.when = newDeadline
	heap.Fix(&q.heap, e.index)
	q.notifyLocked()
	return true
}

func (q *timerQueue) ensureRunningLocked() {
	if q.started {
		return
	}
	q.started = true
	go q.run()
}

func (q *timerQueue) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *timerQueue) notifyLocked() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *timerQueue) run() {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	for {
		q.mu.Lock()
		var wait time.Duration
		if len(q.heap) == 0 {
			wait = time.Hour
		} else {
			wait = time.Until(q.heap[0].when)
			if wait < 0 {
				wait = 0
			}
		}
		q.mu.Unlock()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-timer.C:
			q.fireDue()
		case <-q.wake:
		}
	}
}

func (q *timerQueue) fireDue() {
	now := time.Now()
	var due []*timerEntry
	q.mu.Lock()
	for len(q.heap) > 0 && !q.heap[0].when.After(now) {
		e := heap.Pop(&q.heap).(*timerEntry)
		e.fired = true
		due = append(due, e)
	}
	q.mu.Unlock()

	for _, e := range due {
		e.promise.Reject(&TimedOutError{})
	}
}

// NewTimeout returns a [TimeoutFuture] that rejects with a
// [TimedOutError] after d elapses, unless it is postponed past that
// point first via [TimeoutFuture.Postpone].
func NewTimeout(d time.Duration) *TimeoutFuture {
	p := NewPromise()
	e := &timerEntry{when: time.Now().Add(d), promise: p, index: -1}
	globalTimerQueue.add(e)
	return &TimeoutFuture{Promise: p, entry: e}
}

// Postpone resets the deadline to now+d, atomically, if it has not
// already fired. Returns false if the timeout already rejected.
func (t *TimeoutFuture) Postpone(d time.Duration) bool {
	return globalTimerQueue.postpone(t.entry, time.Now().Add(d))
}

// Cancel removes the pending deadline without settling the future,
// leaving it to be resolved/rejected by some other means (e.g. the
// operation it was racing against won). The loser of a race completes
// harmlessly rather than being forcibly settled.
func (t *TimeoutFuture) Cancel() {
	globalTimerQueue.remove(t.entry)
}

// Race resolves/rejects with whichever of op or a [NewTimeout](d)
// settles first. The loser is left to complete harmlessly: if op wins,
// the timeout's deadline is cancelled; if the timeout wins, op is
// simply never observed again.
func Race(op Future, d time.Duration) Future {
	timeout := NewTimeout(d)
	result := NewPromise()

	var once sync.Once
	op.OnComplete(func(value any, err error) {
		once.Do(func() {
			timeout.Cancel()
			result.Complete(value, err)
		})
	})
	timeout.Future().OnComplete(func(value any, err error) {
		once.Do(func() {
			result.Complete(value, err)
		})
	})

	return result.Future()
}
