package dex

import "sync"

// chanItem bundles a send-acknowledgement promise (handed back to the
// sender) with the payload future the sender handed in.
type chanItem struct {
	payload    Future
	ackPromise *Promise
}

// recvWaiter is one pending receiver: the promise whose outcome will
// become the payload future's eventual (value, err) once paired.
type recvWaiter struct {
	promise *Promise
}

// Channel is a bounded, ordered, cancellable FIFO whose Send and Receive
// operations return [Future]s. Capacity 0 means unbounded; it's used
// internally as the unbounded sentinel (NewChannel(0) is documented as
// unbounded rather than zero-capacity, since a zero-capacity channel can
// never admit anything).
type Channel struct {
	mu sync.Mutex

	capacity int // 0 == unbounded

	queue []*chanItem     // admitted items, FIFO, len(queue) <= capacity
	sendq []*chanItem     // items awaiting admission, FIFO
	recvq []*recvWaiter   // pending receivers, FIFO

	canSend    bool
	canReceive bool

	logger  Logger
	metrics *Metrics
}

// NewChannel creates a channel with the given capacity. A capacity of 0
// means unbounded.
func NewChannel(capacity int) *Channel {
	return &Channel{
		capacity:   capacity,
		canSend:    true,
		canReceive: true,
		logger:     NewNoOpLogger(),
	}
}

// SetLogger attaches a structured [Logger] used for diagnostic logging
// of close/drain events. Not required for correct operation.
func (c *Channel) SetLogger(l Logger) {
	if l != nil {
		c.logger = l
	}
}

// SetMetrics attaches a [Metrics] collector for admitted-queue-depth
// observability.
func (c *Channel) SetMetrics(m *Metrics) {
	c.metrics = m
}

func (c *Channel) hasRoom() bool {
	return c.capacity == 0 || len(c.queue) < c.capacity
}

// Send admits payload into the channel and returns an ack future that
// resolves with the queue length at the moment of admission, or rejects
// with [ChannelClosedError] if the send side (or the receive side) is
// closed. The payload future itself is delivered to whichever receiver
// it pairs with — Send never inspects or waits on payload's own outcome
// (an already-rejected payload still admits successfully).
func (c *Channel) Send(payload Future) Future {
	c.mu.Lock()

	if !(c.canSend && c.canReceive) {
		c.mu.Unlock()
		return newRejected(&ChannelClosedError{Op: "send"})
	}

	item := &chanItem{payload: payload, ackPromise: NewPromise()}

	var toPair []pairing
	if len(c.sendq) == 0 && c.hasRoom() {
		c.queue = append(c.queue, item)
		item.ackPromise.Resolve(len(c.queue))
		toPair = c.pairUpLocked()
	} else {
		c.sendq = append(c.sendq, item)
	}
	depth := len(c.queue)

	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.Depth.UpdateChannelDepth(depth)
	}
	applyPairings(toPair)
	return item.ackPromise.Future()
}

// Receive enqueues a receiver and returns a future that resolves with
// whatever the paired payload future eventually produces. It rejects
// immediately with [ChannelClosedError] if
// the receive side is closed, or if the send side is closed and there
// are not enough pending items+senders left to ever fulfill it
// (formally: |queue|+|sendq| <= |recvq| at this moment).
func (c *Channel) Receive() Future {
	c.mu.Lock()

	if !c.canReceive {
		c.mu.Unlock()
		return newRejected(&ChannelClosedError{Op: "receive"})
	}
	if !c.canSend && len(c.queue)+len(c.sendq) <= len(c.recvq) {
		c.mu.Unlock()
		return newRejected(&ChannelClosedError{Op: "receive"})
	}

	w := &recvWaiter{promise: NewPromise()}
	c.recvq = append(c.recvq, w)
	toPair := c.pairUpLocked()
	depth := len(c.queue)

	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.Depth.UpdateChannelDepth(depth)
	}
	applyPairings(toPair)
	return w.promise.Future()
}

// pairing is the work that must happen outside the channel lock after a
// pair-up: chaining a payload future into a receiver's promise, and
// resolving a promoted sender's ack. This split exists because chaining
// payload's outcome can re-enter the channel (e.g. if payload itself
// depends on this same channel).
type pairing struct {
	payload Future
	waiter  *Promise

	promotedAck   *Promise
	promotedQueue int
}

// pairUpLocked performs at most one pair-up per call: pop one receiver
// and one queue item if both are non-empty, then promote the head of
// sendq into queue if there is now room. Must be called with
// c.mu held; the returned pairings must be applied after the lock is
// released.
func (c *Channel) pairUpLocked() []pairing {
	var out []pairing

	if len(c.queue) > 0 && len(c.recvq) > 0 {
		w := c.recvq[0]
		c.recvq = c.recvq[1:]
		item := c.queue[0]
		c.queue = c.queue[1:]

		out = append(out, pairing{payload: item.payload, waiter: w.promise})

		if len(c.sendq) > 0 && c.hasRoom() {
			promoted := c.sendq[0]
			c.sendq = c.sendq[1:]
			c.queue = append(c.queue, promoted)
			out = append(out, pairing{promotedAck: promoted.ackPromise, promotedQueue: len(c.queue)})
		}
	}

	return out
}

func applyPairings(pairings []pairing) {
	for _, p := range pairings {
		if p.waiter != nil {
			Chain(p.payload, p.waiter)
		}
		if p.promotedAck != nil {
			p.promotedAck.Resolve(p.promotedQueue)
		}
	}
}

// CloseSend clears the send side. Receivers beyond the still-fulfillable
// count (|queue|+|sendq| at close time) are rejected in LIFO order —
// newest receivers fail first, so that earlier
// receivers are still served by whatever is left draining out of queue.
// Idempotent: closing an already-closed send side is a no-op.
func (c *Channel) CloseSend() {
	c.mu.Lock()

	if !c.canSend {
		c.mu.Unlock()
		return
	}
	c.canSend = false

	fulfillable := len(c.queue) + len(c.sendq)
	var toReject []*Promise
	for len(c.recvq) > fulfillable {
		n := len(c.recvq)
		w := c.recvq[n-1]
		c.recvq = c.recvq[:n-1]
		toReject = append(toReject, w.promise)
	}

	c.mu.Unlock()

	logAt(c.logger, LevelInfo, "channel", "send side closed", nil, map[string]any{"rejected_receivers": len(toReject)})
	for _, p := range toReject {
		p.Reject(&ChannelClosedError{Op: "receive"})
	}
}

// CloseReceive clears the receive side and drains everything: every
// pending receiver and every sendq item's ack is rejected closed, and
// every item still sitting in queue is simply dropped (its payload
// future is never observed). Idempotent.
func (c *Channel) CloseReceive() {
	c.mu.Lock()

	if !c.canReceive {
		c.mu.Unlock()
		return
	}
	c.canReceive = false

	recv := c.recvq
	c.recvq = nil
	sendq := c.sendq
	c.sendq = nil
	dropped := len(c.queue)
	c.queue = nil

	c.mu.Unlock()

	if c.metrics != nil && dropped > 0 {
		c.metrics.Depth.UpdateChannelDepth(0)
	}
	logAt(c.logger, LevelInfo, "channel", "receive side closed", nil, map[string]any{"dropped_queue": dropped, "rejected_receivers": len(recv), "rejected_senders": len(sendq)})
	for _, w := range recv {
		w.promise.Reject(&ChannelClosedError{Op: "receive"})
	}
	for _, item := range sendq {
		item.ackPromise.Reject(&ChannelClosedError{Op: "send"})
	}
}

// Len returns the current number of admitted items in queue. Primarily
// for tests and diagnostics; it should never exceed capacity.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}
