package dex

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChannelSendReceivePairsFIFO(t *testing.T) {
	ch := NewChannel(2)

	ack1 := ch.Send(NewResolved("a"))
	v1, err := Await(ack1)
	require.NoError(t, err)
	require.Equal(t, 1, v1)

	recv := ch.Receive()
	value, err := Await(recv)
	require.NoError(t, err)
	require.Equal(t, "a", value)
}

func TestChannelCapacityBoundedQueueLength(t *testing.T) {
	ch := NewChannel(1)

	ch.Send(NewResolved("first"))
	require.Equal(t, 1, ch.Len())

	// Second send exceeds capacity with no receiver yet, so it is parked
	// in sendq rather than admitted into queue.
	ack2 := ch.Send(NewResolved("second"))
	require.Equal(t, 1, ch.Len())
	require.Equal(t, Pending, ack2.State())

	_, err := Await(ch.Receive())
	require.NoError(t, err)

	// Draining one item should have promoted the parked sender into queue.
	require.Equal(t, 1, ch.Len())
	v2, err := Await(ack2)
	require.NoError(t, err)
	require.Equal(t, 1, v2)
}

// TestChannelCloseSendRejectsExcessReceivers exercises CloseSend's LIFO
// truncation directly against channel state: with recvq longer than the
// still-fulfillable count (|queue|+|sendq|), the newest receivers are
// rejected first and the oldest ones are left to drain normally. This
// state can't be reached purely through Send/Receive calls, since
// pairUpLocked greedily pairs on every call — so it's built by hand, in
// the same white-box style as the package's other internal-state tests.
func TestChannelCloseSendRejectsExcessReceivers(t *testing.T) {
	ch := NewChannel(0)
	ch.queue = []*chanItem{{payload: NewResolved("a"), ackPromise: NewPromise()}}

	w0 := &recvWaiter{promise: NewPromise()}
	w1 := &recvWaiter{promise: NewPromise()}
	w2 := &recvWaiter{promise: NewPromise()}
	ch.recvq = []*recvWaiter{w0, w1, w2}

	ch.CloseSend()

	// fulfillable == 1 (one item already in queue), so the newest two of
	// the three receivers are rejected and only the oldest is left.
	require.Equal(t, Rejected, w2.promise.Future().State())
	_, err := w2.promise.Future().Outcome()
	require.ErrorIs(t, err, ErrChannelClosed)
	require.Equal(t, Rejected, w1.promise.Future().State())
	require.Equal(t, Pending, w0.promise.Future().State())
	require.Len(t, ch.recvq, 1, "one receiver should remain, matching the single fulfillable item left in queue")
}

func TestChannelSendAfterCloseSendRejected(t *testing.T) {
	ch := NewChannel(1)
	ch.CloseSend()

	f := ch.Send(NewResolved("x"))
	_, err := Await(f)
	require.ErrorIs(t, err, ErrChannelClosed)
}

func TestChannelCloseReceiveDrainsAndRejects(t *testing.T) {
	ch := NewChannel(2)

	ch.Send(NewResolved("a"))
	ackPending := ch.Send(NewResolved("b"))

	ch.CloseReceive()

	recv := ch.Receive()
	_, err := Await(recv)
	require.ErrorIs(t, err, ErrChannelClosed)

	// both sends fit within cap=2, so the second send's ack resolved on
	// admission; CloseReceive must leave every promise terminal one way
	// or another.
	require.NotEqual(t, Pending, ackPending.State())
}

func TestChannelMetricsTracksAdmittedQueueDepth(t *testing.T) {
	m := NewMetrics()
	ch := NewChannel(2)
	ch.SetMetrics(m)

	ch.Send(NewResolved("a"))
	require.Equal(t, 1, m.Depth.ChannelCurrent)

	ch.Send(NewResolved("b"))
	require.Equal(t, 2, m.Depth.ChannelCurrent)
	require.Equal(t, 2, m.Depth.ChannelMax)

	Await(ch.Receive())
	require.Equal(t, 1, m.Depth.ChannelCurrent)

	ch.CloseReceive()
	require.Equal(t, 0, m.Depth.ChannelCurrent, "CloseReceive drops the remaining queue to zero")
}

func TestChannelReceiveRejectsWhenUnfulfillable(t *testing.T) {
	ch := NewChannel(0)
	ch.CloseSend()

	f := ch.Receive()
	_, err := Await(f)
	require.ErrorIs(t, err, ErrChannelClosed)
}
