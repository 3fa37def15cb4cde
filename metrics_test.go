package dex

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDepthAwareLatencyExactFallbackBelowFiveSamples(t *testing.T) {
	var l DepthAwareLatency
	l.Record(10 * time.Millisecond)
	l.Record(30 * time.Millisecond)
	l.Record(20 * time.Millisecond)

	n := l.Sample()
	require.Equal(t, 3, n)
	require.Equal(t, 30*time.Millisecond, l.Max)
	require.Equal(t, 20*time.Millisecond, l.Mean)
}

func TestDepthAwareLatencyPSquareAboveFiveSamples(t *testing.T) {
	var l DepthAwareLatency
	for i := 1; i <= 20; i++ {
		l.Record(time.Duration(i) * time.Millisecond)
	}

	n := l.Sample()
	require.Equal(t, 20, n)
	require.Equal(t, 20*time.Millisecond, l.Max)
	require.Positive(t, l.P50)
	require.True(t, l.P50 <= l.P90)
	require.True(t, l.P90 <= l.P95)
	require.True(t, l.P95 <= l.P99)
}

func TestDepthMetricsTracksCurrentMaxAndEMA(t *testing.T) {
	var d DepthMetrics

	d.UpdateChannelDepth(3)
	require.Equal(t, 3, d.ChannelCurrent)
	require.Equal(t, 3, d.ChannelMax)
	require.InDelta(t, 3.0, d.ChannelAvg, 0.001)

	d.UpdateChannelDepth(1)
	require.Equal(t, 1, d.ChannelCurrent)
	require.Equal(t, 3, d.ChannelMax, "max is sticky")
	require.Less(t, d.ChannelAvg, 3.0)

	d.UpdateSchedulerDepth(5)
	require.Equal(t, 5, d.SchedulerMax)

	d.UpdateAioDepth(7)
	require.Equal(t, 7, d.AioMax)
}

func TestNewMetricsIsUsableZeroValueFields(t *testing.T) {
	m := NewMetrics()
	require.NotNil(t, m)
	require.Equal(t, 0, m.Completion.Sample())
	m.Depth.UpdateChannelDepth(2)
	require.Equal(t, 2, m.Depth.ChannelCurrent)
}
