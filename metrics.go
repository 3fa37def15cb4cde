package dex

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Metrics tracks runtime statistics for a go-dex runtime: completion
// latency for futures, and backlog/ready-queue depth for channels,
// schedulers, and AIO contexts. All metrics are optional; attach via
// [Channel.SetMetrics], [WithSchedulerMetrics], [WithAioMetrics], or by
// calling Record or the Update*Depth methods directly.
type Metrics struct {
	Completion DepthAwareLatency
	Depth      DepthMetrics
}

// NewMetrics creates an empty metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// DepthAwareLatency tracks completion latency (time from submission to
// terminal state) for one go-dex component, using [completionQuantiles]
// for O(1) streaming P50/P90/P95/P99 estimation.
type DepthAwareLatency struct {
	quantiles *completionQuantiles

	mu sync.RWMutex

	sampleIdx   int
	sampleCount int
	samples     [latencySampleSize]time.Duration

	P50 time.Duration
	P90 time.Duration
	P95 time.Duration
	P99 time.Duration
	Max time.Duration

	Mean time.Duration
	Sum  time.Duration
}

// latencySampleSize bounds the exact-percentile fallback buffer used
// while fewer than 5 samples have arrived (below the P-Square
// algorithm's minimum marker count).
const latencySampleSize = 1000

// Record records one completion latency sample. Safe to call from any
// goroutine; this is on the hot path of every operation completion an
// [AioContext] instruments, so it must stay allocation-free.
func (l *DepthAwareLatency) Record(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.quantiles == nil {
		l.quantiles = newCompletionQuantiles()
	}
	l.quantiles.update(float64(d))

	if l.sampleCount >= latencySampleSize {
		l.Sum -= l.samples[l.sampleIdx]
	}
	l.samples[l.sampleIdx] = d
	l.Sum += d
	l.sampleIdx++
	if l.sampleIdx >= latencySampleSize {
		l.sampleIdx = 0
	}
	if l.sampleCount < latencySampleSize {
		l.sampleCount++
	}
}

// Sample recomputes the cached percentile fields from samples collected
// so far and returns how many samples contributed. Below 5 samples it
// falls back to exact sorting; at or above it uses the O(1) P-Square
// estimate.
func (l *DepthAwareLatency) Sample() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := l.sampleCount
	if count == 0 {
		return 0
	}

	if count < 5 || l.quantiles == nil {
		sorted := make([]time.Duration, count)
		copy(sorted, l.samples[:count])
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		l.P50 = sorted[percentileIndex(count, 50)]
		l.P90 = sorted[percentileIndex(count, 90)]
		l.P95 = sorted[percentileIndex(count, 95)]
		l.P99 = sorted[percentileIndex(count, 99)]
		l.Max = sorted[count-1]
		l.Mean = l.Sum / time.Duration(count)
		return count
	}

	l.P50 = time.Duration(l.quantiles.quantile(0))
	l.P90 = time.Duration(l.quantiles.quantile(1))
	l.P95 = time.Duration(l.quantiles.quantile(2))
	l.P99 = time.Duration(l.quantiles.quantile(3))
	l.Max = time.Duration(l.quantiles.max)
	l.Mean = l.Sum / time.Duration(count)
	return count
}

// completionPercentiles are the four percentiles every [DepthAwareLatency]
// tracks; fixed rather than caller-configurable since go-dex's own
// observability surface (P50/P90/P95/P99 fields) is fixed too.
var completionPercentiles = [4]float64{0.50, 0.90, 0.95, 0.99}

// completionQuantiles streams the four fixed completion-latency
// percentiles with the P² algorithm (Jain and Chlamtac, "The P² Algorithm
// for Dynamic Calculation of Quantiles and Histograms Without Storing
// Observations", 1985): each percentile gets its own 5-marker estimator,
// giving O(1) updates and O(1) reads without storing samples. Not
// thread-safe; [DepthAwareLatency] supplies the mutex.
type completionQuantiles struct {
	markers [4]quantileMarkers
	max     float64
	seen    bool
}

func newCompletionQuantiles() *completionQuantiles {
	c := &completionQuantiles{max: -math.MaxFloat64}
	for i, p := range completionPercentiles {
		c.markers[i] = newQuantileMarkers(p)
	}
	return c
}

func (c *completionQuantiles) update(x float64) {
	if !c.seen || x > c.max {
		c.max = x
	}
	c.seen = true
	for i := range c.markers {
		c.markers[i].update(x)
	}
}

func (c *completionQuantiles) quantile(i int) float64 { return c.markers[i].estimate() }

// quantileMarkers holds one percentile's 5 P² markers: heights (q),
// actual positions (n), desired floating positions (np), and desired
// per-observation position increments (dn).
type quantileMarkers struct {
	p  float64
	q  [5]float64
	n  [5]int
	np [5]float64
	dn [5]float64

	count   int
	initBuf [5]float64
}

func newQuantileMarkers(p float64) quantileMarkers {
	return quantileMarkers{p: p, dn: [5]float64{0, p / 2, p, (1 + p) / 2, 1}}
}

// update folds one observation into the marker set. O(1).
func (m *quantileMarkers) update(x float64) {
	m.count++

	if m.count <= 5 {
		m.initBuf[m.count-1] = x
		if m.count == 5 {
			m.initialize()
		}
		return
	}

	var k int
	switch {
	case x < m.q[0]:
		m.q[0] = x
		k = 0
	case x >= m.q[4]:
		m.q[4] = x
		k = 3
	default:
		for k = 0; k < 4; k++ {
			if m.q[k] <= x && x < m.q[k+1] {
				break
			}
		}
	}

	for i := k + 1; i < 5; i++ {
		m.n[i]++
	}
	for i := 0; i < 5; i++ {
		m.np[i] += m.dn[i]
	}

	for i := 1; i < 4; i++ {
		d := m.np[i] - float64(m.n[i])
		if (d >= 1 && m.n[i+1]-m.n[i] > 1) || (d <= -1 && m.n[i-1]-m.n[i] < -1) {
			sign := 1
			if d < 0 {
				sign = -1
			}

			qPrime := m.parabolic(i, sign)
			if m.q[i-1] < qPrime && qPrime < m.q[i+1] {
				m.q[i] = qPrime
			} else {
				m.q[i] = m.linear(i, sign)
			}
			m.n[i] += sign
		}
	}
}

// initialize sorts the first 5 observations into the initial marker
// heights and positions once the bootstrap buffer fills.
func (m *quantileMarkers) initialize() {
	for i := 1; i < 5; i++ {
		key := m.initBuf[i]
		j := i - 1
		for j >= 0 && m.initBuf[j] > key {
			m.initBuf[j+1] = m.initBuf[j]
			j--
		}
		m.initBuf[j+1] = key
	}

	for i := 0; i < 5; i++ {
		m.q[i] = m.initBuf[i]
		m.n[i] = i
	}
	m.np = [5]float64{0, 2 * m.p, 4 * m.p, 2 + 2*m.p, 4}
}

func (m *quantileMarkers) parabolic(i, d int) float64 {
	df := float64(d)
	ni := float64(m.n[i])
	niPrev := float64(m.n[i-1])
	niNext := float64(m.n[i+1])

	term1 := df / (niNext - niPrev)
	term2 := (ni - niPrev + df) * (m.q[i+1] - m.q[i]) / (niNext - ni)
	term3 := (niNext - ni - df) * (m.q[i] - m.q[i-1]) / (ni - niPrev)

	return m.q[i] + term1*(term2+term3)
}

func (m *quantileMarkers) linear(i, d int) float64 {
	if d == 1 {
		return m.q[i] + (m.q[i+1]-m.q[i])/float64(m.n[i+1]-m.n[i])
	}
	return m.q[i] - (m.q[i]-m.q[i-1])/float64(m.n[i]-m.n[i-1])
}

// estimate returns the current percentile estimate. Below 5 observations
// this is never called: [DepthAwareLatency.Sample] falls back to its own
// exact-sort path until then.
func (m *quantileMarkers) estimate() float64 { return m.q[2] }

func percentileIndex(n, p int) int {
	index := (p * n) / 100
	if index >= n {
		return n - 1
	}
	return index
}

// DepthMetrics tracks queue-depth statistics for the three places
// backlog accumulates in this runtime: a [Channel]'s admitted queue, a
// [Scheduler]'s ready set, and an [AioContext]'s backlog FIFO.
type DepthMetrics struct {
	mu sync.RWMutex

	ChannelCurrent, ChannelMax int
	ChannelAvg                 float64
	channelEMAInit             bool

	SchedulerCurrent, SchedulerMax int
	SchedulerAvg                   float64
	schedulerEMAInit               bool

	AioCurrent, AioMax int
	AioAvg             float64
	aioEMAInit         bool
}

// UpdateChannelDepth records the current admitted-item count of a channel.
func (d *DepthMetrics) UpdateChannelDepth(depth int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ChannelCurrent = depth
	if depth > d.ChannelMax {
		d.ChannelMax = depth
	}
	d.ChannelAvg, d.channelEMAInit = ema(d.ChannelAvg, d.channelEMAInit, depth)
}

// UpdateSchedulerDepth records the current ready-queue length of a scheduler.
func (d *DepthMetrics) UpdateSchedulerDepth(depth int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.SchedulerCurrent = depth
	if depth > d.SchedulerMax {
		d.SchedulerMax = depth
	}
	d.SchedulerAvg, d.schedulerEMAInit = ema(d.SchedulerAvg, d.schedulerEMAInit, depth)
}

// UpdateAioDepth records the current backlog length of an AIO context.
func (d *DepthMetrics) UpdateAioDepth(depth int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.AioCurrent = depth
	if depth > d.AioMax {
		d.AioMax = depth
	}
	d.AioAvg, d.aioEMAInit = ema(d.AioAvg, d.aioEMAInit, depth)
}

// ema computes an exponential moving average with alpha=0.1, warm-starting
// to the first observed value so early samples aren't dragged toward zero.
func ema(prev float64, init bool, depth int) (float64, bool) {
	if !init {
		return float64(depth), true
	}
	return 0.9*prev + 0.1*float64(depth), true
}
