package eduAuth

import (
	"sort"
	"sync/atomic"
	"time"
)

// MetricID names one counter. The *Latency IDs name histograms instead.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshReuseDetected
	MetricOAuthStart
	MetricOAuthStartFailure
	MetricOAuthCallbackSuccess
	MetricOAuthCallbackFailure
	MetricOAuthInvalidState
	MetricOAuthUpstreamFailure
	MetricOAuthAccountCreated
	MetricOAuthAccountLinked
	MetricLogoutAll
	MetricTokensRevoked
	MetricStateStoreFallback
	MetricStateStoreBreakerOpen
	MetricStorageUnavailable
	MetricValidateLatency
	MetricOAuthCallbackLatency
	metricIDCount
)

// LatencyBounds are the inclusive upper bounds of the latency buckets.
// One more bucket collects everything slower.
var LatencyBounds = [...]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

const latencyBuckets = len(LatencyBounds) + 1

// counter sits on its own cache line; hot counters are bumped from every
// request goroutine.
type counter struct {
	n atomic.Uint64
	_ [56]byte
}

type latencyHist struct {
	buckets [latencyBuckets]atomic.Uint64
	sum     atomic.Int64
}

// Metrics is a fixed set of lock-free counters and latency histograms.
// A nil or disabled *Metrics ignores every call.
type Metrics struct {
	enabled  bool
	latency  bool
	counters [metricIDCount]counter
	hists    map[MetricID]*latencyHist
}

// MetricsSnapshot is a point-in-time copy. Histogram slices hold
// per-bucket (not cumulative) counts in [LatencyBounds] order, with the
// overflow bucket last.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
	// LatencySum is the total observed time per histogram.
	LatencySum map[MetricID]time.Duration
}

func emptySnapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
		LatencySum: map[MetricID]time.Duration{},
	}
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	m := &Metrics{
		enabled: cfg.Enabled,
		latency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
	if m.latency {
		m.hists = map[MetricID]*latencyHist{
			MetricValidateLatency:      {},
			MetricOAuthCallbackLatency: {},
		}
	}
	return m
}

func (m *Metrics) Enabled() bool        { return m != nil && m.enabled }
func (m *Metrics) LatencyEnabled() bool { return m != nil && m.latency }

func (m *Metrics) Inc(id MetricID) { m.Add(id, 1) }

func (m *Metrics) Add(id MetricID, n uint64) {
	if !m.Enabled() || id >= metricIDCount {
		return
	}
	m.counters[id].n.Add(n)
}

// Observe records d against a latency histogram; counter IDs are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() {
		return
	}
	h, ok := m.hists[id]
	if !ok {
		return
	}
	i := sort.Search(len(LatencyBounds), func(i int) bool { return d <= LatencyBounds[i] })
	h.buckets[i].Add(1)
	h.sum.Add(int64(d))
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.counters[id].n.Load()
}

// Snapshot is empty when metrics are disabled. Counters and histograms
// are read one by one, so a snapshot taken under load is not atomic
// across IDs.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := emptySnapshot()
	if !m.Enabled() {
		return s
	}
	for id := range metricIDCount {
		if _, isHist := m.hists[id]; isHist {
			continue
		}
		s.Counters[id] = m.counters[id].n.Load()
	}
	for id, h := range m.hists {
		counts := make([]uint64, latencyBuckets)
		for i := range counts {
			counts[i] = h.buckets[i].Load()
		}
		s.Histograms[id] = counts
		s.LatencySum[id] = time.Duration(h.sum.Load())
	}
	return s
}
