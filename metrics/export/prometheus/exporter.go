package prometheus

import (
	"net/http"

	eduAuth "github.com/MrEthical07/eduAuth"
	"github.com/MrEthical07/eduAuth/metrics/export/internaldefs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsSource interface {
	MetricsSnapshot() eduAuth.MetricsSnapshot
	AuditDropped() uint64
}

type histogramDesc struct {
	id   eduAuth.MetricID
	desc *prometheus.Desc
}

type counterDesc struct {
	id   eduAuth.MetricID
	desc *prometheus.Desc
}

// Collector is a [prometheus.Collector] that reads an engine snapshot on
// every scrape.
type Collector struct {
	source       metricsSource
	counters     []counterDesc
	histograms   []histogramDesc
	auditDropped *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector builds a collector over engine.
func NewCollector(engine *eduAuth.Engine) *Collector {
	return NewCollectorFromSource(engine)
}

// NewCollectorFromSource builds a collector over any snapshot source.
func NewCollectorFromSource(source metricsSource) *Collector {
	c := &Collector{
		source:       source,
		counters:     make([]counterDesc, 0, len(internaldefs.CounterDefs)),
		histograms:   make([]histogramDesc, 0, len(internaldefs.HistogramDefs)),
		auditDropped: prometheus.NewDesc(internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, nil, nil),
	}
	for _, def := range internaldefs.CounterDefs {
		c.counters = append(c.counters, counterDesc{id: def.ID, desc: prometheus.NewDesc(def.Name, def.Help, nil, nil)})
	}
	for _, def := range internaldefs.HistogramDefs {
		c.histograms = append(c.histograms, histogramDesc{id: def.ID, desc: prometheus.NewDesc(def.Name, def.Help, nil, nil)})
	}
	return c
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.counters {
		ch <- d.desc
	}
	for _, h := range c.histograms {
		ch <- h.desc
	}
	ch <- c.auditDropped
}

// Collect emits nothing when the engine has metrics disabled.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c == nil || c.source == nil {
		return
	}
	snapshot := c.source.MetricsSnapshot()
	dropped := c.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return
	}

	for _, d := range c.counters {
		ch <- prometheus.MustNewConstMetric(d.desc, prometheus.CounterValue, float64(snapshot.Counters[d.id]))
	}
	for _, h := range c.histograms {
		raw, ok := snapshot.Histograms[h.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		buckets := make(map[float64]uint64, len(internaldefs.HistogramUpperBounds))
		for i, bound := range internaldefs.HistogramUpperBounds {
			buckets[bound] = cumulative[i]
		}
		sum := snapshot.LatencySum[h.id].Seconds()
		ch <- prometheus.MustNewConstHistogram(h.desc, cumulative[len(cumulative)-1], sum, buckets)
	}
	ch <- prometheus.MustNewConstMetric(c.auditDropped, prometheus.CounterValue, float64(dropped))
}

// Handler registers c on a private registry and serves it. The global
// registry is left untouched.
func (c *Collector) Handler() http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
