package otel

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	eduAuth "github.com/MrEthical07/eduAuth"
	"github.com/MrEthical07/eduAuth/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// Source is read once per collection cycle. *eduAuth.Engine satisfies it.
type Source interface {
	MetricsSnapshot() eduAuth.MetricsSnapshot
	AuditDropped() uint64
}

type counterInstrument struct {
	id eduAuth.MetricID
	ob metric.Int64ObservableCounter
}

// histogramInstrument reports cumulative bucket counts on one gauge, told
// apart by the "le" attribute, plus the total on a _count gauge.
type histogramInstrument struct {
	id      eduAuth.MetricID
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// Exporter owns the callback registration; Close removes it.
type Exporter struct {
	source     Source
	counters   []counterInstrument
	histograms []histogramInstrument
	dropped    metric.Int64ObservableCounter
	reg        metric.Registration
}

// leOptions holds one attribute set per engine bucket, +Inf last.
var leOptions = func() []metric.ObserveOption {
	opts := make([]metric.ObserveOption, 0, len(internaldefs.HistogramUpperBounds)+1)
	for _, bound := range internaldefs.HistogramUpperBounds {
		le := strconv.FormatFloat(bound, 'g', -1, 64)
		opts = append(opts, metric.WithAttributeSet(attribute.NewSet(attribute.String("le", le))))
	}
	return append(opts, metric.WithAttributeSet(attribute.NewSet(attribute.String("le", "+Inf"))))
}()

// NewExporter registers instruments for engine on meter.
func NewExporter(meter metric.Meter, engine *eduAuth.Engine) (*Exporter, error) {
	return Register(meter, engine)
}

// Register creates every instrument and a single callback that reads src.
func Register(meter metric.Meter, src Source) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if src == nil {
		return nil, ErrNilSource
	}
	e := &Exporter{source: src}
	var observables []metric.Observable

	for _, def := range internaldefs.CounterDefs {
		ob, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", def.Name, err)
		}
		e.counters = append(e.counters, counterInstrument{id: def.ID, ob: ob})
		observables = append(observables, ob)
	}

	for _, def := range internaldefs.HistogramDefs {
		buckets, err := meter.Int64ObservableGauge(def.Name+"_bucket",
			metric.WithDescription(def.Help+" Cumulative count per upper bound."))
		if err != nil {
			return nil, fmt.Errorf("histogram %s: %w", def.Name, err)
		}
		count, err := meter.Int64ObservableGauge(def.Name+"_count",
			metric.WithDescription(def.Help+" Total samples."))
		if err != nil {
			return nil, fmt.Errorf("histogram %s: %w", def.Name, err)
		}
		e.histograms = append(e.histograms, histogramInstrument{id: def.ID, buckets: buckets, count: count})
		observables = append(observables, buckets, count)
	}

	dropped, err := meter.Int64ObservableCounter(internaldefs.AuditDroppedName,
		metric.WithDescription(internaldefs.AuditDroppedHelp))
	if err != nil {
		return nil, fmt.Errorf("counter %s: %w", internaldefs.AuditDroppedName, err)
	}
	e.dropped = dropped
	observables = append(observables, dropped)

	reg, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.reg = reg
	return e, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	o.ObserveInt64(e.dropped, int64(e.source.AuditDropped()))

	snap := e.source.MetricsSnapshot()
	// A disabled engine returns empty maps; report nothing rather than zeros.
	if len(snap.Counters) == 0 {
		return nil
	}
	for _, c := range e.counters {
		o.ObserveInt64(c.ob, int64(snap.Counters[c.id]))
	}
	for _, h := range e.histograms {
		raw, ok := snap.Histograms[h.id]
		if !ok {
			continue
		}
		cum := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		for i, opt := range leOptions {
			o.ObserveInt64(h.buckets, int64(cum[i]), opt)
		}
		o.ObserveInt64(h.count, int64(cum[len(cum)-1]))
	}
	return nil
}

// Close unregisters the callback. Instruments stay registered with the
// meter but stop reporting.
func (e *Exporter) Close() error {
	if e == nil || e.reg == nil {
		return nil
	}
	return e.reg.Unregister()
}
