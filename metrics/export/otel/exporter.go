package otel

import (
	"context"

	goMFA "github.com/MrEthical07/goMFA"
	"github.com/MrEthical07/goMFA/metrics/export/internaldefs"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() goMFA.MetricsSnapshot
	NotificationsDropped() uint64
}

// reading reports one instrument from a snapshot.
type reading func(snap goMFA.MetricsSnapshot, dropped uint64, o metric.Observer)

// OTelExporter holds the meter registration.
type OTelExporter struct {
	source       metricsSource
	readings     []reading
	registration metric.Registration
}

// NewOTelExporter exposes the metrics of engine on meter.
func NewOTelExporter(meter metric.Meter, engine *goMFA.Engine) (*OTelExporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewOTelExporterFromSource(meter, engine)
}

func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	switch {
	case meter == nil:
		return nil, ErrNilMeter
	case source == nil:
		return nil, ErrNilSource
	}

	b := &instrumentSet{meter: meter}
	for _, def := range internaldefs.CounterDefs {
		b.counter(def)
	}
	for _, def := range internaldefs.HistogramDefs {
		b.histogram(def)
	}
	b.dropped()
	if b.err != nil {
		return nil, b.err
	}

	exp := &OTelExporter{source: source, readings: b.readings}
	reg, err := meter.RegisterCallback(exp.observe, b.observables...)
	if err != nil {
		return nil, errors.Wrap(err, "register metrics callback")
	}
	exp.registration = reg
	return exp, nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	dropped := e.source.NotificationsDropped()
	for _, r := range e.readings {
		r(snap, dropped, o)
	}
	return nil
}

// Close stops reporting. It is safe on a nil exporter.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}

// instrumentSet creates instruments and keeps the first error.
type instrumentSet struct {
	meter       metric.Meter
	observables []metric.Observable
	readings    []reading
	err         error
}

func (b *instrumentSet) counter(def internaldefs.CounterDef) {
	if b.err != nil {
		return
	}
	c, err := b.meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
	if err != nil {
		b.err = errors.Wrapf(err, "counter %s", def.Name)
		return
	}
	id := def.ID
	b.add(c, func(snap goMFA.MetricsSnapshot, _ uint64, o metric.Observer) {
		o.ObserveInt64(c, int64(snap.Counters[id]))
	})
}

// histogram reports one cumulative gauge per bucket bound and a total.
func (b *instrumentSet) histogram(def internaldefs.HistogramDef) {
	gauges := make([]metric.Int64ObservableGauge, 0, len(internaldefs.HistogramBoundSuffix)+1)
	for _, suffix := range internaldefs.HistogramBoundSuffix {
		gauges = append(gauges, b.gauge(def.Name+"_bucket_le_"+suffix, "Cumulative count of "+def.Name+" samples in bucket."))
	}
	gauges = append(gauges, b.gauge(def.Name+"_count", "Total count of "+def.Name+" samples."))
	if b.err != nil {
		return
	}

	id := def.ID
	b.readings = append(b.readings, func(snap goMFA.MetricsSnapshot, _ uint64, o metric.Observer) {
		cum := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snap.Histograms[id]))
		total := int64(cum[len(cum)-1])
		for i, g := range gauges {
			if i < len(gauges)-1 {
				o.ObserveInt64(g, int64(cum[i]))
				continue
			}
			o.ObserveInt64(g, total)
		}
	})
}

func (b *instrumentSet) gauge(name, help string) metric.Int64ObservableGauge {
	if b.err != nil {
		return nil
	}
	g, err := b.meter.Int64ObservableGauge(name, metric.WithDescription(help))
	if err != nil {
		b.err = errors.Wrapf(err, "gauge %s", name)
		return nil
	}
	b.observables = append(b.observables, g)
	return g
}

func (b *instrumentSet) dropped() {
	if b.err != nil {
		return
	}
	c, err := b.meter.Int64ObservableCounter(
		internaldefs.NotificationsDroppedName,
		metric.WithDescription(internaldefs.NotificationsDroppedHelp),
	)
	if err != nil {
		b.err = errors.Wrap(err, "notifications dropped counter")
		return
	}
	b.add(c, func(_ goMFA.MetricsSnapshot, dropped uint64, o metric.Observer) {
		o.ObserveInt64(c, int64(dropped))
	})
}

func (b *instrumentSet) add(ins metric.Observable, r reading) {
	b.observables = append(b.observables, ins)
	b.readings = append(b.readings, r)
}
