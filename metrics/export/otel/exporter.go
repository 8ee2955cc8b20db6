package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/tenantauth"
	"github.com/MrEthical07/tenantauth/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("otel: nil meter")
	ErrNilSource = errors.New("otel: nil source")
)

// Source is what the exporter observes. *tenantauth.Engine satisfies it.
type Source interface {
	MetricsSnapshot() tenantauth.MetricsSnapshot
	AuditStats() tenantauth.AuditStats
	TransactionsInFlight() int64
}

// sample is the state read once per collection and shared by every
// observation.
type sample struct {
	snapshot tenantauth.MetricsSnapshot
	audit    tenantauth.AuditStats
	inFlight int64
}

type observeFunc func(metric.Observer, *sample)

// Exporter publishes engine state through observable instruments. Every
// instrument is read from one callback so a collection sees a consistent
// snapshot.
type Exporter struct {
	source       Source
	observers    []observeFunc
	registration metric.Registration
}

// NewExporter registers the engine's instruments on meter.
func NewExporter(meter metric.Meter, source Source) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{source: source}
	var instruments []metric.Observable

	for _, def := range internaldefs.CounterDefs {
		c, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("otel: counter %s: %w", def.Name, err)
		}
		id := def.ID
		e.observers = append(e.observers, func(o metric.Observer, s *sample) {
			o.ObserveInt64(c, int64(s.snapshot.Counters[id]))
		})
		instruments = append(instruments, c)
	}

	for _, def := range internaldefs.HistogramDefs {
		buckets, err := meter.Int64ObservableGauge(def.Name+"_bucket",
			metric.WithDescription(def.Help+" Cumulative count per upper bound."))
		if err != nil {
			return nil, fmt.Errorf("otel: histogram %s: %w", def.Name, err)
		}
		count, err := meter.Int64ObservableGauge(def.Name+"_count",
			metric.WithDescription(def.Help+" Total samples."))
		if err != nil {
			return nil, fmt.Errorf("otel: histogram %s: %w", def.Name, err)
		}
		id := def.ID
		bounds := make([]metric.ObserveOption, len(internaldefs.HistogramBoundLabels))
		for i, le := range internaldefs.HistogramBoundLabels {
			bounds[i] = metric.WithAttributes(attribute.String("le", le))
		}
		e.observers = append(e.observers, func(o metric.Observer, s *sample) {
			cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(s.snapshot.Histograms[id]))
			for i, opt := range bounds {
				o.ObserveInt64(buckets, int64(cumulative[i]), opt)
			}
			o.ObserveInt64(count, int64(cumulative[len(cumulative)-1]))
		})
		instruments = append(instruments, buckets, count)
	}

	dropped, err := meter.Int64ObservableCounter(internaldefs.AuditDroppedName,
		metric.WithDescription("Audit events lost to backpressure or shutdown."))
	if err != nil {
		return nil, fmt.Errorf("otel: audit dropped: %w", err)
	}
	delivered, err := meter.Int64ObservableCounter(internaldefs.AuditDeliveredName,
		metric.WithDescription("Audit events handed to the sink."))
	if err != nil {
		return nil, fmt.Errorf("otel: audit delivered: %w", err)
	}
	panics, err := meter.Int64ObservableCounter(internaldefs.AuditSinkPanicsName,
		metric.WithDescription("Audit sink calls that panicked."))
	if err != nil {
		return nil, fmt.Errorf("otel: audit sink panics: %w", err)
	}
	inFlight, err := meter.Int64ObservableUpDownCounter(internaldefs.TxInFlightName,
		metric.WithDescription("Tenant-bound request transactions holding a pooled connection."))
	if err != nil {
		return nil, fmt.Errorf("otel: transactions in flight: %w", err)
	}
	e.observers = append(e.observers, func(o metric.Observer, s *sample) {
		o.ObserveInt64(dropped, int64(s.audit.Dropped))
		o.ObserveInt64(delivered, int64(s.audit.Delivered))
		o.ObserveInt64(panics, int64(s.audit.SinkPanics))
		o.ObserveInt64(inFlight, s.inFlight)
	})
	instruments = append(instruments, dropped, delivered, panics, inFlight)

	reg, err := meter.RegisterCallback(e.observe, instruments...)
	if err != nil {
		return nil, fmt.Errorf("otel: register callback: %w", err)
	}
	e.registration = reg
	return e, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	s := &sample{
		snapshot: e.source.MetricsSnapshot(),
		audit:    e.source.AuditStats(),
		inFlight: e.source.TransactionsInFlight(),
	}
	for _, fn := range e.observers {
		fn(o, s)
	}
	return nil
}

// Close unregisters the callback. The meter provider stays usable.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
