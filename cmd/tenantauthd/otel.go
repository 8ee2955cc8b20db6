package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/tenantauth"
	otelexport "github.com/MrEthical07/tenantauth/metrics/export/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

const meterName = "github.com/MrEthical07/tenantauth"

// logExporter writes each collection as one structured log record, so the
// engine metrics reach deployments that only ship logs.
type logExporter struct {
	logger *slog.Logger
}

var _ sdkmetric.Exporter = logExporter{}

func (logExporter) Temporality(k sdkmetric.InstrumentKind) metricdata.Temporality {
	return sdkmetric.DefaultTemporalitySelector(k)
}

func (logExporter) Aggregation(k sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(k)
}

func (e logExporter) Export(ctx context.Context, rm *metricdata.ResourceMetrics) error {
	var attrs []slog.Attr
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					attrs = append(attrs, slog.Int64(pointName(m.Name, dp.Attributes), dp.Value))
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					attrs = append(attrs, slog.Int64(pointName(m.Name, dp.Attributes), dp.Value))
				}
			}
		}
	}
	if len(attrs) == 0 {
		return nil
	}
	e.logger.LogAttrs(ctx, slog.LevelInfo, "tenantauthd: metrics", attrs...)
	return nil
}

func (logExporter) ForceFlush(context.Context) error { return nil }
func (logExporter) Shutdown(context.Context) error   { return nil }

func pointName(name string, attrs attribute.Set) string {
	if le, ok := attrs.Value("le"); ok {
		return name + "{le=" + le.AsString() + "}"
	}
	return name
}

// startOTel observes engine through an SDK meter provider with a periodic
// reader. The returned func exports a final collection and shuts down.
func startOTel(engine *tenantauth.Engine, logger *slog.Logger, interval time.Duration) (func(context.Context) error, error) {
	reader := sdkmetric.NewPeriodicReader(logExporter{logger: logger}, sdkmetric.WithInterval(interval))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	exp, err := otelexport.NewExporter(provider.Meter(meterName), engine)
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, err
	}
	return func(ctx context.Context) error {
		return errors.Join(provider.Shutdown(ctx), exp.Close())
	}, nil
}
