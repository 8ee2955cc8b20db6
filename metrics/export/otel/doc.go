// Package otel publishes tenantauth engine state through OpenTelemetry
// observable instruments.
//
// [NewExporter] registers one counter per engine counter, a bucket gauge
// labelled by "le" and a count gauge per histogram, the audit dispatcher
// counters, and the number of request transactions in flight. A single
// callback samples the engine per collection.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
