// Package prometheus publishes tenantauth engine metrics through
// client_golang.
//
// [Collector] reads [tenantauth.Engine.MetricsSnapshot] on every scrape and
// emits const metrics, so engine counters stay lock-free atomics. Register
// it on any registry, or use [NewHandler] for a private registry.
//
// # What this package must NOT do
//
//   - Register anything in the default Prometheus registry on its own.
//   - Mutate engine state.
package prometheus
