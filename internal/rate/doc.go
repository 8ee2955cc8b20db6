// Package rate builds the login and refresh throttles on top of
// cache.Counter.
//
// # Window semantics
//
// Fixed-window counters, tenant scoped. Route segments:
//   - login    per (tenant, email)
//   - login-ip per (tenant, client ip)
//   - refresh  per (tenant, family)
//
// Counters fail open: a Redis outage never blocks a login or refresh.
package rate
