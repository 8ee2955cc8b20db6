// Package middleware adapts the tenantauth Engine to net/http.
//
// # Guards
//
// A [Pipeline] builds one guard per route from a [Capability] set
// (RequireTenant, RequireAuth, RequireDB). The checks always run in the same
// order: tenant header intake, bearer token verification, tenant/token
// match, transaction acquisition. Handlers return an error instead of
// writing failure responses themselves; the pipeline commits or rolls back
// the request transaction and only then writes the buffered response.
//
// # Supporting middleware
//
//   - [Pipeline.Idempotent] replays stored responses for repeated Idempotency-Key requests.
//   - [Pipeline.RateLimit] counts requests per client in Redis and fails open.
//   - [LocalThrottle] is an in-process token bucket per client IP.
//   - [RequestID] and [Logging] tag and log every request.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine.Authenticate).
//   - Take the tenant of an authenticated request from the header.
//   - Write database error text to clients.
package middleware
