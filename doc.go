// Package tenantauth is a multi-tenant identity and session core: password
// login, short-lived HS256 access tokens, rotating refresh tokens with reuse
// detection, and tenant-scoped Postgres transactions.
//
// Engine methods are safe for concurrent use after [Builder.Build]. Methods
// that write to Postgres take the request's [tenantdb.Tx]; the caller owns
// its commit or rollback, normally through the middleware package.
//
// # Architecture boundaries
//
// tenantauth is the public surface: [Engine], [Builder], [Config], [Error]
// and the metrics types. Token, refresh, password, transaction and cache
// mechanics live in their own packages; SQL for users, sessions and grants
// lives under internal/.
//
// # What this package must NOT do
//
//   - Return raw database or Redis error text to clients. Every failure is an [*Error].
//   - Read the tenant from anywhere but the bound transaction.
//   - Import the middleware package (no import cycles).
package tenantauth
