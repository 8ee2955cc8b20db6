// Package tenantdb owns the per-request database context.
//
// A [Controller] checks one connection out of the shared pool, opens a
// transaction on it and binds the request's tenant and user with
// transaction-local settings (app.tenant_id, app.user_id, statement_timeout)
// before switching to the restricted role with SET LOCAL ROLE. Row-level
// security policies in schema.sql read those settings, so every query run
// through the returned [Tx] only sees rows of the bound tenant.
//
// A [Tx] is finalised exactly once. Commit, Rollback and Finalize race
// safely; the first terminal call wins and the connection goes back to
// the pool right after it, whatever the outcome.
//
// # What this package must NOT do
//
//   - Decide which tenant a request is bound to. Callers pass a verified scope.
//   - Surface driver error text to clients. Use [Classify].
package tenantdb
