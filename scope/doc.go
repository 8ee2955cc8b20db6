// Package scope models the tenant binding of a request, a token, or a
// database transaction.
//
// A [Scope] is either Global (no tenant, the global-identity mode) or bound to
// exactly one tenant UUID. Every component that needs a tenant takes a Scope
// instead of a possibly-empty string, so "no tenant" is never confused with
// "tenant id failed to parse".
//
// # What this package must NOT do
//
//   - Accept non-UUID tenant identifiers.
//   - Perform I/O.
package scope
