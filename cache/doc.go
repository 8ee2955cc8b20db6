// Package cache holds the shared-cache concurrency primitives: fixed-window
// rate counters, the idempotent-response cache, short owner-guarded locks
// and the access-token revocation blacklist.
//
// Every key is namespaced by tenant scope (the tenant UUID or "g" for
// global) and user-supplied parts are hashed before they reach Redis:
//
//	rl:{t}:{route}:{subject-hash}
//	idem:{t}:{endpoint-hash}:{key-hash}
//	lock:{t}:{scope}:{resource-hash}
//	bl:{t}:{jti}
//
// Redis failures are wrapped with [ErrUnavailable]. Each caller decides
// whether to fail open (rate counters) or closed (blacklist lookups).
package cache
