package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/MrEthical07/tenantauth/scope"
)

// digest returns a 32-char hex prefix of the SHA-256 of parts joined by NUL.
func digest(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:16])
}

// RateKey names a fixed-window counter for subject on route.
func RateKey(s scope.Scope, route, subject string) string {
	return "rl:" + s.Key() + ":" + route + ":" + digest(subject)
}

// LockKey names a short lock on resource within a named lock scope.
func LockKey(s scope.Scope, lockScope, resource string) string {
	return "lock:" + s.Key() + ":" + lockScope + ":" + digest(resource)
}

// BlacklistKey names the tombstone of a revoked access token.
func BlacklistKey(s scope.Scope, jti string) string {
	return "bl:" + s.Key() + ":" + jti
}

// IdemKey identifies one idempotent request within a tenant.
type IdemKey struct {
	Scope    scope.Scope
	Endpoint string
	Key      string
}

// EndpointHash is the hashed endpoint segment.
func (k IdemKey) EndpointHash() string { return digest(k.Endpoint) }

// KeyHash is the hashed client key segment.
func (k IdemKey) KeyHash() string { return digest(k.Key) }

// Redis returns the fast-path cache key.
func (k IdemKey) Redis() string {
	return "idem:" + k.Scope.Key() + ":" + k.EndpointHash() + ":" + k.KeyHash()
}
