package scope

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidTenant is returned when a tenant identifier is not UUID-shaped.
var ErrInvalidTenant = errors.New("scope: invalid tenant id")

// GlobalKey is the cache-key segment used for global-identity scopes.
const GlobalKey = "g"

// Scope is either Global or bound to a single tenant. The zero value is Global.
type Scope struct {
	tenant uuid.UUID
	bound  bool
}

// Global returns the scope of a request or token that carries no tenant.
func Global() Scope {
	return Scope{}
}

// Tenant returns a tenant-bound scope.
func Tenant(id uuid.UUID) Scope {
	return Scope{tenant: id, bound: true}
}

// Parse builds a tenant-bound scope from a UUID string.
// The empty string yields Global; anything else that is not a UUID is an error.
func Parse(raw string) (Scope, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Global(), nil
	}
	id, err := ParseTenantID(raw)
	if err != nil {
		return Scope{}, err
	}
	return Tenant(id), nil
}

// ParseTenantID validates a tenant identifier. Only the canonical 36-character
// hyphenated form is accepted; braces, URNs and bare hex are rejected.
func ParseTenantID(raw string) (uuid.UUID, error) {
	if len(raw) != 36 {
		return uuid.Nil, ErrInvalidTenant
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, ErrInvalidTenant
	}
	return id, nil
}

// IsUUID reports whether raw is a canonical, non-nil UUID.
func IsUUID(raw string) bool {
	_, err := ParseTenantID(raw)
	return err == nil
}

// IsGlobal reports whether the scope carries no tenant.
func (s Scope) IsGlobal() bool {
	return !s.bound
}

// TenantID returns the tenant and true for tenant-bound scopes.
func (s Scope) TenantID() (uuid.UUID, bool) {
	return s.tenant, s.bound
}

// String returns the canonical lowercase tenant UUID, or "" for Global.
func (s Scope) String() string {
	if !s.bound {
		return ""
	}
	return s.tenant.String()
}

// Key returns the segment used to namespace cache keys: the tenant UUID or [GlobalKey].
func (s Scope) Key() string {
	if !s.bound {
		return GlobalKey
	}
	return s.tenant.String()
}

// Equal reports whether both scopes are Global or bound to the same tenant.
func (s Scope) Equal(other Scope) bool {
	return s.bound == other.bound && s.tenant == other.tenant
}
