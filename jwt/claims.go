package jwt

import (
	"time"

	"github.com/MrEthical07/tenantauth/scope"
	"github.com/golang-jwt/jwt/v5"
)

// TokenTypeAccess is the mandatory value of the typ claim.
const TokenTypeAccess = "access"

// ClaimVersion is the current claim-schema version stamped into issued tokens.
const ClaimVersion = 1

// AccessClaims is the wire shape of an access token payload.
type AccessClaims struct {
	Type     string   `json:"typ"`
	TenantID string   `json:"tenant_id,omitempty"`
	TID      string   `json:"tid,omitempty"`
	SID      string   `json:"sid,omitempty"`
	Version  *int     `json:"ver,omitempty"`
	Role     string   `json:"role,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	Plan     string   `json:"plan,omitempty"`
	Scope    string   `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// Claims is a fully verified access token. Tenant is Global when the token
// carried no tenant claim.
type Claims struct {
	Subject   string
	JTI       string
	Tenant    scope.Scope
	SessionID string
	Version   int
	Role      string
	Roles     []string
	Plan      string
	Scope     string
	KeyID     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// RemainingLifetime returns how long the token stays valid at now, or zero.
func (c *Claims) RemainingLifetime(now time.Time) time.Duration {
	if c == nil || c.ExpiresAt.IsZero() {
		return 0
	}
	if d := c.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// IssueInput carries everything needed to mint one access token.
type IssueInput struct {
	Subject   string
	Tenant    scope.Scope
	SessionID string
	TTL       time.Duration
	Version   int
	Role      string
	Roles     []string
	Plan      string
	Scope     string
}
