package jwt

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/tenantauth/scope"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is the single verification failure reported to callers.
var ErrInvalidToken = errors.New("invalid token")

const (
	minKeyBytes = 32
	maxLeeway   = 2 * time.Minute
)

// Key is one HS256 secret with an optional identifier for the token header.
type Key struct {
	ID     string
	Secret []byte
}

// Config defines the signing keys and claim expectations for a [Manager].
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	AccessTTL time.Duration
	Active    Key
	Previous  Key
	Issuer    string
	Audience  string
	Leeway    time.Duration
	Now       func() time.Time
}

// Manager signs access tokens with the active key and verifies them against the
// active key, then the previous key during a rotation grace period.
type Manager struct {
	config Config
}

// NewManager validates cfg and returns a ready Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > maxLeeway {
		return nil, errors.New("invalid leeway configuration")
	}
	if len(cfg.Active.Secret) < minKeyBytes {
		return nil, errors.New("hs256 active key must be at least 32 bytes")
	}
	if len(cfg.Previous.Secret) > 0 && len(cfg.Previous.Secret) < minKeyBytes {
		return nil, errors.New("hs256 previous key must be at least 32 bytes")
	}
	cfg.Active.ID = strings.TrimSpace(cfg.Active.ID)
	cfg.Previous.ID = strings.TrimSpace(cfg.Previous.ID)
	if cfg.Active.ID != "" && cfg.Active.ID == cfg.Previous.ID {
		return nil, errors.New("active and previous key ids must differ")
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, errors.New("issuer is required")
	}
	if strings.TrimSpace(cfg.Audience) == "" {
		return nil, errors.New("audience is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Manager{config: cfg}, nil
}

// AccessTTL returns the default access-token lifetime.
func (m *Manager) AccessTTL() time.Duration {
	return m.config.AccessTTL
}

// Issue signs a new access token and returns it with its verified-form claims.
func (m *Manager) Issue(in IssueInput) (string, *Claims, error) {
	subject := strings.TrimSpace(in.Subject)
	if subject == "" {
		return "", nil, errors.New("subject is required")
	}
	sessionID := strings.ToLower(strings.TrimSpace(in.SessionID))
	if sessionID != "" && !scope.IsUUID(sessionID) {
		return "", nil, errors.New("session id must be a UUID")
	}
	ttl := in.TTL
	if ttl <= 0 {
		ttl = m.config.AccessTTL
	}
	version := in.Version
	if version == 0 {
		version = ClaimVersion
	}
	if version < 1 {
		return "", nil, errors.New("claim version must be >= 1")
	}

	now := m.config.Now().Truncate(time.Second)
	exp := now.Add(ttl)
	jti := uuid.NewString()

	wire := AccessClaims{
		Type:    TokenTypeAccess,
		SID:     sessionID,
		Version: &version,
		Role:    in.Role,
		Roles:   in.Roles,
		Plan:    in.Plan,
		Scope:   in.Scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        jti,
			Issuer:    m.config.Issuer,
			Audience:  jwt.ClaimStrings{m.config.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	if !in.Tenant.IsGlobal() {
		wire.TenantID = in.Tenant.String()
		wire.TID = wire.TenantID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, wire)
	if m.config.Active.ID != "" {
		token.Header["kid"] = m.config.Active.ID
	}
	signed, err := token.SignedString(m.config.Active.Secret)
	if err != nil {
		return "", nil, err
	}

	return signed, &Claims{
		Subject:   subject,
		JTI:       jti,
		Tenant:    in.Tenant,
		SessionID: sessionID,
		Version:   version,
		Role:      in.Role,
		Roles:     in.Roles,
		Plan:      in.Plan,
		Scope:     in.Scope,
		KeyID:     m.config.Active.ID,
		IssuedAt:  now,
		ExpiresAt: exp,
	}, nil
}

// Verify checks the signature and mandatory claims of tokenStr. The previous
// key is tried only when verification with the active key fails.
func (m *Manager) Verify(tokenStr string) (*Claims, error) {
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return nil, ErrInvalidToken
	}

	wire, kid, err := m.parseWith(tokenStr, m.config.Active)
	if err != nil && len(m.config.Previous.Secret) > 0 {
		wire, kid, err = m.parseWith(tokenStr, m.config.Previous)
	}
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, err := m.checkClaims(wire)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims.KeyID = kid
	return claims, nil
}

func (m *Manager) parseWith(tokenStr string, key Key) (*AccessClaims, string, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithAudience(m.config.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.config.Now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}

	var kid string
	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &AccessClaims{}, func(t *jwt.Token) (interface{}, error) {
		kid, _ = t.Header["kid"].(string)
		// A token naming a different key id is never checked against this key.
		if kid != "" && key.ID != "" && kid != key.ID {
			return nil, errors.New("unknown kid")
		}
		return key.Secret, nil
	})
	if err != nil {
		return nil, "", err
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, "", jwt.ErrTokenInvalidClaims
	}
	return claims, kid, nil
}

func (m *Manager) checkClaims(wire *AccessClaims) (*Claims, error) {
	if wire.Type != TokenTypeAccess {
		return nil, errors.New("unexpected token type")
	}
	if strings.TrimSpace(wire.Subject) == "" {
		return nil, errors.New("subject missing")
	}
	if strings.TrimSpace(wire.ID) == "" {
		return nil, errors.New("jti missing")
	}

	tenant := scope.Global()
	rawTenant := wire.TenantID
	if rawTenant == "" {
		rawTenant = wire.TID
	} else if wire.TID != "" && !strings.EqualFold(wire.TID, wire.TenantID) {
		return nil, errors.New("conflicting tenant claims")
	}
	if rawTenant != "" {
		parsed, err := scope.Parse(rawTenant)
		if err != nil {
			return nil, err
		}
		tenant = parsed
	}

	sessionID := wire.SID
	if sessionID != "" {
		if !scope.IsUUID(sessionID) {
			return nil, errors.New("session id must be a UUID")
		}
		sessionID = strings.ToLower(sessionID)
	}

	version := ClaimVersion
	if wire.Version != nil {
		if *wire.Version < 1 {
			return nil, errors.New("claim version must be >= 1")
		}
		version = *wire.Version
	}

	claims := &Claims{
		Subject:   wire.Subject,
		JTI:       wire.ID,
		Tenant:    tenant,
		SessionID: sessionID,
		Version:   version,
		Role:      wire.Role,
		Roles:     wire.Roles,
		Plan:      wire.Plan,
		Scope:     wire.Scope,
	}
	if wire.IssuedAt != nil {
		claims.IssuedAt = wire.IssuedAt.Time
	}
	if wire.ExpiresAt != nil {
		claims.ExpiresAt = wire.ExpiresAt.Time
	}
	return claims, nil
}
