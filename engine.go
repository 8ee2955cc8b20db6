package tenantauth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/MrEthical07/tenantauth/cache"
	"github.com/MrEthical07/tenantauth/internal/audit"
	"github.com/MrEthical07/tenantauth/internal/pgstore"
	"github.com/MrEthical07/tenantauth/internal/rate"
	"github.com/MrEthical07/tenantauth/jwt"
	"github.com/MrEthical07/tenantauth/password"
	"github.com/MrEthical07/tenantauth/refresh"
	"github.com/MrEthical07/tenantauth/scope"
	"github.com/MrEthical07/tenantauth/tenantdb"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Engine composes login, refresh, logout and access-token authentication.
// Operations that touch Postgres run on the caller's tenant-bound Tx; the
// caller commits or rolls it back.
type Engine struct {
	config    Config
	jwt       *jwt.Manager
	refresh   *refresh.Engine
	verifier  *password.Verifier
	txc       *tenantdb.Controller
	counter   *cache.Counter
	limiter   *rate.Limiter
	idem      *cache.Idempotency
	locker    *cache.Locker
	blacklist *cache.Blacklist
	redis     redis.UniversalClient
	audit     *audit.Dispatcher
	metrics   *Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// TokenPair is the result of a login or a refresh.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"`
	SessionID    string    `json:"session_id"`
	UserID       string    `json:"user_id"`
	TenantID     string    `json:"tenant_id,omitempty"`
}

// LoginRequest carries a password login. IP and UserAgent fall back to the
// values attached to the context.
type LoginRequest struct {
	Email     string
	Password  string
	IP        string
	UserAgent string
}

func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

func (e *Engine) JWT() *jwt.Manager                   { return e.jwt }
func (e *Engine) Transactions() *tenantdb.Controller { return e.txc }
func (e *Engine) Idempotency() *cache.Idempotency    { return e.idem }
func (e *Engine) Locker() *cache.Locker              { return e.locker }
func (e *Engine) Counter() *cache.Counter            { return e.counter }
func (e *Engine) Blacklist() *cache.Blacklist        { return e.blacklist }
func (e *Engine) Redis() redis.UniversalClient       { return e.redis }
func (e *Engine) Metrics() *Metrics                  { return e.metrics }
func (e *Engine) Logger() *slog.Logger               { return e.logger }
func (e *Engine) Config() Config                     { return cloneConfig(e.config) }

// MetricsSnapshot returns the current counters for exporters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// HashPassword hashes plain with the configured argon2id parameters.
func (e *Engine) HashPassword(plain string) (string, error) {
	h, err := e.verifier.Hasher().Hash(plain)
	if errors.Is(err, password.ErrPasswordLength) {
		return "", ValidationError("password length out of range")
	}
	return h, err
}

// Login verifies a password and opens a session in the scope tx is bound
// to. Unknown, inactive and unverified users get the same error and cost
// as a wrong password.
func (e *Engine) Login(ctx context.Context, tx *tenantdb.Tx, req LoginRequest) (*TokenPair, error) {
	s := tx.Scope()
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, ValidationError("email and password are required")
	}
	ip := req.IP
	if ip == "" {
		ip = clientIPFromContext(ctx)
	}
	ua := req.UserAgent
	if ua == "" {
		ua = userAgentFromContext(ctx)
	}

	if err := e.limiter.CheckLogin(ctx, s, email, ip); err != nil {
		e.metrics.Inc(MetricLoginRateLimited)
		e.emitAudit(ctx, audit.LoginRateLimited, s, "", "", false, CodeRateLimited)
		return nil, ErrRateLimited
	}

	store := pgstore.New(tx)
	user, err := store.UserByEmail(ctx, s, email)
	if err != nil && !errors.Is(err, pgstore.ErrNotFound) {
		return nil, AsError(err)
	}

	var acct *password.Account
	if user != nil {
		acct = &password.Account{Hash: user.PasswordHash, Active: user.Active, Verified: user.Verified()}
	}
	if !e.verifier.Check(req.Password, acct) {
		return nil, e.loginFailed(ctx, s, email, ip)
	}

	grant, err := store.ResolveGrant(ctx, user.ID, s)
	if errors.Is(err, pgstore.ErrNotFound) {
		return nil, e.loginFailed(ctx, s, email, ip)
	}
	if err != nil {
		return nil, AsError(err)
	}

	e.limiter.ResetLogin(ctx, s, email, ip)
	if e.config.Password.UpgradeOnLogin && e.verifier.Hasher().NeedsRehash(user.PasswordHash) {
		e.upgradeHash(ctx, tx, store, user.ID, req.Password)
	}

	now := e.now().UTC()
	sess := pgstore.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Tenant:    s,
		UserAgent: ua,
		IP:        ip,
		CreatedAt: now,
		ExpiresAt: now.Add(e.refresh.TTL()),
	}
	if err := store.CreateSession(ctx, sess); err != nil {
		return nil, AsError(err)
	}
	issued, err := e.refresh.Issue(ctx, refresh.NewPGStore(tx), refresh.IssueRequest{
		UserID:   user.ID,
		Tenant:   s,
		FamilyID: sess.ID,
	})
	if err != nil {
		return nil, AsError(err)
	}

	pair, err := e.mint(user.ID, s, sess.ID, grant, issued.Token)
	if err != nil {
		return nil, err
	}
	e.metrics.Inc(MetricLoginSuccess)
	e.metrics.Inc(MetricSessionCreated)
	e.emitAudit(ctx, audit.LoginSuccess, s, user.ID, sess.ID, true, "")
	return pair, nil
}

func (e *Engine) loginFailed(ctx context.Context, s scope.Scope, email, ip string) error {
	e.limiter.RecordLoginFailure(ctx, s, email, ip)
	e.metrics.Inc(MetricLoginFailure)
	e.emitAudit(ctx, audit.LoginFailure, s, "", "", false, CodeInvalidCredentials)
	return ErrInvalidCredentials
}

// upgradeHash rewrites an outdated hash. A failed statement would abort the
// whole transaction, so the update runs inside a savepoint and failures only
// get logged.
func (e *Engine) upgradeHash(ctx context.Context, tx *tenantdb.Tx, store *pgstore.Store, userID, plain string) {
	encoded, err := e.verifier.Hasher().Hash(plain)
	if err != nil {
		e.logger.WarnContext(ctx, "tenantauth: password rehash failed", "error", err)
		return
	}
	if _, err := tx.ExecContext(ctx, "savepoint password_upgrade"); err != nil {
		e.logger.WarnContext(ctx, "tenantauth: password rehash skipped", "error", err)
		return
	}
	if err := store.UpdatePasswordHash(ctx, userID, encoded, e.now().UTC()); err != nil {
		e.logger.WarnContext(ctx, "tenantauth: password rehash failed", "error", err)
		_, _ = tx.ExecContext(ctx, "rollback to savepoint password_upgrade")
		return
	}
	_, _ = tx.ExecContext(ctx, "release savepoint password_upgrade")
}

// Refresh rotates a refresh token and mints a new pair for the same
// session. Role and plan are read again so grant changes apply on the next
// rotation.
//
// ErrRefreshReuseDetected must be answered after committing tx: the family
// and session revocation are part of it.
func (e *Engine) Refresh(ctx context.Context, tx *tenantdb.Tx, token string) (*TokenPair, error) {
	s := tx.Scope()
	if strings.TrimSpace(token) == "" {
		return nil, ValidationError("refresh token is required")
	}

	rot, err := e.refresh.Rotate(ctx, refresh.NewPGStore(tx), s, token)
	switch {
	case errors.Is(err, refresh.ErrReuseDetected):
		prev := rot.Previous
		store := pgstore.New(tx)
		if _, rerr := store.RevokeSession(ctx, prev.FamilyID, prev.UserID, e.now().UTC()); rerr != nil {
			return nil, AsError(rerr)
		}
		e.metrics.Inc(MetricRefreshReuseDetected)
		e.emitAudit(ctx, audit.RefreshReuseDetected, s, prev.UserID, prev.FamilyID, false, CodeRefreshReuseDetected)
		e.logger.WarnContext(ctx, "tenantauth: refresh token reuse detected",
			"session_id", prev.FamilyID, "tenant_id", s.String())
		return nil, ErrRefreshReuseDetected
	case errors.Is(err, rate.ErrRateLimited):
		e.metrics.Inc(MetricRefreshRateLimited)
		return nil, ErrRateLimited
	case errors.Is(err, refresh.ErrRefreshFailed):
		return nil, e.refreshFailed(ctx, s, "")
	case err != nil:
		return nil, AsError(err)
	}

	store := pgstore.New(tx)
	user, err := store.UserByID(ctx, rot.Record.UserID)
	if errors.Is(err, pgstore.ErrNotFound) {
		return nil, e.refreshFailed(ctx, s, rot.Record.UserID)
	}
	if err != nil {
		return nil, AsError(err)
	}
	if !user.Active || !user.Verified() {
		return nil, e.refreshFailed(ctx, s, user.ID)
	}
	grant, err := store.ResolveGrant(ctx, user.ID, s)
	if errors.Is(err, pgstore.ErrNotFound) {
		return nil, e.refreshFailed(ctx, s, user.ID)
	}
	if err != nil {
		return nil, AsError(err)
	}
	if err := store.TouchSession(ctx, rot.Record.FamilyID, rot.Record.ExpiresAt); err != nil {
		return nil, AsError(err)
	}

	pair, err := e.mint(user.ID, s, rot.Record.FamilyID, grant, rot.Token)
	if err != nil {
		return nil, err
	}
	e.metrics.Inc(MetricRefreshSuccess)
	e.emitAudit(ctx, audit.RefreshSuccess, s, user.ID, rot.Record.FamilyID, true, "")
	return pair, nil
}

func (e *Engine) refreshFailed(ctx context.Context, s scope.Scope, userID string) error {
	e.metrics.Inc(MetricRefreshFailure)
	e.emitAudit(ctx, audit.RefreshFailure, s, userID, "", false, CodeRefreshFailed)
	return ErrRefreshFailed
}

func (e *Engine) mint(userID string, s scope.Scope, sessionID string, g pgstore.Grant, refreshToken string) (*TokenPair, error) {
	access, claims, err := e.jwt.Issue(jwt.IssueInput{
		Subject:   userID,
		Tenant:    s,
		SessionID: sessionID,
		Role:      g.Role,
		Roles:     g.Roles,
		Plan:      g.Plan,
	})
	if err != nil {
		return nil, ErrInternal.with(err)
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(claims.ExpiresAt.Sub(claims.IssuedAt) / time.Second),
		ExpiresAt:    claims.ExpiresAt,
		SessionID:    sessionID,
		UserID:       userID,
		TenantID:     s.String(),
	}, nil
}

// Logout ends the session named by claims: the session row and its refresh
// family are revoked in tx and the access token is blacklisted for the rest
// of its lifetime.
func (e *Engine) Logout(ctx context.Context, tx *tenantdb.Tx, claims *jwt.Claims) error {
	if claims == nil {
		return ErrInvalidToken
	}
	if !tx.Scope().Equal(claims.Tenant) {
		return ErrTenantMismatch
	}

	if claims.SessionID != "" {
		store := pgstore.New(tx)
		if _, err := store.RevokeSession(ctx, claims.SessionID, claims.Subject, e.now().UTC()); err != nil {
			return AsError(err)
		}
		if err := e.refresh.RevokeFamily(ctx, refresh.NewPGStore(tx), claims.SessionID); err != nil {
			return AsError(err)
		}
	}
	if err := e.blacklist.Revoke(ctx, claims.Tenant, claims.JTI, claims.ExpiresAt); err != nil {
		e.logger.ErrorContext(ctx, "tenantauth: blacklist write failed", "error", err)
		return ErrInternal.with(err)
	}

	e.metrics.Inc(MetricLogout)
	e.emitAudit(ctx, audit.Logout, claims.Tenant, claims.Subject, claims.SessionID, true, "")
	return nil
}

// Authenticate verifies an access token and checks the blacklist. A
// blacklist that cannot be read fails the request with INTERNAL.
func (e *Engine) Authenticate(ctx context.Context, token string) (*jwt.Claims, error) {
	start := time.Now()
	defer func() { e.metrics.Observe(MetricAuthenticateLatency, time.Since(start)) }()

	claims, err := e.jwt.Verify(token)
	if err != nil {
		e.metrics.Inc(MetricAuthenticateFailure)
		return nil, ErrInvalidToken
	}
	revoked, err := e.blacklist.IsRevoked(ctx, claims.Tenant, claims.JTI)
	if err != nil {
		e.logger.ErrorContext(ctx, "tenantauth: blacklist lookup failed", "error", err)
		return nil, ErrInternal.with(err)
	}
	if revoked {
		e.metrics.Inc(MetricTokenRevokedRejected)
		return nil, ErrTokenRevoked
	}
	return claims, nil
}
