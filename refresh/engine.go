package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/tenantauth/scope"
	"github.com/google/uuid"
)

var (
	// ErrRefreshFailed covers unknown, expired, revoked and lost-race tokens.
	ErrRefreshFailed = errors.New("refresh: failed")
	// ErrReuseDetected means a spent token was presented and its family revoked.
	ErrReuseDetected = errors.New("refresh: reuse detected")
)

// FamilyLimiter throttles rotation attempts per family.
type FamilyLimiter interface {
	CheckRefresh(ctx context.Context, tenant scope.Scope, familyID string) error
}

// Config tunes an Engine.
type Config struct {
	TTL     time.Duration
	Limiter FamilyLimiter
	Now     func() time.Time
}

// Engine issues and rotates refresh tokens. It holds no per-request state.
type Engine struct {
	ttl     time.Duration
	limiter FamilyLimiter
	now     func() time.Time
}

// NewEngine validates cfg and returns an Engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.TTL <= 0 {
		return nil, errors.New("refresh: ttl must be > 0")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{ttl: cfg.TTL, limiter: cfg.Limiter, now: cfg.Now}, nil
}

// TTL returns the lifetime given to each new token.
func (e *Engine) TTL() time.Duration { return e.ttl }

// IssueRequest names the owner of a new token. FamilyID is the session id.
type IssueRequest struct {
	UserID   string
	Tenant   scope.Scope
	FamilyID string
}

// Issued is a token handed to the client plus its persisted row.
type Issued struct {
	Token  string
	Record Record
}

// Issue creates a token in a (possibly new) family.
func (e *Engine) Issue(ctx context.Context, store Store, req IssueRequest) (*Issued, error) {
	if req.UserID == "" {
		return nil, errors.New("refresh: user id is required")
	}
	if err := uuid.Validate(req.FamilyID); err != nil {
		return nil, fmt.Errorf("refresh: family id: %w", err)
	}
	return e.issue(ctx, store, req, e.now().UTC())
}

func (e *Engine) issue(ctx context.Context, store Store, req IssueRequest, now time.Time) (*Issued, error) {
	token, hash, err := newToken()
	if err != nil {
		return nil, err
	}
	rec := Record{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Tenant:    req.Tenant,
		FamilyID:  req.FamilyID,
		Hash:      hash,
		ExpiresAt: now.Add(e.ttl),
		CreatedAt: now,
	}
	if err := store.Insert(ctx, rec); err != nil {
		return nil, err
	}
	return &Issued{Token: token, Record: rec}, nil
}

// Rotation is the outcome of a successful Rotate.
type Rotation struct {
	Previous Record
	Issued
}

// Rotate spends presented and returns its successor. tenant is the scope the
// request is bound to; a token from another scope is reported as unknown.
//
// Store errors other than ErrNotFound are returned wrapped so callers can
// tell backend failure from a rejected token.
func (e *Engine) Rotate(ctx context.Context, store Store, tenant scope.Scope, presented string) (*Rotation, error) {
	hash, err := HashToken(presented)
	if err != nil {
		return nil, ErrRefreshFailed
	}

	rec, err := store.FindByHash(ctx, hash)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrRefreshFailed
	}
	if err != nil {
		return nil, fmt.Errorf("refresh: lookup: %w", err)
	}
	if !rec.Tenant.Equal(tenant) {
		return nil, ErrRefreshFailed
	}

	// reuse is theft evidence and revokes the family even when throttled
	now := e.now().UTC()
	if rec.Spent() {
		if _, err := store.RevokeFamily(ctx, rec.FamilyID, now); err != nil {
			return nil, fmt.Errorf("refresh: revoke family: %w", err)
		}
		return &Rotation{Previous: *rec}, ErrReuseDetected
	}

	if e.limiter != nil {
		if err := e.limiter.CheckRefresh(ctx, tenant, rec.FamilyID); err != nil {
			return nil, err
		}
	}

	if !rec.Usable(now) {
		return nil, ErrRefreshFailed
	}

	next, err := e.issue(ctx, store, IssueRequest{UserID: rec.UserID, Tenant: rec.Tenant, FamilyID: rec.FamilyID}, now)
	if err != nil {
		return nil, fmt.Errorf("refresh: insert successor: %w", err)
	}

	won, err := store.MarkReplaced(ctx, rec.ID, next.Record.ID, now)
	if err != nil {
		return nil, fmt.Errorf("refresh: mark replaced: %w", err)
	}
	if !won {
		if err := store.Delete(ctx, next.Record.ID); err != nil {
			return nil, fmt.Errorf("refresh: discard successor: %w", err)
		}
		return nil, ErrRefreshFailed
	}

	rec.ReplacedBy = next.Record.ID
	rec.RevokedAt = now
	return &Rotation{Previous: *rec, Issued: *next}, nil
}

// RevokeFamily revokes every live token in a family.
func (e *Engine) RevokeFamily(ctx context.Context, store Store, familyID string) error {
	_, err := store.RevokeFamily(ctx, familyID, e.now().UTC())
	return err
}
