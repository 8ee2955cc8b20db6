// Package pgstore reads and writes users, credentials, memberships and
// sessions. Every method runs on the caller's tenant-bound transaction.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/MrEthical07/tenantauth/scope"
	"github.com/MrEthical07/tenantauth/tenantdb"
)

// ErrNotFound is returned when no row matches.
var ErrNotFound = errors.New("pgstore: not found")

// Store is a thin query layer over a Querier.
type Store struct {
	q tenantdb.Querier
}

// New returns a Store over q.
func New(q tenantdb.Querier) *Store { return &Store{q: q} }

func nullableTenant(s scope.Scope) any {
	if s.IsGlobal() {
		return nil
	}
	return s.String()
}

func scanScope(ns sql.NullString) (scope.Scope, error) {
	if !ns.Valid {
		return scope.Global(), nil
	}
	return scope.Parse(ns.String)
}

// User is an account together with its current credential.
type User struct {
	ID           string
	Tenant       scope.Scope
	Email        string
	Active       bool
	VerifiedAt   time.Time
	PasswordHash string
}

// Verified reports whether the email was confirmed.
func (u *User) Verified() bool { return !u.VerifiedAt.IsZero() }

const userColumns = `u.id, u.tenant_id, u.email, u.active, u.verified_at, coalesce(c.password_hash, '')`

func (s *Store) scanUser(row *sql.Row) (*User, error) {
	var (
		u        User
		tenant   sql.NullString
		verified sql.NullTime
	)
	err := row.Scan(&u.ID, &tenant, &u.Email, &u.Active, &verified, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if u.Tenant, err = scanScope(tenant); err != nil {
		return nil, err
	}
	if verified.Valid {
		u.VerifiedAt = verified.Time
	}
	return &u, nil
}

// UserByEmail finds the account that may sign in to t as email. In a tenant
// that is the tenant's own account or, failing that, a global identity
// holding a membership in t. In the global scope only global identities
// match.
func (s *Store) UserByEmail(ctx context.Context, t scope.Scope, email string) (*User, error) {
	if t.IsGlobal() {
		return s.scanUser(s.q.QueryRowContext(ctx, `
			select `+userColumns+`
			from users u
			left join credentials c on c.user_id = u.id
			where lower(u.email) = lower($1) and u.tenant_id is null
		`, email))
	}
	return s.scanUser(s.q.QueryRowContext(ctx, `
		select `+userColumns+`
		from users u
		left join credentials c on c.user_id = u.id
		where lower(u.email) = lower($1)
			and (u.tenant_id = $2
				or (u.tenant_id is null and exists (
					select 1 from memberships m where m.user_id = u.id and m.tenant_id = $2)))
		order by u.tenant_id nulls last
		limit 1
	`, email, t.String()))
}

// UserByID loads an account by id.
func (s *Store) UserByID(ctx context.Context, id string) (*User, error) {
	return s.scanUser(s.q.QueryRowContext(ctx, `
		select `+userColumns+`
		from users u
		left join credentials c on c.user_id = u.id
		where u.id = $1
	`, id))
}

// UpdatePasswordHash replaces the stored credential wholesale.
func (s *Store) UpdatePasswordHash(ctx context.Context, userID, hash string, at time.Time) error {
	res, err := s.q.ExecContext(ctx, `
		update credentials set password_hash = $2, changed_at = $3 where user_id = $1
	`, userID, hash, at)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Grant is the role and plan a user holds in a tenant.
type Grant struct {
	Role  string
	Roles []string
	Plan  string
}

// ResolveGrant reads the user's membership in t. Global scopes carry no
// grant. A tenant without a membership row is ErrNotFound.
func (s *Store) ResolveGrant(ctx context.Context, userID string, t scope.Scope) (Grant, error) {
	if t.IsGlobal() {
		return Grant{}, nil
	}
	var g Grant
	err := s.q.QueryRowContext(ctx, `
		select m.role, t.plan
		from memberships m
		join tenants t on t.id = m.tenant_id
		where m.user_id = $1 and m.tenant_id = $2
	`, userID, t.String()).Scan(&g.Role, &g.Plan)
	if errors.Is(err, sql.ErrNoRows) {
		return Grant{}, ErrNotFound
	}
	if err != nil {
		return Grant{}, err
	}
	g.Roles = []string{g.Role}
	return g, nil
}

// Session is one login. Its id doubles as the refresh family id.
type Session struct {
	ID        string
	UserID    string
	Tenant    scope.Scope
	UserAgent string
	IP        string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// CreateSession inserts s.
func (s *Store) CreateSession(ctx context.Context, sess Session) error {
	_, err := s.q.ExecContext(ctx, `
		insert into sessions(id, user_id, tenant_id, user_agent, ip, created_at, expires_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, sess.ID, sess.UserID, nullableTenant(sess.Tenant), sess.UserAgent, sess.IP, sess.CreatedAt, sess.ExpiresAt)
	return err
}

// RevokeSession marks a live session revoked. It reports whether the
// session was owned by userID and still live.
func (s *Store) RevokeSession(ctx context.Context, id, userID string, at time.Time) (bool, error) {
	res, err := s.q.ExecContext(ctx, `
		update sessions set revoked_at = $3
		where id = $1 and user_id = $2 and revoked_at is null
	`, id, userID, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// TouchSession extends a live session's expiry after a rotation.
func (s *Store) TouchSession(ctx context.Context, id string, expiresAt time.Time) error {
	_, err := s.q.ExecContext(ctx, `
		update sessions set expires_at = greatest(expires_at, $2)
		where id = $1 and revoked_at is null
	`, id, expiresAt)
	return err
}
