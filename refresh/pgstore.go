package refresh

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/MrEthical07/tenantauth/scope"
	"github.com/MrEthical07/tenantauth/tenantdb"
)

// PGStore is the Postgres Store. It runs on whatever Querier it is given,
// normally the request's tenant-bound transaction.
type PGStore struct {
	q tenantdb.Querier
}

// NewPGStore returns a Store over q.
func NewPGStore(q tenantdb.Querier) *PGStore { return &PGStore{q: q} }

var _ Store = (*PGStore)(nil)

func nullableTenant(s scope.Scope) any {
	if s.IsGlobal() {
		return nil
	}
	return s.String()
}

func (s *PGStore) Insert(ctx context.Context, rec Record) error {
	_, err := s.q.ExecContext(ctx, `
		insert into refresh_tokens(id, user_id, tenant_id, family_id, token_hash, expires_at, created_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ID, rec.UserID, nullableTenant(rec.Tenant), rec.FamilyID, rec.Hash[:], rec.ExpiresAt, rec.CreatedAt)
	return err
}

func (s *PGStore) FindByHash(ctx context.Context, hash Hash) (*Record, error) {
	var (
		rec        Record
		tenant     sql.NullString
		replacedBy sql.NullString
		revokedAt  sql.NullTime
	)
	err := s.q.QueryRowContext(ctx, `
		select id, user_id, tenant_id, family_id, replaced_by, revoked_at, expires_at, created_at
		from refresh_tokens
		where token_hash = $1
	`, hash[:]).Scan(&rec.ID, &rec.UserID, &tenant, &rec.FamilyID, &replacedBy, &revokedAt, &rec.ExpiresAt, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rec.Hash = hash
	rec.ReplacedBy = replacedBy.String
	if revokedAt.Valid {
		rec.RevokedAt = revokedAt.Time
	}
	rec.Tenant = scope.Global()
	if tenant.Valid {
		if rec.Tenant, err = scope.Parse(tenant.String); err != nil {
			return nil, err
		}
	}
	return &rec, nil
}

func (s *PGStore) MarkReplaced(ctx context.Context, id, successorID string, at time.Time) (bool, error) {
	res, err := s.q.ExecContext(ctx, `
		update refresh_tokens
		set replaced_by = $2, revoked_at = $3
		where id = $1 and revoked_at is null
	`, id, successorID, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *PGStore) Delete(ctx context.Context, id string) error {
	_, err := s.q.ExecContext(ctx, `delete from refresh_tokens where id = $1`, id)
	return err
}

func (s *PGStore) RevokeFamily(ctx context.Context, familyID string, at time.Time) (int64, error) {
	res, err := s.q.ExecContext(ctx, `
		update refresh_tokens
		set revoked_at = $2
		where family_id = $1 and revoked_at is null
	`, familyID, at)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
