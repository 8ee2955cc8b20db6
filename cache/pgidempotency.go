package cache

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/MrEthical07/tenantauth/tenantdb"
)

// PGIdempotencyStore is the Postgres DurableStore. It runs on the request's
// tenant-bound transaction.
type PGIdempotencyStore struct {
	q tenantdb.Querier
}

// NewPGIdempotencyStore returns a DurableStore over q.
func NewPGIdempotencyStore(q tenantdb.Querier) *PGIdempotencyStore {
	return &PGIdempotencyStore{q: q}
}

var _ DurableStore = (*PGIdempotencyStore)(nil)

func (s *PGIdempotencyStore) Get(ctx context.Context, k IdemKey, now time.Time) (*Record, error) {
	var rec Record
	err := s.q.QueryRowContext(ctx, `
		select status, content_type, body, request_hash, expires_at
		from idempotency_records
		where scope_key = $1 and endpoint_hash = $2 and key_hash = $3 and expires_at > $4
	`, k.Scope.Key(), k.EndpointHash(), k.KeyHash(), now).Scan(&rec.Status, &rec.ContentType, &rec.Body, &rec.RequestHash, &rec.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *PGIdempotencyStore) Put(ctx context.Context, k IdemKey, rec Record) error {
	_, err := s.q.ExecContext(ctx, `
		insert into idempotency_records(scope_key, endpoint_hash, key_hash, status, content_type, body, request_hash, expires_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		on conflict (scope_key, endpoint_hash, key_hash) do update
		set status = excluded.status,
			content_type = excluded.content_type,
			body = excluded.body,
			request_hash = excluded.request_hash,
			expires_at = greatest(idempotency_records.expires_at, excluded.expires_at)
	`, k.Scope.Key(), k.EndpointHash(), k.KeyHash(), rec.Status, rec.ContentType, rec.Body, rec.RequestHash, rec.ExpiresAt)
	return err
}

// Purge deletes expired records and returns how many were removed.
func (s *PGIdempotencyStore) Purge(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.q.ExecContext(ctx, `delete from idempotency_records where expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
