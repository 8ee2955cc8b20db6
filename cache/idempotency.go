package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRetention is how long a stored response is replayable.
const DefaultRetention = 24 * time.Hour

// Record is a stored response. RequestHash fingerprints the request that
// produced it.
type Record struct {
	Status      int       `json:"status"`
	ContentType string    `json:"content_type,omitempty"`
	Body        []byte    `json:"body"`
	RequestHash string    `json:"request_hash"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// DurableStore is the authoritative idempotency store. Get returns nil, nil
// for missing or expired records.
type DurableStore interface {
	Get(ctx context.Context, k IdemKey, now time.Time) (*Record, error)
	Put(ctx context.Context, k IdemKey, rec Record) error
}

// Idempotency caches responses in Redis in front of a DurableStore.
type Idempotency struct {
	rdb       redis.UniversalClient
	retention time.Duration
	opt       options
}

// NewIdempotency returns an Idempotency cache. A zero retention uses
// DefaultRetention.
func NewIdempotency(rdb redis.UniversalClient, retention time.Duration, opts ...Option) *Idempotency {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Idempotency{rdb: rdb, retention: retention, opt: buildOptions(opts)}
}

// Retention returns the replay window.
func (i *Idempotency) Retention() time.Duration { return i.retention }

// Lookup returns the stored response for k, or nil. The fast cache is read
// first; a durable hit is written back to it. durable may be nil.
func (i *Idempotency) Lookup(ctx context.Context, durable DurableStore, k IdemKey) (*Record, error) {
	now := i.opt.now()

	raw, err := i.rdb.Get(ctx, k.Redis()).Bytes()
	switch {
	case err == nil:
		var rec Record
		if jsonErr := json.Unmarshal(raw, &rec); jsonErr == nil && now.Before(rec.ExpiresAt) {
			return &rec, nil
		}
	case errors.Is(err, redis.Nil):
	default:
		if durable == nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		i.opt.logger.WarnContext(ctx, "tenantauth: idempotency fast path unavailable", "error", err)
	}

	if durable == nil {
		return nil, nil
	}
	rec, err := durable.Get(ctx, k, now)
	if err != nil || rec == nil {
		return nil, err
	}
	i.backfill(ctx, k, *rec, now)
	return rec, nil
}

// Store saves rec under k. The durable write must succeed; the fast cache
// write is best effort.
func (i *Idempotency) Store(ctx context.Context, durable DurableStore, k IdemKey, rec Record) error {
	rec, err := i.Persist(ctx, durable, k, rec)
	if err != nil {
		return err
	}
	if err := i.Remember(ctx, k, rec); err != nil {
		if durable == nil {
			return err
		}
		i.opt.logger.WarnContext(ctx, "tenantauth: idempotency fast path write failed", "error", err)
	}
	return nil
}

// Persist writes rec to durable only and returns it with ExpiresAt filled.
// Callers that write inside a transaction use it and call Remember once the
// transaction committed.
func (i *Idempotency) Persist(ctx context.Context, durable DurableStore, k IdemKey, rec Record) (Record, error) {
	if rec.ExpiresAt.IsZero() {
		rec.ExpiresAt = i.opt.now().Add(i.retention)
	}
	if durable != nil {
		if err := durable.Put(ctx, k, rec); err != nil {
			return rec, err
		}
	}
	return rec, nil
}

// Remember writes rec to the fast cache.
func (i *Idempotency) Remember(ctx context.Context, k IdemKey, rec Record) error {
	return i.set(ctx, k, rec, i.opt.now())
}

func (i *Idempotency) backfill(ctx context.Context, k IdemKey, rec Record, now time.Time) {
	if err := i.set(ctx, k, rec, now); err != nil {
		i.opt.logger.WarnContext(ctx, "tenantauth: idempotency backfill failed", "error", err)
	}
}

func (i *Idempotency) set(ctx context.Context, k IdemKey, rec Record, now time.Time) error {
	ttl := rec.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := i.rdb.Set(ctx, k.Redis(), payload, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
