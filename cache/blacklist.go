package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/MrEthical07/tenantauth/scope"
	"github.com/redis/go-redis/v9"
)

// Blacklist records revoked access-token ids until they would have expired.
type Blacklist struct {
	rdb redis.UniversalClient
	opt options
}

// NewBlacklist returns a Blacklist over rdb.
func NewBlacklist(rdb redis.UniversalClient, opts ...Option) *Blacklist {
	return &Blacklist{rdb: rdb, opt: buildOptions(opts)}
}

// Revoke tombstones jti until expiresAt. Already-expired tokens are skipped.
func (b *Blacklist) Revoke(ctx context.Context, s scope.Scope, jti string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(b.opt.now())
	if ttl <= 0 {
		return nil
	}
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	if err := b.rdb.Set(ctx, BlacklistKey(s, jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether jti was revoked in scope s.
func (b *Blacklist) IsRevoked(ctx context.Context, s scope.Scope, jti string) (bool, error) {
	n, err := b.rdb.Exists(ctx, BlacklistKey(s, jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}
