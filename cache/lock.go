package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLockUnavailable is returned when a lock is held or Redis cannot be reached.
var ErrLockUnavailable = errors.New("cache: lock unavailable")

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

var releaseLua = redis.NewScript(releaseScript)

// Locker acquires short exclusive locks.
type Locker struct {
	rdb redis.UniversalClient
}

// NewLocker returns a Locker over rdb.
func NewLocker(rdb redis.UniversalClient) *Locker {
	return &Locker{rdb: rdb}
}

// Lock is a held lock. Only the holder's Release deletes it.
type Lock struct {
	rdb   redis.UniversalClient
	key   string
	owner string
}

// Acquire takes key for ttl with a random owner token.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	if ttl <= 0 {
		return nil, errors.New("cache: lock ttl must be > 0")
	}
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return nil, err
	}
	owner := hex.EncodeToString(raw[:])

	ok, err := l.rdb.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLockUnavailable, err)
	}
	if !ok {
		return nil, ErrLockUnavailable
	}
	return &Lock{rdb: l.rdb, key: key, owner: owner}, nil
}

// Key returns the locked key.
func (lk *Lock) Key() string { return lk.key }

// Release deletes the lock if it is still owned by lk. It reports whether
// a key was deleted; an expired or stolen lock is left alone.
func (lk *Lock) Release(ctx context.Context) (bool, error) {
	n, err := releaseLua.Run(ctx, lk.rdb, []string{lk.key}, lk.owner).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n == 1, nil
}
