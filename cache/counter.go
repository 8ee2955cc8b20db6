package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CounterResult is the state of a window after a hit.
type CounterResult struct {
	Count    int64
	TTL      time.Duration
	Exceeded bool
}

// Counter implements fixed-window rate counters.
type Counter struct {
	rdb redis.UniversalClient
	opt options
}

// NewCounter returns a Counter over rdb.
func NewCounter(rdb redis.UniversalClient, opts ...Option) *Counter {
	return &Counter{rdb: rdb, opt: buildOptions(opts)}
}

// Hit increments key. The window starts on the first hit; Exceeded is set
// once Count passes max.
func (c *Counter) Hit(ctx context.Context, key string, window time.Duration, max int64) (CounterResult, error) {
	count, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return CounterResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == 1 {
		if err := c.rdb.Expire(ctx, key, window).Err(); err != nil {
			return CounterResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	ttl, err := c.rdb.PTTL(ctx, key).Result()
	if err != nil {
		return CounterResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	// A previous first hit may have lost its EXPIRE.
	if ttl < 0 {
		if err := c.rdb.Expire(ctx, key, window).Err(); err != nil {
			return CounterResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		ttl = window
	}

	return CounterResult{Count: count, TTL: ttl, Exceeded: count > max}, nil
}

// Allow is Hit that fails open: a Redis failure is logged and the request
// is allowed.
func (c *Counter) Allow(ctx context.Context, key string, window time.Duration, max int64) (CounterResult, bool) {
	res, err := c.Hit(ctx, key, window, max)
	if err != nil {
		c.opt.logger.WarnContext(ctx, "tenantauth: rate counter unavailable, allowing request", "error", err)
		return CounterResult{}, true
	}
	return res, !res.Exceeded
}

// Peek reads a window without incrementing it. Missing keys count as zero.
func (c *Counter) Peek(ctx context.Context, key string, max int64) (CounterResult, error) {
	count, err := c.rdb.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return CounterResult{}, nil
	}
	if err != nil {
		return CounterResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	ttl, err := c.rdb.PTTL(ctx, key).Result()
	if err != nil {
		return CounterResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return CounterResult{Count: count, TTL: ttl, Exceeded: count > max}, nil
}

// Reset deletes the given windows.
func (c *Counter) Reset(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
