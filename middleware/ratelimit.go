package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/MrEthical07/tenantauth"
	"github.com/MrEthical07/tenantauth/cache"
	"golang.org/x/time/rate"
)

// RateLimit counts requests per (tenant, route, client IP) in a fixed Redis
// window. When Redis cannot be reached the request is allowed.
func (p *Pipeline) RateLimit(route string, max int64, window time.Duration, h HandlerFunc) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		ctx := r.Context()
		key := cache.RateKey(ScopeFromContext(ctx), route, ClientIP(r))
		res, ok := p.engine.Counter().Allow(ctx, key, window, max)
		if !ok {
			p.engine.Metrics().Inc(tenantauth.MetricRateLimitHit)
			if res.TTL > 0 {
				w.Header().Set("Retry-After", strconv.FormatInt(int64((res.TTL+time.Second-1)/time.Second), 10))
			}
			return tenantauth.ErrRateLimited
		}
		return h(w, r)
	}
}

// LocalThrottle is a token bucket per client IP kept in process memory. It
// sheds obvious floods before any Redis or database work. Idle buckets are
// dropped after idleTTL.
type LocalThrottle struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewLocalThrottle allows perSecond requests per IP with the given burst.
func NewLocalThrottle(perSecond float64, burst int, idleTTL time.Duration) *LocalThrottle {
	if idleTTL <= 0 {
		idleTTL = 5 * time.Minute
	}
	return &LocalThrottle{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		idleTTL: idleTTL,
		now:     time.Now,
	}
}

// Allow takes one token for ip.
func (t *LocalThrottle) Allow(ip string) bool {
	if ip == "" {
		ip = "unknown"
	}
	now := t.now()

	t.mu.Lock()
	b, ok := t.buckets[ip]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(t.limit, t.burst)}
		t.buckets[ip] = b
	}
	b.seen = now
	t.mu.Unlock()

	return b.lim.AllowN(now, 1)
}

// Sweep drops buckets idle for longer than idleTTL and returns how many
// remain.
func (t *LocalThrottle) Sweep() int {
	cutoff := t.now().Add(-t.idleTTL)
	t.mu.Lock()
	defer t.mu.Unlock()
	for ip, b := range t.buckets {
		if b.seen.Before(cutoff) {
			delete(t.buckets, ip)
		}
	}
	return len(t.buckets)
}

// Middleware rejects requests over the local budget with RATE_LIMITED.
func (t *LocalThrottle) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !t.Allow(ClientIP(r)) {
			WriteError(w, tenantauth.ErrRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}
