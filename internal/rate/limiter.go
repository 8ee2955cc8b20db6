package rate

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/MrEthical07/tenantauth/cache"
	"github.com/MrEthical07/tenantauth/scope"
)

const (
	routeLogin   = "login"
	routeLoginIP = "login-ip"
	routeRefresh = "refresh"
)

// Config holds limiter tuning parameters.
type Config struct {
	EnableIPThrottle      bool
	EnableRefreshThrottle bool
	MaxLoginAttempts      int
	LoginWindow           time.Duration
	MaxRefreshAttempts    int
	RefreshWindow         time.Duration
}

// Limiter enforces per-identifier and per-IP login limits and per-family
// refresh limits.
type Limiter struct {
	counter *cache.Counter
	config  Config
	logger  *slog.Logger
}

// New creates a Limiter over counter.
func New(counter *cache.Counter, cfg Config, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{counter: counter, config: cfg, logger: logger}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (l *Limiter) loginKeys(s scope.Scope, email, ip string) []string {
	keys := []string{cache.RateKey(s, routeLogin, normalizeEmail(email))}
	if l.config.EnableIPThrottle && ip != "" {
		keys = append(keys, cache.RateKey(s, routeLoginIP, ip))
	}
	return keys
}

// CheckLogin reports ErrRateLimited once the identifier or IP has used up
// its failed-attempt budget.
func (l *Limiter) CheckLogin(ctx context.Context, s scope.Scope, email, ip string) error {
	for _, key := range l.loginKeys(s, email, ip) {
		res, err := l.counter.Peek(ctx, key, int64(l.config.MaxLoginAttempts))
		if err != nil {
			l.logger.WarnContext(ctx, "tenantauth: login throttle unavailable", "error", err)
			return nil
		}
		if res.Count >= int64(l.config.MaxLoginAttempts) {
			return ErrRateLimited
		}
	}
	return nil
}

// RecordLoginFailure counts one failed attempt against the identifier and IP.
func (l *Limiter) RecordLoginFailure(ctx context.Context, s scope.Scope, email, ip string) {
	for _, key := range l.loginKeys(s, email, ip) {
		l.counter.Allow(ctx, key, l.config.LoginWindow, int64(l.config.MaxLoginAttempts))
	}
}

// ResetLogin clears the failed-attempt windows after a successful login.
func (l *Limiter) ResetLogin(ctx context.Context, s scope.Scope, email, ip string) {
	if err := l.counter.Reset(ctx, l.loginKeys(s, email, ip)...); err != nil {
		l.logger.WarnContext(ctx, "tenantauth: login throttle reset failed", "error", err)
	}
}

// CheckRefresh counts one rotation attempt for the family.
func (l *Limiter) CheckRefresh(ctx context.Context, s scope.Scope, familyID string) error {
	if !l.config.EnableRefreshThrottle {
		return nil
	}
	key := cache.RateKey(s, routeRefresh, familyID)
	if _, ok := l.counter.Allow(ctx, key, l.config.RefreshWindow, int64(l.config.MaxRefreshAttempts)); !ok {
		return ErrRateLimited
	}
	return nil
}
