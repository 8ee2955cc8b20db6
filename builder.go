package tenantauth

import (
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/tenantauth/cache"
	"github.com/MrEthical07/tenantauth/internal/audit"
	"github.com/MrEthical07/tenantauth/internal/rate"
	"github.com/MrEthical07/tenantauth/jwt"
	"github.com/MrEthical07/tenantauth/password"
	"github.com/MrEthical07/tenantauth/refresh"
	"github.com/MrEthical07/tenantauth/tenantdb"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine from a Config and its backing handles.
//
// A Builder is single-use: Build succeeds at most once.
type Builder struct {
	config    Config
	db        *sql.DB
	redis     redis.UniversalClient
	logger    *slog.Logger
	auditSink AuditSink
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithDB sets the Postgres pool. The pool must use the pgx stdlib driver.
func (b *Builder) WithDB(db *sql.DB) *Builder {
	b.db = db
	return b
}

// WithRedis sets the shared cache client. Any go-redis client works,
// including cluster and failover clients.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithAuditSink sets where audit events go. It only takes effect when
// Config.Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithClock overrides the time source of every component. Tests only.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and wires the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.db == nil {
		return nil, errors.New("database handle required")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}
	cacheOpts := []cache.Option{cache.WithLogger(logger), cache.WithClock(now)}

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL: cfg.JWT.AccessTTL,
		Active:    jwt.Key{ID: cfg.JWT.ActiveKeyID, Secret: cloneBytes(cfg.JWT.ActiveKey)},
		Previous:  jwt.Key{ID: cfg.JWT.PreviousKeyID, Secret: cloneBytes(cfg.JWT.PreviousKey)},
		Issuer:    cfg.JWT.Issuer,
		Audience:  cfg.JWT.Audience,
		Leeway:    cfg.JWT.Leeway,
		Now:       now,
	})
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewHasher(cfg.Password.params())
	if err != nil {
		return nil, err
	}
	verifier, err := password.NewVerifier(hasher)
	if err != nil {
		return nil, err
	}

	txc, err := tenantdb.NewController(b.db, tenantdb.Config{
		Role:             cfg.Database.Role,
		AcquireTimeout:   cfg.Database.AcquireTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	})
	if err != nil {
		return nil, err
	}

	counter := cache.NewCounter(b.redis, cacheOpts...)
	limiter := rate.New(counter, rate.Config{
		EnableIPThrottle:      cfg.Security.EnableIPThrottle,
		EnableRefreshThrottle: cfg.Security.EnableRefreshThrottle,
		MaxLoginAttempts:      cfg.Security.MaxLoginAttempts,
		LoginWindow:           cfg.Security.LoginCooldownDuration,
		MaxRefreshAttempts:    cfg.Security.MaxRefreshAttempts,
		RefreshWindow:         cfg.Security.RefreshCooldownDuration,
	}, logger)

	re, err := refresh.NewEngine(refresh.Config{
		TTL:     cfg.Refresh.TTL,
		Limiter: limiter,
		Now:     now,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:    cfg,
		jwt:       jm,
		refresh:   re,
		verifier:  verifier,
		txc:       txc,
		counter:   counter,
		limiter:   limiter,
		idem:      cache.NewIdempotency(b.redis, cfg.Idempotency.Retention, cacheOpts...),
		locker:    cache.NewLocker(b.redis),
		blacklist: cache.NewBlacklist(b.redis, cacheOpts...),
		redis:     b.redis,
		metrics:   NewMetrics(cfg.Metrics),
		logger:    logger,
		now:       now,
	}
	sink := b.auditSink
	if sink == nil {
		sink = audit.NewSlogSink(logger)
	}
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, sink)

	b.built = true
	return engine, nil
}
