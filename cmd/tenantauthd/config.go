package main

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/MrEthical07/tenantauth"
	"github.com/caarlos0/env/v11"
)

// daemonConfig is everything tenantauthd reads from the environment.
type daemonConfig struct {
	Addr              string        `env:"TENANTAUTH_ADDR" envDefault:":8080"`
	DatabaseURL       string        `env:"TENANTAUTH_DATABASE_URL,required,notEmpty"`
	DBMaxOpenConns    int           `env:"TENANTAUTH_DB_MAX_OPEN_CONNS" envDefault:"20"`
	DBConnMaxLifetime time.Duration `env:"TENANTAUTH_DB_CONN_MAX_LIFETIME" envDefault:"30m"`
	RedisAddrs        []string      `env:"TENANTAUTH_REDIS_ADDRS" envSeparator:"," envDefault:"localhost:6379"`
	RedisPassword     string        `env:"TENANTAUTH_REDIS_PASSWORD"`
	RedisDB           int           `env:"TENANTAUTH_REDIS_DB" envDefault:"0"`
	LogLevel          string        `env:"TENANTAUTH_LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout   time.Duration `env:"TENANTAUTH_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	JWT struct {
		Issuer        string        `env:"ISSUER"`
		Audience      string        `env:"AUDIENCE"`
		AccessTTL     time.Duration `env:"ACCESS_TTL" envDefault:"15m"`
		Leeway        time.Duration `env:"LEEWAY" envDefault:"30s"`
		ActiveKeyID   string        `env:"ACTIVE_KEY_ID"`
		ActiveKey     string        `env:"ACTIVE_KEY"`
		PreviousKeyID string        `env:"PREVIOUS_KEY_ID"`
		PreviousKey   string        `env:"PREVIOUS_KEY"`
	} `envPrefix:"TENANTAUTH_JWT_"`

	RefreshTTL     time.Duration `env:"TENANTAUTH_REFRESH_TTL" envDefault:"720h"`
	DBRole         string        `env:"TENANTAUTH_DB_ROLE" envDefault:"tenantauth_app"`
	StmtTimeout    time.Duration `env:"TENANTAUTH_DB_STATEMENT_TIMEOUT" envDefault:"5s"`
	AcquireTimeout time.Duration `env:"TENANTAUTH_DB_ACQUIRE_TIMEOUT" envDefault:"2s"`

	LoginRatePerMinute int64   `env:"TENANTAUTH_LOGIN_RATE_PER_MINUTE" envDefault:"60"`
	IPRatePerSecond    float64 `env:"TENANTAUTH_IP_RATE_PER_SECOND" envDefault:"20"`
	IPBurst            int     `env:"TENANTAUTH_IP_BURST" envDefault:"40"`

	AuditEnabled   bool `env:"TENANTAUTH_AUDIT_ENABLED" envDefault:"true"`
	MetricsEnabled bool `env:"TENANTAUTH_METRICS_ENABLED" envDefault:"true"`
	LatencyMetrics bool `env:"TENANTAUTH_LATENCY_METRICS" envDefault:"true"`

	// OTelEnabled logs an OpenTelemetry metrics collection every OTelInterval.
	OTelEnabled  bool          `env:"TENANTAUTH_OTEL_ENABLED" envDefault:"false"`
	OTelInterval time.Duration `env:"TENANTAUTH_OTEL_INTERVAL" envDefault:"1m"`
}

// LoadConfigFromEnv parses the daemon configuration.
func LoadConfigFromEnv() (daemonConfig, error) {
	var cfg daemonConfig
	if err := env.Parse(&cfg); err != nil {
		return daemonConfig{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// engineConfig maps the environment onto tenantauth.DefaultConfig. Keys are
// base64 (std or url alphabet).
func (c daemonConfig) engineConfig() (tenantauth.Config, error) {
	cfg := tenantauth.DefaultConfig()

	active, err := decodeKey(c.JWT.ActiveKey)
	if err != nil {
		return cfg, fmt.Errorf("TENANTAUTH_JWT_ACTIVE_KEY: %w", err)
	}
	cfg.JWT.ActiveKey = active
	cfg.JWT.ActiveKeyID = c.JWT.ActiveKeyID
	if c.JWT.PreviousKey != "" {
		prev, err := decodeKey(c.JWT.PreviousKey)
		if err != nil {
			return cfg, fmt.Errorf("TENANTAUTH_JWT_PREVIOUS_KEY: %w", err)
		}
		cfg.JWT.PreviousKey = prev
		cfg.JWT.PreviousKeyID = c.JWT.PreviousKeyID
	}
	cfg.JWT.Issuer = c.JWT.Issuer
	cfg.JWT.Audience = c.JWT.Audience
	cfg.JWT.AccessTTL = c.JWT.AccessTTL
	cfg.JWT.Leeway = c.JWT.Leeway

	cfg.Refresh.TTL = c.RefreshTTL
	cfg.Database.Role = c.DBRole
	cfg.Database.StatementTimeout = c.StmtTimeout
	cfg.Database.AcquireTimeout = c.AcquireTimeout

	cfg.Audit.Enabled = c.AuditEnabled

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decodeKey(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, fmt.Errorf("not valid base64")
}
