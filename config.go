package tenantauth

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/tenantauth/password"
)

// Config is the complete Engine configuration. Start from DefaultConfig and
// override what the deployment needs.
type Config struct {
	JWT         JWTConfig
	Refresh     RefreshConfig
	Password    PasswordConfig
	Database    DatabaseConfig
	Security    SecurityConfig
	Idempotency IdempotencyConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
}

// JWTConfig configures access tokens. PreviousKey is accepted for
// verification only, during a key rotation.
type JWTConfig struct {
	AccessTTL     time.Duration
	Issuer        string
	Audience      string
	Leeway        time.Duration
	ActiveKeyID   string
	ActiveKey     []byte
	PreviousKeyID string
	PreviousKey   []byte
}

type RefreshConfig struct {
	TTL time.Duration
}

type PasswordConfig struct {
	Memory           uint32 // in KB
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
	UpgradeOnLogin   bool
}

// DatabaseConfig configures the tenant transaction controller.
type DatabaseConfig struct {
	Role             string
	AcquireTimeout   time.Duration
	StatementTimeout time.Duration
}

type SecurityConfig struct {
	EnableIPThrottle        bool
	EnableRefreshThrottle   bool
	MaxLoginAttempts        int
	LoginCooldownDuration   time.Duration
	MaxRefreshAttempts      int
	RefreshCooldownDuration time.Duration
}

type IdempotencyConfig struct {
	Retention time.Duration
	LockTTL   time.Duration
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns production defaults. Keys, issuer and audience
// still have to be supplied.
func DefaultConfig() Config {
	p := password.DefaultParams()
	return Config{
		JWT: JWTConfig{
			AccessTTL: 15 * time.Minute,
			Leeway:    30 * time.Second,
		},
		Refresh: RefreshConfig{
			TTL: 30 * 24 * time.Hour,
		},
		Password: PasswordConfig{
			Memory:           p.Memory,
			Time:             p.Time,
			Parallelism:      p.Parallelism,
			SaltLength:       p.SaltLength,
			KeyLength:        p.KeyLength,
			MaxPasswordBytes: p.MaxPasswordBytes,
			UpgradeOnLogin:   true,
		},
		Database: DatabaseConfig{
			Role:             "tenantauth_app",
			AcquireTimeout:   2 * time.Second,
			StatementTimeout: 5 * time.Second,
		},
		Security: SecurityConfig{
			EnableIPThrottle:        true,
			EnableRefreshThrottle:   true,
			MaxLoginAttempts:        5,
			LoginCooldownDuration:   15 * time.Minute,
			MaxRefreshAttempts:      20,
			RefreshCooldownDuration: time.Minute,
		},
		Idempotency: IdempotencyConfig{
			Retention: 24 * time.Hour,
			LockTTL:   30 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.ActiveKey = cloneBytes(cfg.JWT.ActiveKey)
	out.JWT.PreviousKey = cloneBytes(cfg.JWT.PreviousKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (c PasswordConfig) params() password.Params {
	return password.Params{
		Memory:           c.Memory,
		Time:             c.Time,
		Parallelism:      c.Parallelism,
		SaltLength:       c.SaltLength,
		KeyLength:        c.KeyLength,
		MaxPasswordBytes: c.MaxPasswordBytes,
	}
}

// Validate checks cross-field constraints. Component-level checks (key
// length, argon2 minimums) run again when the Engine is built.
func (c *Config) Validate() error {
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if len(c.JWT.ActiveKey) == 0 {
		return errors.New("JWT ActiveKey is required")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}
	if strings.TrimSpace(c.JWT.Issuer) == "" || strings.TrimSpace(c.JWT.Audience) == "" {
		return errors.New("JWT Issuer and Audience are required")
	}
	if c.Refresh.TTL <= 0 {
		return errors.New("Refresh TTL must be > 0")
	}
	if c.Refresh.TTL <= c.JWT.AccessTTL {
		return errors.New("Refresh TTL must exceed JWT AccessTTL")
	}
	if err := c.Password.params().Validate(); err != nil {
		return err
	}
	if c.Database.AcquireTimeout < 0 || c.Database.StatementTimeout < 0 {
		return errors.New("Database timeouts must be >= 0")
	}
	if c.Security.MaxLoginAttempts <= 0 || c.Security.LoginCooldownDuration <= 0 {
		return errors.New("Security login throttle must be > 0")
	}
	if c.Security.EnableRefreshThrottle && (c.Security.MaxRefreshAttempts <= 0 || c.Security.RefreshCooldownDuration <= 0) {
		return errors.New("Security refresh throttle must be > 0 when enabled")
	}
	if c.Idempotency.Retention <= 0 || c.Idempotency.LockTTL <= 0 {
		return errors.New("Idempotency Retention and LockTTL must be > 0")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}
	return nil
}
