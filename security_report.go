package tenantauth

import "time"

// SecurityReport is a read-only summary of the engine's security posture,
// meant to be logged at startup or exposed to operators.
type SecurityReport struct {
	SigningAlgorithm      string
	KeyRotationActive     bool
	AccessTTL             time.Duration
	RefreshTTL            time.Duration
	Leeway                time.Duration
	Argon2                PasswordConfigReport
	RehashOnLogin         bool
	LoginThrottle         ThrottleReport
	IPThrottleActive      bool
	RefreshThrottleActive bool
	DatabaseRole          string
	StatementTimeout      time.Duration
	AuditEnabled          bool
}

type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

type ThrottleReport struct {
	MaxAttempts int
	Window      time.Duration
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	c := e.config
	return SecurityReport{
		SigningAlgorithm:  "HS256",
		KeyRotationActive: len(c.JWT.PreviousKey) > 0,
		AccessTTL:         c.JWT.AccessTTL,
		RefreshTTL:        c.Refresh.TTL,
		Leeway:            c.JWT.Leeway,
		Argon2: PasswordConfigReport{
			Memory:      c.Password.Memory,
			Time:        c.Password.Time,
			Parallelism: c.Password.Parallelism,
			SaltLength:  c.Password.SaltLength,
			KeyLength:   c.Password.KeyLength,
		},
		RehashOnLogin: c.Password.UpgradeOnLogin,
		LoginThrottle: ThrottleReport{
			MaxAttempts: c.Security.MaxLoginAttempts,
			Window:      c.Security.LoginCooldownDuration,
		},
		IPThrottleActive:      c.Security.EnableIPThrottle,
		RefreshThrottleActive: c.Security.EnableRefreshThrottle && c.Security.MaxRefreshAttempts > 0,
		DatabaseRole:          c.Database.Role,
		StatementTimeout:      c.Database.StatementTimeout,
		AuditEnabled:          c.Audit.Enabled,
	}
}
