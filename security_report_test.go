package tenantauth

import (
	"bytes"
	"testing"
)

func TestSecurityReportReflectsPosture(t *testing.T) {
	h := newHarness(t)

	report := h.engine.SecurityReport()
	if report.SigningAlgorithm != "HS256" {
		t.Fatalf("expected HS256, got %s", report.SigningAlgorithm)
	}
	if report.KeyRotationActive {
		t.Fatal("expected no key rotation without a previous key")
	}
	if report.LoginThrottle.MaxAttempts != 5 {
		t.Fatalf("expected 5 login attempts, got %d", report.LoginThrottle.MaxAttempts)
	}
	if !report.AuditEnabled {
		t.Fatal("expected audit enabled in report")
	}
	if report.DatabaseRole != "tenantauth_app" {
		t.Fatalf("unexpected database role %q", report.DatabaseRole)
	}
	if report.Argon2.Memory != 8*1024 || report.Argon2.Time != 1 {
		t.Fatalf("unexpected argon2 params %+v", report.Argon2)
	}
}

func TestSecurityReportKeyRotation(t *testing.T) {
	cfg := validConfig()
	cfg.JWT.PreviousKeyID = "k0"
	cfg.JWT.PreviousKey = bytes.Repeat([]byte("b"), 32)
	e := &Engine{config: cfg}

	if !e.SecurityReport().KeyRotationActive {
		t.Fatal("expected key rotation active with a previous key")
	}

	var nilEngine *Engine
	if nilEngine.SecurityReport() != (SecurityReport{}) {
		t.Fatal("expected zero report for nil engine")
	}
}
