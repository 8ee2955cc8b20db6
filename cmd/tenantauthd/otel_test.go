package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/MrEthical07/tenantauth"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestStartOTelLogsEngineMetricsOnShutdown(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := tenantauth.DefaultConfig()
	cfg.JWT.Issuer = "tenantauth-test"
	cfg.JWT.Audience = "tenantauth-api"
	cfg.JWT.ActiveKey = bytes.Repeat([]byte("k"), 32)
	engine, err := tenantauth.New().WithConfig(cfg).WithDB(db).WithRedis(rdb).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer engine.Close()
	engine.Metrics().Inc(tenantauth.MetricLoginSuccess)

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	stop, err := startOTel(engine, logger, time.Hour)
	if err != nil {
		t.Fatalf("startOTel: %v", err)
	}
	if err := stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("expected one JSON metrics record, got %q: %v", buf.String(), err)
	}
	if line["msg"] != "tenantauthd: metrics" {
		t.Fatalf("unexpected record: %v", line)
	}
	if line["tenantauth_login_success_total"] != float64(1) {
		t.Fatalf("expected login counter 1, got %v", line["tenantauth_login_success_total"])
	}
	if _, ok := line["tenantauth_db_transactions_in_flight"]; !ok {
		t.Fatalf("expected in-flight gauge, got %v", line)
	}
	if _, ok := line["tenantauth_authenticate_latency_seconds_bucket{le=+Inf}"]; !ok {
		t.Fatalf("expected labelled latency buckets, got %v", line)
	}
}

func TestOTelConfigSwitch(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TENANTAUTH_OTEL_ENABLED", "true")
	t.Setenv("TENANTAUTH_OTEL_INTERVAL", "15s")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if !cfg.OTelEnabled || cfg.OTelInterval != 15*time.Second {
		t.Fatalf("unexpected otel config: enabled=%v interval=%s", cfg.OTelEnabled, cfg.OTelInterval)
	}
}
