// Command tenantauthd serves the tenantauth login, refresh and logout API.
//
//	tenantauthd          run the HTTP server
//	tenantauthd migrate  apply the embedded schema
//	tenantauthd purge    delete expired idempotency records
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MrEthical07/tenantauth"
	"github.com/MrEthical07/tenantauth/cache"
	"github.com/MrEthical07/tenantauth/middleware"
	"github.com/MrEthical07/tenantauth/tenantdb"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := LoadConfigFromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := newLogger(cfg.LogLevel)

	cmd := "serve"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "serve":
		err = serve(ctx, cfg, logger)
	case "migrate":
		err = migrate(ctx, cfg, logger)
	case "purge":
		err = purge(ctx, cfg, logger)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (serve, migrate, purge)\n", cmd)
		os.Exit(2)
	}
	if err != nil {
		logger.Error("tenantauthd: exit", "command", cmd, "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func openDB(cfg daemonConfig) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxOpenConns)
	db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	return db, nil
}

func serve(ctx context.Context, cfg daemonConfig, logger *slog.Logger) error {
	engineCfg, err := cfg.engineConfig()
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.RedisAddrs,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	engine, err := tenantauth.New().
		WithConfig(engineCfg).
		WithDB(db).
		WithRedis(rdb).
		WithLogger(logger).
		WithMetricsEnabled(cfg.MetricsEnabled).
		WithLatencyHistograms(cfg.LatencyMetrics).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	report := engine.SecurityReport()
	logger.Info("tenantauthd: security posture",
		"access_ttl", report.AccessTTL,
		"refresh_ttl", report.RefreshTTL,
		"key_rotation", report.KeyRotationActive,
		"argon2_memory_kb", report.Argon2.Memory,
		"login_attempts", report.LoginThrottle.MaxAttempts,
		"refresh_throttle", report.RefreshThrottleActive,
		"db_role", report.DatabaseRole,
		"audit", report.AuditEnabled,
	)

	if cfg.OTelEnabled {
		stopOTel, err := startOTel(engine, logger, cfg.OTelInterval)
		if err != nil {
			return fmt.Errorf("start otel: %w", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := stopOTel(flushCtx); err != nil {
				logger.Warn("tenantauthd: otel shutdown", "error", err)
			}
		}()
	}

	throttle := middleware.NewLocalThrottle(cfg.IPRatePerSecond, cfg.IPBurst, 5*time.Minute)
	go sweepLoop(ctx, throttle, time.Minute)

	handler, err := newHandler(serverDeps{
		engine:      engine,
		db:          db,
		redis:       rdb,
		throttle:    throttle,
		loginRate:   cfg.LoginRatePerMinute,
		loginWindow: time.Minute,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("tenantauthd: listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("tenantauthd: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func sweepLoop(ctx context.Context, t *middleware.LocalThrottle, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep()
		}
	}
}

func migrate(ctx context.Context, cfg daemonConfig, logger *slog.Logger) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := tenantdb.Migrate(ctx, db); err != nil {
		return err
	}
	logger.Info("tenantauthd: schema applied")
	return nil
}

func purge(ctx context.Context, cfg daemonConfig, logger *slog.Logger) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	n, err := cache.NewPGIdempotencyStore(db).Purge(ctx, time.Now())
	if err != nil {
		return err
	}
	logger.Info("tenantauthd: idempotency records purged", "deleted", n)
	return nil
}
