package main

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/MrEthical07/tenantauth"
	"github.com/MrEthical07/tenantauth/metrics/export/prometheus"
	"github.com/MrEthical07/tenantauth/middleware"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

const readyTimeout = 2 * time.Second

type serverDeps struct {
	engine   *tenantauth.Engine
	db       *sql.DB
	redis    redis.UniversalClient
	throttle *middleware.LocalThrottle

	loginRate   int64
	loginWindow time.Duration
}

func newHandler(d serverDeps) (http.Handler, error) {
	requests := promclient.NewCounterVec(promclient.CounterOpts{
		Name: "tenantauth_http_requests_total",
		Help: "HTTP requests by handler, method and status code.",
	}, []string{"handler", "code", "method"})
	metrics, err := prometheus.NewHandler(d.engine, requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err != nil {
		return nil, err
	}

	a := &api{engine: d.engine, guard: middleware.NewPipeline(d.engine)}
	g := a.guard

	instrument := func(name string, h http.Handler) http.Handler {
		return promhttp.InstrumentHandlerCounter(requests.MustCurryWith(promclient.Labels{"handler": name}), h)
	}

	mux := http.NewServeMux()
	// login answers with bearer secrets and is never wrapped in Idempotent
	mux.Handle("POST /v1/auth/login", instrument("login", g.Handle(
		middleware.RequireTenant|middleware.RequireDB,
		g.RateLimit("login", d.loginRate, d.loginWindow, a.login),
	)))
	mux.Handle("POST /v1/auth/refresh", instrument("refresh", g.Handle(
		middleware.RequireTenant|middleware.RequireDB,
		a.refresh,
	)))
	mux.Handle("POST /v1/auth/logout", instrument("logout", g.Handle(
		middleware.RequireAuth|middleware.RequireDB,
		a.logout,
	)))
	mux.Handle("GET /v1/me", instrument("me", g.Handle(
		middleware.RequireAuth|middleware.RequireDB,
		a.me,
	)))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := ready(r.Context(), d.db, d.redis); err != nil {
			d.engine.Logger().WarnContext(r.Context(), "tenantauthd: not ready", "error", err)
			middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	mux.Handle("GET /metrics", metrics)

	var h http.Handler = mux
	if d.throttle != nil {
		h = d.throttle.Middleware(h)
	}
	h = middleware.Logging(d.engine.Logger())(h)
	return middleware.RequestID(h), nil
}

func ready(ctx context.Context, db *sql.DB, rdb redis.UniversalClient) error {
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return err
	}
	return rdb.Ping(ctx).Err()
}
