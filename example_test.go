package tenantauth_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/MrEthical07/tenantauth"
	"github.com/MrEthical07/tenantauth/scope"
	"github.com/MrEthical07/tenantauth/tenantdb"
	"github.com/redis/go-redis/v9"
)

// ExampleNew wires an engine from production handles.
func ExampleNew() {
	db, _ := sql.Open("pgx", "postgres://tenantauth@localhost/tenantauth")
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})

	cfg := tenantauth.DefaultConfig()
	cfg.JWT.Issuer = "https://auth.example.test"
	cfg.JWT.Audience = "example-api"
	cfg.JWT.ActiveKeyID = "2026-01"
	cfg.JWT.ActiveKey = []byte("0123456789abcdef0123456789abcdef")

	engine, err := tenantauth.New().
		WithConfig(cfg).
		WithDB(db).
		WithRedis(rdb).
		Build()
	if err != nil {
		return
	}
	defer engine.Close()
}

// ExampleEngine_Login runs a login inside its own tenant transaction. HTTP
// servers get the transaction from middleware.Pipeline instead.
func ExampleEngine_Login() {
	var engine *tenantauth.Engine
	ctx := context.Background()

	tenant, _ := scope.Parse("00000000-0000-4000-8000-000000000001")
	tx, err := engine.Transactions().Begin(ctx, tenantdb.Binding{Scope: tenant})
	if err != nil {
		return
	}
	pair, err := engine.Login(ctx, tx, tenantauth.LoginRequest{
		Email:    "u@example.test",
		Password: "Secret123!",
	})
	if err := tx.Finalize(err); err != nil {
		return
	}
	switch {
	case errors.Is(err, tenantauth.ErrInvalidCredentials), errors.Is(err, tenantauth.ErrRateLimited):
		fmt.Println(tenantauth.AsError(err).Code)
	case err == nil:
		fmt.Println(pair.TokenType, pair.ExpiresIn)
	}
}

// ExampleEngine_MetricsSnapshot reads in-process counters.
func ExampleEngine_MetricsSnapshot() {
	var engine *tenantauth.Engine
	snapshot := engine.MetricsSnapshot()
	fmt.Println(snapshot.Counters[tenantauth.MetricRefreshReuseDetected])
}
