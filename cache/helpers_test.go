package cache

import (
	"testing"

	"github.com/MrEthical07/tenantauth/scope"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func testScope(t *testing.T) scope.Scope {
	t.Helper()
	s, err := scope.Parse("00000000-0000-4000-8000-000000000001")
	require.NoError(t, err)
	return s
}
