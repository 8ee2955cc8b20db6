package middleware

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/MrEthical07/tenantauth"
	"github.com/MrEthical07/tenantauth/jwt"
	"github.com/MrEthical07/tenantauth/scope"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const (
	tenantA = "00000000-0000-4000-8000-000000000001"
	tenantB = "00000000-0000-4000-8000-000000000002"
)

type fixture struct {
	engine   *tenantauth.Engine
	pipeline *Pipeline
	mock     sqlmock.Sqlmock
	mr       *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := tenantauth.DefaultConfig()
	cfg.JWT.Issuer = "tenantauth-test"
	cfg.JWT.Audience = "tenantauth-api"
	cfg.JWT.ActiveKey = bytes.Repeat([]byte("k"), 32)
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	engine, err := tenantauth.New().WithConfig(cfg).WithDB(db).WithRedis(rdb).Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	return &fixture{engine: engine, pipeline: NewPipeline(engine), mock: mock, mr: mr}
}

func (f *fixture) token(t *testing.T, tenant string) (string, string) {
	t.Helper()
	s, err := scope.Parse(tenant)
	require.NoError(t, err)
	userID := uuid.NewString()
	access, _, err := f.engine.JWT().Issue(jwt.IssueInput{Subject: userID, Tenant: s, SessionID: uuid.NewString()})
	require.NoError(t, err)
	return access, userID
}

func (f *fixture) expectBegin(tenant, userID string) {
	f.mock.ExpectBegin()
	f.mock.ExpectExec(regexp.QuoteMeta("select set_config('app.tenant_id', $1, true)")).
		WithArgs(tenant, userID, "5000").
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec(regexp.QuoteMeta(`SET LOCAL ROLE "tenantauth_app"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) tenantauth.Code {
	t.Helper()
	var body struct {
		Error struct {
			Code    tenantauth.Code `json:"code"`
			Message string          `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Error.Message)
	return body.Error.Code
}
