package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/MrEthical07/tenantauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler(calls *atomic.Int32) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		calls.Add(1)
		WriteJSON(w, http.StatusOK, map[string]string{"tenant": ScopeFromContext(r.Context()).String()})
		return nil
	}
}

func TestGuardRejectsMalformedTenantHeader(t *testing.T) {
	f := newFixture(t)
	var calls atomic.Int32
	h := f.pipeline.Handle(RequireTenant, okHandler(&calls))

	req := httptest.NewRequest(http.MethodPost, "/v1/login", nil)
	req.Header.Set(TenantHeader, "acme")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, tenantauth.CodeValidation, decodeError(t, rec))
	assert.Zero(t, calls.Load())
}

func TestGuardRequiresTenantOnPreAuthRoutes(t *testing.T) {
	f := newFixture(t)
	var calls atomic.Int32
	h := f.pipeline.Handle(RequireTenant, okHandler(&calls))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/login", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, tenantauth.CodeTenantRequired, decodeError(t, rec))
}

func TestGuardMissingBearerIsInvalidToken(t *testing.T) {
	f := newFixture(t)
	var calls atomic.Int32
	h := f.pipeline.Handle(RequireAuth, okHandler(&calls))

	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set("Authorization", "Basic dTpw")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, tenantauth.CodeInvalidToken, decodeError(t, rec))
}

func TestGuardHeaderTokenMismatchIsForbidden(t *testing.T) {
	f := newFixture(t)
	var calls atomic.Int32
	h := f.pipeline.Handle(RequireTenant|RequireAuth|RequireDB, okHandler(&calls))
	access, _ := f.token(t, tenantA)

	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	req.Header.Set(TenantHeader, tenantB)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, tenantauth.CodeTenantMismatch, decodeError(t, rec))
	assert.Zero(t, calls.Load())
	require.NoError(t, f.mock.ExpectationsWereMet(), "no transaction may be opened before the tenant check")
}

func TestGuardBindsTokenTenantAndCommits(t *testing.T) {
	f := newFixture(t)
	var calls atomic.Int32
	h := f.pipeline.Handle(RequireTenant|RequireAuth|RequireDB, func(w http.ResponseWriter, r *http.Request) error {
		tx, ok := TxFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, tenantA, tx.Scope().String())
		return okHandler(&calls)(w, r)
	})
	access, userID := f.token(t, tenantA)
	f.expectBegin(tenantA, userID)
	f.mock.ExpectCommit()

	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	req.Header.Set(TenantHeader, tenantA)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"tenant":"`+tenantA+`"}`, rec.Body.String())
	assert.EqualValues(t, 1, calls.Load())
	assert.EqualValues(t, 1, f.engine.Metrics().Value(tenantauth.MetricTxCommit))
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestGuardRollsBackOnBusinessError(t *testing.T) {
	f := newFixture(t)
	h := f.pipeline.Handle(RequireTenant|RequireDB, func(w http.ResponseWriter, r *http.Request) error {
		return tenantauth.ErrInvalidCredentials
	})
	f.expectBegin(tenantA, "")
	f.mock.ExpectRollback()

	req := httptest.NewRequest(http.MethodPost, "/v1/login", nil)
	req.Header.Set(TenantHeader, tenantA)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, tenantauth.CodeInvalidCredentials, decodeError(t, rec))
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestGuardCommitsReuseDetection(t *testing.T) {
	f := newFixture(t)
	h := f.pipeline.Handle(RequireTenant|RequireDB, func(w http.ResponseWriter, r *http.Request) error {
		return tenantauth.ErrRefreshReuseDetected
	})
	f.expectBegin(tenantA, "")
	f.mock.ExpectCommit()

	req := httptest.NewRequest(http.MethodPost, "/v1/refresh", nil)
	req.Header.Set(TenantHeader, tenantA)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, tenantauth.CodeRefreshReuseDetected, decodeError(t, rec))
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestGuardCommitFailureReplacesResponse(t *testing.T) {
	f := newFixture(t)
	var calls atomic.Int32
	h := f.pipeline.Handle(RequireTenant|RequireDB, okHandler(&calls))
	f.expectBegin(tenantA, "")
	f.mock.ExpectCommit().WillReturnError(errors.New("could not serialize access"))

	req := httptest.NewRequest(http.MethodPost, "/v1/login", nil)
	req.Header.Set(TenantHeader, tenantA)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, tenantauth.CodeInternal, decodeError(t, rec))
	assert.NotContains(t, rec.Body.String(), "serialize")
	assert.EqualValues(t, 1, f.engine.Metrics().Value(tenantauth.MetricTxRollback))
}

func TestGuardHandlerClientErrorRollsBack(t *testing.T) {
	f := newFixture(t)
	h := f.pipeline.Wrap(RequireTenant|RequireDB, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnprocessableEntity)
	}))
	f.expectBegin(tenantA, "")
	f.mock.ExpectRollback()

	req := httptest.NewRequest(http.MethodPost, "/v1/thing", nil)
	req.Header.Set(TenantHeader, tenantA)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestBearerToken(t *testing.T) {
	tok, ok := bearerToken("bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)

	for _, v := range []string{"", "Bearer", "Bearer   ", "Token abc"} {
		_, ok := bearerToken(v)
		assert.False(t, ok, v)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:4321"
	assert.Equal(t, "192.0.2.10", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	assert.Equal(t, "203.0.113.5", ClientIP(req))
}
