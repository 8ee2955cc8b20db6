package tenantauth

import (
	"errors"
	"net/http"

	"github.com/MrEthical07/tenantauth/tenantdb"
)

// Code is the stable machine-readable identifier of a client-facing failure.
type Code string

const (
	CodeInvalidCredentials   Code = "INVALID_CREDENTIALS"
	CodeInvalidToken         Code = "INVALID_TOKEN"
	CodeTokenRevoked         Code = "TOKEN_REVOKED"
	CodeTenantMismatch       Code = "TENANT_MISMATCH"
	CodeTenantRequired       Code = "TENANT_REQUIRED"
	CodeRefreshFailed        Code = "REFRESH_FAILED"
	CodeRefreshReuseDetected Code = "REFRESH_REUSE_DETECTED"
	CodeLockUnavailable      Code = "LOCK_UNAVAILABLE"
	CodeIdempotencyKeyReused Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimited          Code = "RATE_LIMITED"
	CodeValidation           Code = "VALIDATION"
	CodeConflict             Code = "CONFLICT"
	CodeInternal             Code = "INTERNAL"
)

// Error is the closed error type returned by the Engine and rendered by
// the middleware. Message is safe to show to clients.
type Error struct {
	Code    Code
	Status  int
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return string(e.Code) + ": " + e.Message + ": " + e.cause.Error()
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches any *Error with the same Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// CommitsTransaction reports whether the request transaction must still be
// committed although the request failed. Reuse detection persists the
// family revocation.
func (e *Error) CommitsTransaction() bool {
	return e.Code == CodeRefreshReuseDetected
}

func (e *Error) with(cause error) *Error {
	cp := *e
	cp.cause = cause
	return &cp
}

var (
	ErrInvalidCredentials   = &Error{Code: CodeInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid credentials"}
	ErrInvalidToken         = &Error{Code: CodeInvalidToken, Status: http.StatusUnauthorized, Message: "invalid token"}
	ErrTokenRevoked         = &Error{Code: CodeTokenRevoked, Status: http.StatusUnauthorized, Message: "token revoked"}
	ErrTenantMismatch       = &Error{Code: CodeTenantMismatch, Status: http.StatusForbidden, Message: "tenant mismatch"}
	ErrTenantRequired       = &Error{Code: CodeTenantRequired, Status: http.StatusBadRequest, Message: "tenant required"}
	ErrRefreshFailed        = &Error{Code: CodeRefreshFailed, Status: http.StatusUnauthorized, Message: "refresh failed"}
	ErrRefreshReuseDetected = &Error{Code: CodeRefreshReuseDetected, Status: http.StatusUnauthorized, Message: "refresh token reuse detected"}
	ErrLockUnavailable      = &Error{Code: CodeLockUnavailable, Status: http.StatusConflict, Message: "request in progress"}
	ErrIdempotencyKeyReused = &Error{Code: CodeIdempotencyKeyReused, Status: http.StatusUnprocessableEntity, Message: "idempotency key reused with a different request"}
	ErrRateLimited          = &Error{Code: CodeRateLimited, Status: http.StatusTooManyRequests, Message: "too many requests"}
	ErrValidation           = &Error{Code: CodeValidation, Status: http.StatusBadRequest, Message: "invalid request"}
	ErrConflict             = &Error{Code: CodeConflict, Status: http.StatusConflict, Message: "conflict"}
	ErrInternal             = &Error{Code: CodeInternal, Status: http.StatusInternalServerError, Message: "internal error"}
)

// ValidationError returns a VALIDATION error with a client-safe message.
func ValidationError(msg string) *Error {
	cp := *ErrValidation
	cp.Message = msg
	return &cp
}

// AsError maps any error onto the taxonomy. Unknown errors are classified
// as database failures and never expose their text.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	switch tenantdb.Classify(err) {
	case tenantdb.KindConflict:
		return ErrConflict.with(err)
	case tenantdb.KindValidation:
		return ErrValidation.with(err)
	default:
		return ErrInternal.with(err)
	}
}
