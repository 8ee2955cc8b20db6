package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/MrEthical07/tenantauth"
	"github.com/MrEthical07/tenantauth/jwt"
	"github.com/MrEthical07/tenantauth/scope"
	"github.com/MrEthical07/tenantauth/tenantdb"
)

// Capability is one requirement a route places on the guard.
type Capability uint8

const (
	// RequireTenant rejects requests without a tenant: from X-Tenant-Id on
	// pre-auth routes, from the token on authenticated routes.
	RequireTenant Capability = 1 << iota
	// RequireAuth verifies the bearer access token.
	RequireAuth
	// RequireDB opens a tenant-bound transaction for the handler.
	RequireDB
)

// TenantHeader carries the tenant of a pre-auth request.
const TenantHeader = "X-Tenant-Id"

// HandlerFunc is a route handler. A returned error is rendered by the
// pipeline; the handler must not have written a response in that case.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// Pipeline builds guards around HandlerFuncs.
type Pipeline struct {
	engine *tenantauth.Engine
	logger *slog.Logger
}

// NewPipeline returns a Pipeline over engine. It logs through the engine's
// logger.
func NewPipeline(engine *tenantauth.Engine) *Pipeline {
	return &Pipeline{engine: engine, logger: engine.Logger()}
}

type scopeContextKey struct{}

// ScopeFromContext returns the scope the guard bound the request to.
func ScopeFromContext(ctx context.Context) scope.Scope {
	s, _ := ctx.Value(scopeContextKey{}).(scope.Scope)
	return s
}

// TxFromContext returns the request transaction on RequireDB routes.
func TxFromContext(ctx context.Context) (*tenantdb.Tx, bool) {
	return tenantdb.FromContext(ctx)
}

// Handle wraps h with the guard for caps.
func (p *Pipeline) Handle(caps Capability, h HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		header, hasHeader, err := tenantFromHeader(r)
		if err != nil {
			WriteError(w, err)
			return
		}
		if caps&RequireTenant != 0 && caps&RequireAuth == 0 && !hasHeader {
			WriteError(w, tenantauth.ErrTenantRequired)
			return
		}
		bound := header

		var claims *jwt.Claims
		if caps&RequireAuth != 0 {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				WriteError(w, tenantauth.ErrInvalidToken)
				return
			}
			claims, err = p.engine.Authenticate(ctx, token)
			if err != nil {
				p.logFailure(ctx, r, err)
				WriteError(w, err)
				return
			}
			if hasHeader && !header.Equal(claims.Tenant) {
				WriteError(w, tenantauth.ErrTenantMismatch)
				return
			}
			if caps&RequireTenant != 0 && claims.Tenant.IsGlobal() {
				WriteError(w, tenantauth.ErrTenantRequired)
				return
			}
			bound = claims.Tenant
			ctx = tenantauth.WithClaims(ctx, claims)
		}

		ctx = context.WithValue(ctx, scopeContextKey{}, bound)
		ctx = tenantauth.WithClientIP(ctx, ClientIP(r))
		ctx = tenantauth.WithUserAgent(ctx, r.UserAgent())

		if caps&RequireDB == 0 {
			if err := h(w, r.WithContext(ctx)); err != nil {
				p.logFailure(ctx, r, err)
				WriteError(w, err)
			}
			return
		}

		binding := tenantdb.Binding{Scope: bound}
		if claims != nil {
			binding.UserID = claims.Subject
		}
		tx, err := p.engine.Transactions().Begin(ctx, binding)
		if err != nil {
			p.logger.ErrorContext(ctx, "tenantauth: transaction acquire failed", "error", err, "path", r.URL.Path)
			WriteError(w, tenantauth.ErrInternal)
			return
		}
		hooks := &txHooks{}
		ctx = context.WithValue(tenantdb.WithTx(ctx, tx), txHooksContextKey{}, hooks)
		p.serveTx(w, r.WithContext(ctx), tx, hooks, h)
	})
}

// Wrap adapts a plain http.Handler. The transaction commits when the
// handler answers below 400.
func (p *Pipeline) Wrap(caps Capability, next http.Handler) http.Handler {
	return p.Handle(caps, func(w http.ResponseWriter, r *http.Request) error {
		next.ServeHTTP(w, r)
		return nil
	})
}

func (p *Pipeline) serveTx(w http.ResponseWriter, r *http.Request, tx *tenantdb.Tx, hooks *txHooks, h HandlerFunc) {
	ctx := r.Context()
	buf := newBufferedWriter()

	defer func() {
		if rec := recover(); rec != nil {
			_ = tx.Rollback()
			p.engine.Metrics().Inc(tenantauth.MetricTxRollback)
			hooks.run(ctx, false)
			panic(rec)
		}
	}()

	herr := h(buf, r)
	commit := herr == nil && buf.Status() < http.StatusBadRequest
	if herr != nil {
		p.logFailure(ctx, r, herr)
		commit = tenantauth.AsError(herr).CommitsTransaction()
		buf.reset()
		WriteError(buf, herr)
	}

	committed := false
	if commit {
		if err := tx.Commit(); err != nil {
			p.logger.ErrorContext(ctx, "tenantauth: commit failed", "error", err, "path", r.URL.Path)
			buf.reset()
			WriteError(buf, err)
		} else {
			committed = true
		}
	} else if err := tx.Rollback(); err != nil {
		p.logger.WarnContext(ctx, "tenantauth: rollback failed", "error", err)
	}

	if committed {
		p.engine.Metrics().Inc(tenantauth.MetricTxCommit)
	} else {
		p.engine.Metrics().Inc(tenantauth.MetricTxRollback)
	}
	hooks.run(ctx, committed)
	buf.flushTo(w)
}

func (p *Pipeline) logFailure(ctx context.Context, r *http.Request, err error) {
	e := tenantauth.AsError(err)
	if e.Status >= http.StatusInternalServerError {
		p.logger.ErrorContext(ctx, "tenantauth: request failed", "code", e.Code, "error", err, "path", r.URL.Path)
		return
	}
	p.logger.DebugContext(ctx, "tenantauth: request rejected", "code", e.Code, "path", r.URL.Path)
}

type txHooksContextKey struct{}

type txHooks struct {
	mu          sync.Mutex
	afterCommit []func(context.Context)
	finish      []func(context.Context)
}

func (h *txHooks) run(ctx context.Context, committed bool) {
	h.mu.Lock()
	afterCommit, finish := h.afterCommit, h.finish
	h.afterCommit, h.finish = nil, nil
	h.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	if committed {
		for _, fn := range afterCommit {
			fn(ctx)
		}
	}
	for _, fn := range finish {
		fn(ctx)
	}
}

// AfterCommit schedules fn to run once the request transaction committed.
// It reports false when ctx carries no transaction.
func AfterCommit(ctx context.Context, fn func(context.Context)) bool {
	h, ok := ctx.Value(txHooksContextKey{}).(*txHooks)
	if !ok {
		return false
	}
	h.mu.Lock()
	h.afterCommit = append(h.afterCommit, fn)
	h.mu.Unlock()
	return true
}

// OnFinish schedules fn to run after the request transaction ended,
// whatever the outcome.
func OnFinish(ctx context.Context, fn func(context.Context)) bool {
	h, ok := ctx.Value(txHooksContextKey{}).(*txHooks)
	if !ok {
		return false
	}
	h.mu.Lock()
	h.finish = append(h.finish, fn)
	h.mu.Unlock()
	return true
}

func tenantFromHeader(r *http.Request) (scope.Scope, bool, error) {
	raw := strings.TrimSpace(r.Header.Get(TenantHeader))
	if raw == "" {
		return scope.Global(), false, nil
	}
	s, err := scope.Parse(raw)
	if err != nil {
		return scope.Scope{}, false, tenantauth.ValidationError("invalid " + TenantHeader)
	}
	return s, true, nil
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

// ClientIP returns the first X-Forwarded-For hop or the remote address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
