package tenantdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/tenantauth/scope"
	"github.com/jackc/pgx/v5"
)

const (
	defaultAcquireTimeout   = 2 * time.Second
	defaultStatementTimeout = 5 * time.Second

	bindStatement = `select set_config('app.tenant_id', $1, true), set_config('app.user_id', $2, true), set_config('statement_timeout', $3, true)`
)

var (
	// ErrAcquire is returned when no pooled connection could be obtained in time.
	ErrAcquire = errors.New("tenantdb: connection acquire failed")
	// ErrTxFinalized is returned by terminal calls after the first one.
	ErrTxFinalized = errors.New("tenantdb: transaction already finalized")
)

// Querier is the statement surface shared by *sql.DB, *sql.Tx and *Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Config tunes a Controller.
type Config struct {
	// Role is the restricted database role assumed for the transaction.
	// Empty keeps the connection's login role.
	Role             string
	AcquireTimeout   time.Duration
	StatementTimeout time.Duration
	Isolation        sql.IsolationLevel
}

// Binding is the request identity a transaction is bound to.
type Binding struct {
	Scope  scope.Scope
	UserID string
}

// Controller hands out tenant-bound transactions over a shared pool.
type Controller struct {
	db       *sql.DB
	cfg      Config
	setRole  string
	inFlight atomic.Int64
}

// NewController validates cfg and returns a Controller using db.
func NewController(db *sql.DB, cfg Config) (*Controller, error) {
	if db == nil {
		return nil, errors.New("tenantdb: nil database handle")
	}
	if cfg.AcquireTimeout < 0 || cfg.StatementTimeout < 0 {
		return nil, errors.New("tenantdb: timeouts must be >= 0")
	}
	if cfg.AcquireTimeout == 0 {
		cfg.AcquireTimeout = defaultAcquireTimeout
	}
	if cfg.StatementTimeout == 0 {
		cfg.StatementTimeout = defaultStatementTimeout
	}

	c := &Controller{db: db, cfg: cfg}
	if cfg.Role != "" {
		c.setRole = "SET LOCAL ROLE " + pgx.Identifier{cfg.Role}.Sanitize()
	}
	return c, nil
}

// DB returns the underlying pool.
func (c *Controller) DB() *sql.DB { return c.db }

// InFlight reports how many transactions are currently checked out.
func (c *Controller) InFlight() int64 { return c.inFlight.Load() }

// Begin acquires a connection, opens a transaction and binds it to b.
// On any failure the connection is released before returning.
func (c *Controller) Begin(ctx context.Context, b Binding) (*Tx, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, c.cfg.AcquireTimeout)
	conn, err := c.db.Conn(acquireCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAcquire, err)
	}

	sqlTx, err := conn.BeginTx(ctx, &sql.TxOptions{Isolation: c.cfg.Isolation})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	tenant := ""
	if !b.Scope.IsGlobal() {
		tenant = b.Scope.String()
	}
	timeout := strconv.FormatInt(c.cfg.StatementTimeout.Milliseconds(), 10)
	if _, err := sqlTx.ExecContext(ctx, bindStatement, tenant, b.UserID, timeout); err != nil {
		_ = sqlTx.Rollback()
		_ = conn.Close()
		return nil, err
	}
	if c.setRole != "" {
		if _, err := sqlTx.ExecContext(ctx, c.setRole); err != nil {
			_ = sqlTx.Rollback()
			_ = conn.Close()
			return nil, err
		}
	}

	c.inFlight.Add(1)
	return &Tx{
		tx:      sqlTx,
		conn:    conn,
		binding: b,
		release: func() { c.inFlight.Add(-1) },
	}, nil
}

type txState uint8

const (
	txOpen txState = iota
	txCommitted
	txRolledBack
)

// Tx is a tenant-bound transaction owned by a single request.
type Tx struct {
	tx      *sql.Tx
	conn    *sql.Conn
	binding Binding
	release func()

	mu    sync.Mutex
	state txState
}

var _ Querier = (*Tx)(nil)

// Scope returns the tenant scope the transaction is bound to.
func (t *Tx) Scope() scope.Scope { return t.binding.Scope }

// UserID returns the bound user id, empty before authentication.
func (t *Tx) UserID() string { return t.binding.UserID }

func (t *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}

func (t *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, query, args...)
}

func (t *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, query, args...)
}

// Done reports whether a terminal action already ran.
func (t *Tx) Done() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state != txOpen
}

// Committed reports whether the transaction was committed.
func (t *Tx) Committed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == txCommitted
}

// Commit commits and releases the connection.
func (t *Tx) Commit() error { return t.finish(txCommitted) }

// Rollback rolls back and releases the connection.
func (t *Tx) Rollback() error { return t.finish(txRolledBack) }

// Finalize commits when err is nil and rolls back otherwise.
func (t *Tx) Finalize(err error) error {
	if err == nil {
		return t.Commit()
	}
	return t.Rollback()
}

func (t *Tx) finish(target txState) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != txOpen {
		return ErrTxFinalized
	}
	t.state = target

	var err error
	if target == txCommitted {
		// a failed commit leaves nothing applied
		if err = t.tx.Commit(); err != nil {
			t.state = txRolledBack
		}
	} else {
		err = t.tx.Rollback()
		if errors.Is(err, sql.ErrTxDone) {
			err = nil
		}
	}

	if closeErr := t.conn.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	t.release()
	return err
}

type txContextKey struct{}

// WithTx attaches tx to ctx.
func WithTx(ctx context.Context, tx *Tx) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// FromContext returns the request transaction, if one was opened.
func FromContext(ctx context.Context) (*Tx, bool) {
	tx, ok := ctx.Value(txContextKey{}).(*Tx)
	return tx, ok && tx != nil
}
