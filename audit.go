package tenantauth

import (
	"context"

	"github.com/MrEthical07/tenantauth/internal/audit"
	"github.com/MrEthical07/tenantauth/scope"
)

// AuditEvent is re-exported from internal/audit.
type AuditEvent = audit.Event

// AuditStats counts delivered, dropped and failed audit events.
type AuditStats = audit.Stats

// AuditSink receives audit events.
type AuditSink = audit.Sink

type (
	NoOpSink       = audit.NoOpSink
	ChannelSink    = audit.ChannelSink
	JSONWriterSink = audit.JSONWriterSink
	SlogSink       = audit.SlogSink
)

var (
	NewChannelSink    = audit.NewChannelSink
	NewJSONWriterSink = audit.NewJSONWriterSink
	NewSlogSink       = audit.NewSlogSink
)

func (e *Engine) emitAudit(ctx context.Context, typ audit.Type, s scope.Scope, userID, sessionID string, success bool, code Code) {
	if e.audit == nil {
		return
	}
	e.audit.Emit(ctx, audit.Event{
		Timestamp: e.now().UTC(),
		Type:      typ,
		UserID:    userID,
		Tenant:    s.String(),
		SessionID: sessionID,
		RequestID: RequestIDFromContext(ctx),
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Code:      string(code),
	})
}

// AuditDropped reports events lost to a full audit buffer.
func (e *Engine) AuditDropped() uint64 { return e.audit.Stats().Dropped }

// AuditStats reports the audit dispatcher counters. A disabled dispatcher
// reports zeros.
func (e *Engine) AuditStats() AuditStats { return e.audit.Stats() }

// TransactionsInFlight reports request transactions currently holding a
// pooled connection.
func (e *Engine) TransactionsInFlight() int64 { return e.txc.InFlight() }
