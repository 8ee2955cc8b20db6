package internaldefs

import (
	"github.com/MrEthical07/tenantauth"
)

// CounterDef names one engine counter.
type CounterDef struct {
	ID   tenantauth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram.
type HistogramDef struct {
	ID   tenantauth.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: tenantauth.MetricLoginSuccess, Name: "tenantauth_login_success_total", Help: "Successful logins."},
	{ID: tenantauth.MetricLoginFailure, Name: "tenantauth_login_failure_total", Help: "Failed logins."},
	{ID: tenantauth.MetricLoginRateLimited, Name: "tenantauth_login_rate_limited_total", Help: "Logins rejected by the attempt throttle."},
	{ID: tenantauth.MetricRefreshSuccess, Name: "tenantauth_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: tenantauth.MetricRefreshFailure, Name: "tenantauth_refresh_failure_total", Help: "Rejected refresh tokens."},
	{ID: tenantauth.MetricRefreshReuseDetected, Name: "tenantauth_refresh_reuse_detected_total", Help: "Spent refresh tokens presented again."},
	{ID: tenantauth.MetricRefreshRateLimited, Name: "tenantauth_refresh_rate_limited_total", Help: "Refreshes rejected by the family throttle."},
	{ID: tenantauth.MetricSessionCreated, Name: "tenantauth_session_created_total", Help: "Created sessions."},
	{ID: tenantauth.MetricLogout, Name: "tenantauth_logout_total", Help: "Logouts."},
	{ID: tenantauth.MetricAuthenticateFailure, Name: "tenantauth_authenticate_failure_total", Help: "Access tokens that failed verification."},
	{ID: tenantauth.MetricTokenRevokedRejected, Name: "tenantauth_token_revoked_rejected_total", Help: "Blacklisted access tokens presented."},
	{ID: tenantauth.MetricRateLimitHit, Name: "tenantauth_rate_limit_hit_total", Help: "Requests denied by route rate limits."},
	{ID: tenantauth.MetricIdempotentReplay, Name: "tenantauth_idempotent_replay_total", Help: "Responses replayed for a repeated Idempotency-Key."},
	{ID: tenantauth.MetricLockContention, Name: "tenantauth_lock_contention_total", Help: "Requests that found their lock held."},
	{ID: tenantauth.MetricTxCommit, Name: "tenantauth_tx_commit_total", Help: "Committed request transactions."},
	{ID: tenantauth.MetricTxRollback, Name: "tenantauth_tx_rollback_total", Help: "Rolled back request transactions."},
}

var HistogramDefs = []HistogramDef{
	{ID: tenantauth.MetricAuthenticateLatency, Name: "tenantauth_authenticate_latency_seconds", Help: "Access token authentication latency."},
}

// Names of the gauges and counters read outside the engine snapshot.
const (
	AuditDroppedName    = "tenantauth_audit_dropped_total"
	AuditDeliveredName  = "tenantauth_audit_delivered_total"
	AuditSinkPanicsName = "tenantauth_audit_sink_panics_total"
	TxInFlightName      = "tenantauth_db_transactions_in_flight"
)

// HistogramBoundLabels renders each bucket's upper bound as an "le" label,
// the last one open-ended.
var HistogramBoundLabels = []string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
