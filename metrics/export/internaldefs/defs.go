package internaldefs

import (
	eduAuth "github.com/MrEthical07/eduAuth"
)

// CounterDef names one engine counter.
type CounterDef struct {
	ID   eduAuth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram.
type HistogramDef struct {
	ID   eduAuth.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const (
	AuditDroppedName = "eduauth_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."
)

var CounterDefs = []CounterDef{
	{ID: eduAuth.MetricLoginSuccess, Name: "eduauth_login_success_total", Help: "Successful password logins."},
	{ID: eduAuth.MetricLoginFailure, Name: "eduauth_login_failure_total", Help: "Rejected password logins."},
	{ID: eduAuth.MetricRefreshSuccess, Name: "eduauth_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: eduAuth.MetricRefreshFailure, Name: "eduauth_refresh_failure_total", Help: "Rejected refresh attempts."},
	{ID: eduAuth.MetricRefreshReuseDetected, Name: "eduauth_refresh_reuse_detected_total", Help: "Replayed refresh tokens that triggered a revoke-all."},
	{ID: eduAuth.MetricOAuthStart, Name: "eduauth_oauth_start_total", Help: "OAuth authorization redirects issued."},
	{ID: eduAuth.MetricOAuthStartFailure, Name: "eduauth_oauth_start_failure_total", Help: "OAuth starts rejected before redirect."},
	{ID: eduAuth.MetricOAuthCallbackSuccess, Name: "eduauth_oauth_callback_success_total", Help: "OAuth callbacks that issued tokens."},
	{ID: eduAuth.MetricOAuthCallbackFailure, Name: "eduauth_oauth_callback_failure_total", Help: "OAuth callbacks that failed."},
	{ID: eduAuth.MetricOAuthInvalidState, Name: "eduauth_oauth_invalid_state_total", Help: "OAuth callbacks with an unknown or expired state."},
	{ID: eduAuth.MetricOAuthUpstreamFailure, Name: "eduauth_oauth_upstream_failure_total", Help: "Identity provider exchange or profile failures."},
	{ID: eduAuth.MetricOAuthAccountCreated, Name: "eduauth_oauth_account_created_total", Help: "Accounts created from an external identity."},
	{ID: eduAuth.MetricOAuthAccountLinked, Name: "eduauth_oauth_account_linked_total", Help: "Existing accounts linked to an external identity."},
	{ID: eduAuth.MetricLogoutAll, Name: "eduauth_logout_all_total", Help: "Logout-all operations."},
	{ID: eduAuth.MetricTokensRevoked, Name: "eduauth_tokens_revoked_total", Help: "Refresh records revoked by logout-all or reuse containment."},
	{ID: eduAuth.MetricStateStoreFallback, Name: "eduauth_state_store_fallback_total", Help: "OAuth state operations served by the in-memory fallback."},
	{ID: eduAuth.MetricStateStoreBreakerOpen, Name: "eduauth_state_store_breaker_open_total", Help: "Times the state store breaker opened."},
	{ID: eduAuth.MetricStorageUnavailable, Name: "eduauth_storage_unavailable_total", Help: "Operations failed because a backing store was unavailable."},
}

var HistogramDefs = []HistogramDef{
	{ID: eduAuth.MetricValidateLatency, Name: "eduauth_validate_latency_seconds", Help: "Access token validation latency."},
	{ID: eduAuth.MetricOAuthCallbackLatency, Name: "eduauth_oauth_callback_latency_seconds", Help: "OAuth callback latency including provider round trips."},
}

// BucketCount is the engine histogram width, overflow bucket included.
const BucketCount = len(eduAuth.LatencyBounds) + 1

// HistogramUpperBounds are the finite bucket bounds in seconds.
var HistogramUpperBounds = func() []float64 {
	out := make([]float64, len(eduAuth.LatencyBounds))
	for i, d := range eduAuth.LatencyBounds {
		out[i] = d.Seconds()
	}
	return out
}()

// NormalizeBuckets copies raw into a fixed array, zero-filling missing buckets.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets converts per-bucket counts to running totals.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i, n := range raw {
		running += n
		out[i] = running
	}
	return out
}
