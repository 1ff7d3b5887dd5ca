package internaldefs

import (
	goGuard "github.com/MrEthical07/goGuard"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   goGuard.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   goGuard.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter exported for AuditDropped.
const (
	AuditDroppedName = "goguard_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."
)

var CounterDefs = []CounterDef{
	{ID: goGuard.MetricLogin, Name: "goguard_login_total", Help: "Sessions established by login."},
	{ID: goGuard.MetricLogout, Name: "goguard_logout_total", Help: "Sessions ended by logout."},
	{ID: goGuard.MetricSessionWriteFailed, Name: "goguard_session_write_failed_total", Help: "Session store writes that failed."},
	{ID: goGuard.MetricSessionDangling, Name: "goguard_session_dangling_total", Help: "Sessions referencing a user the backend no longer has."},
	{ID: goGuard.MetricSessionExpired, Name: "goguard_session_expired_total", Help: "Sessions discarded on load as expired or invalidated."},
	{ID: goGuard.MetricSessionLoadFailed, Name: "goguard_session_load_failed_total", Help: "Session loads that failed and fell back to anonymous."},
	{ID: goGuard.MetricCheckAllowed, Name: "goguard_check_allowed_total", Help: "Requirement checks that allowed the request."},
	{ID: goGuard.MetricCheckDenied, Name: "goguard_check_denied_total", Help: "Requirement checks that denied the request."},
	{ID: goGuard.MetricBanCheck, Name: "goguard_ban_check_total", Help: "Ban lookups sent to the backend."},
	{ID: goGuard.MetricBanCacheHit, Name: "goguard_ban_cache_hit_total", Help: "Ban checks answered from the session cache."},
	{ID: goGuard.MetricBanEnforced, Name: "goguard_ban_enforced_total", Help: "Requests denied because the user is banned."},
	{ID: goGuard.MetricReauthSuccess, Name: "goguard_reauth_success_total", Help: "Successful password re-authentications."},
	{ID: goGuard.MetricReauthFailure, Name: "goguard_reauth_failure_total", Help: "Failed password re-authentications."},
	{ID: goGuard.MetricTOTPSuccess, Name: "goguard_totp_success_total", Help: "Successful TOTP confirmations."},
	{ID: goGuard.MetricTOTPFailure, Name: "goguard_totp_failure_total", Help: "Failed TOTP confirmations."},
	{ID: goGuard.MetricOAuthFound, Name: "goguard_oauth_found_total", Help: "OAuth logins resolved to an existing link."},
	{ID: goGuard.MetricOAuthLinked, Name: "goguard_oauth_linked_total", Help: "OAuth logins linked to an existing account by email."},
	{ID: goGuard.MetricOAuthCreated, Name: "goguard_oauth_created_total", Help: "Accounts created from OAuth logins."},
	{ID: goGuard.MetricOAuthFailed, Name: "goguard_oauth_failed_total", Help: "OAuth callbacks that failed."},
	{ID: goGuard.MetricCSRFRejected, Name: "goguard_csrf_rejected_total", Help: "OAuth callbacks rejected for an unknown or reused state token."},
	{ID: goGuard.MetricHookFailed, Name: "goguard_hook_failed_total", Help: "Login or logout hooks that returned an error."},
}

var HistogramDefs = []HistogramDef{
	{ID: goGuard.MetricCheckLatency, Name: "goguard_check_latency_seconds", Help: "Requirement evaluation latency."},
}

// HistogramBounds are the bucket upper bounds in seconds, matching the
// engine's millisecond buckets. The last engine bucket is +Inf.
var HistogramBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters that
// flatten buckets into separate instruments.
var HistogramBoundSuffix = []string{"0_005", "0_01", "0_025", "0_05", "0_1", "0_25", "0_5", "inf"}

// NormalizeBuckets pads or truncates raw to eight buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i, v := range raw {
		running += v
		out[i] = running
	}
	return out
}
