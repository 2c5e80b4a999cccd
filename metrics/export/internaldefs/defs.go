package internaldefs

import (
	"strings"

	"github.com/MrEthical07/profileauth"
)

// Def binds an engine metric to its exported family name.
type Def struct {
	ID   profileauth.MetricID
	Name string
	Help string
}

// Event is Name without the profileauth_ prefix and _total suffix. OTel
// uses it as the "event" attribute value.
func (d Def) Event() string {
	return strings.TrimSuffix(strings.TrimPrefix(d.Name, Namespace+"_"), "_total")
}

// Namespace prefixes every family name.
const Namespace = "profileauth"

// CounterDefs lists every exported counter in render order.
var CounterDefs = []Def{
	{ID: profileauth.MetricSignUpSuccess, Name: "profileauth_sign_up_success_total", Help: "Successful sign-ups."},
	{ID: profileauth.MetricSignUpDuplicate, Name: "profileauth_sign_up_duplicate_total", Help: "Sign-ups rejected because the login or email exists."},
	{ID: profileauth.MetricSignUpRateLimited, Name: "profileauth_sign_up_rate_limited_total", Help: "Rate-limited sign-up attempts."},
	{ID: profileauth.MetricSignInSuccess, Name: "profileauth_sign_in_success_total", Help: "Successful sign-ins."},
	{ID: profileauth.MetricSignInFailure, Name: "profileauth_sign_in_failure_total", Help: "Failed sign-ins."},
	{ID: profileauth.MetricSignInRateLimited, Name: "profileauth_sign_in_rate_limited_total", Help: "Rate-limited sign-in attempts."},
	{ID: profileauth.MetricRefreshSuccess, Name: "profileauth_refresh_success_total", Help: "Successful refresh exchanges."},
	{ID: profileauth.MetricRefreshFailure, Name: "profileauth_refresh_failure_total", Help: "Failed refresh exchanges."},
	{ID: profileauth.MetricRefreshReuseDetected, Name: "profileauth_refresh_reuse_detected_total", Help: "Rotated-out refresh tokens presented again."},
	{ID: profileauth.MetricRefreshRateLimited, Name: "profileauth_refresh_rate_limited_total", Help: "Rate-limited refresh attempts."},
	{ID: profileauth.MetricSilentRefresh, Name: "profileauth_silent_refresh_total", Help: "Requests admitted through a silent refresh."},
	{ID: profileauth.MetricAuthenticateAdmitted, Name: "profileauth_authenticate_admitted_total", Help: "Requests admitted by the authenticator."},
	{ID: profileauth.MetricAuthenticateRejected, Name: "profileauth_authenticate_rejected_total", Help: "Requests rejected by the authenticator."},
	{ID: profileauth.MetricLogout, Name: "profileauth_logout_total", Help: "Logouts."},
	{ID: profileauth.MetricVerificationRequest, Name: "profileauth_verification_request_total", Help: "Verification codes issued and delivered."},
	{ID: profileauth.MetricVerificationRequestFailure, Name: "profileauth_verification_request_failure_total", Help: "Verification requests that failed before delivery."},
	{ID: profileauth.MetricVerificationDeliveryFailure, Name: "profileauth_verification_delivery_failure_total", Help: "Verification codes stored but not delivered."},
	{ID: profileauth.MetricVerificationConfirm, Name: "profileauth_verification_confirm_total", Help: "Successful verification confirms."},
	{ID: profileauth.MetricVerificationConfirmFailure, Name: "profileauth_verification_confirm_failure_total", Help: "Failed verification confirms."},
	{ID: profileauth.MetricVerificationNotFound, Name: "profileauth_verification_not_found_total", Help: "Confirms with no pending entry."},
	{ID: profileauth.MetricVerificationMismatch, Name: "profileauth_verification_mismatch_total", Help: "Confirms with a wrong code."},
	{ID: profileauth.MetricEmailVerified, Name: "profileauth_email_verified_total", Help: "Emails verified."},
	{ID: profileauth.MetricPasswordResetSuccess, Name: "profileauth_password_reset_success_total", Help: "Passwords reset after recovery."},
	{ID: profileauth.MetricLoginChangeSuccess, Name: "profileauth_login_change_success_total", Help: "Login changes applied."},
	{ID: profileauth.MetricEmailChangeSuccess, Name: "profileauth_email_change_success_total", Help: "Email changes applied."},
	{ID: profileauth.MetricPhoneChangeSuccess, Name: "profileauth_phone_change_success_total", Help: "Phone number changes applied."},
	{ID: profileauth.MetricPasswordChangeSuccess, Name: "profileauth_password_change_success_total", Help: "Password changes applied."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []Def{
	{ID: profileauth.MetricAuthenticateLatency, Name: "profileauth_authenticate_latency_seconds", Help: "Authenticate latency histogram."},
}

// AuditDroppedName is the counter for audit events dropped under backpressure.
const AuditDroppedName = "profileauth_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Audit events dropped because the audit queue was full."

// Buckets holds the upper bounds of the engine's latency buckets, in
// seconds, as rendered in the Prometheus le label.
var Buckets = [8]string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

// Cumulative pads raw to len(Buckets) and turns per-bucket counts into
// running totals. The last element is the sample count.
func Cumulative(raw []uint64) [len(Buckets)]uint64 {
	var out [len(Buckets)]uint64
	var total uint64
	for i := range out {
		if i < len(raw) {
			total += raw[i]
		}
		out[i] = total
	}
	return out
}
