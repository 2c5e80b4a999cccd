package profileauth

import "time"

// LintWarning is one advisory finding about a Config that passed Validate.
type LintWarning struct {
	Code    string
	Message string
}

// LintResult is the list of warnings produced by Lint.
type LintResult []LintWarning

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	out := make([]string, 0, len(r))
	for _, w := range r {
		out = append(out, w.Code)
	}
	return out
}

// Lint reports settings that are valid but risky. It never fails; call
// Validate first for hard errors.
func (c *Config) Lint() LintResult {
	var ws LintResult
	add := func(code, msg string) {
		ws = append(ws, LintWarning{Code: code, Message: msg})
	}

	if c.JWT.Leeway > time.Minute {
		add("leeway_large", "JWT leeway above 1m widens the replay window of expired tokens")
	}
	if c.JWT.AccessTTL > 15*time.Minute {
		add("access_ttl_long", "access tokens live longer than 15m")
	}
	if c.JWT.RefreshTTL > 30*24*time.Hour {
		add("refresh_ttl_long", "refresh tokens live longer than 30d")
	}
	if c.JWT.SigningMethod == "hs256" {
		add("hs256_in_use", "hs256 requires every verifier to hold the signing secret")
	}
	if !c.Security.EnableLoginThrottle && !c.Security.EnableRefreshThrottle &&
		!c.Verification.EnableScopeThrottle && !c.Verification.EnableIPThrottle {
		add("rate_limits_disabled", "all throttles are disabled")
	}
	if c.Security.EnableLoginThrottle && !c.Security.EnableIPThrottle {
		add("ip_throttle_disabled", "login throttle counts per identifier only")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", "audit events are not recorded")
	}
	v := c.Verification
	for _, ttl := range []time.Duration{v.EmailVerifyTTL, v.ForgotPasswordTTL, v.LoginChangeTTL, v.EmailChangeTTL, v.PhoneChangeTTL, v.PasswordChangeTTL} {
		if ttl > time.Hour {
			add("verification_ttl_long", "a verification code lives longer than 1h")
			break
		}
	}
	if c.Password.MinLength < 8 {
		add("password_min_short", "passwords shorter than 8 bytes are accepted")
	}
	if v.LoginChangeCooldown == 0 {
		add("login_change_cooldown_disabled", "login can be changed without cooldown")
	}

	return ws
}
