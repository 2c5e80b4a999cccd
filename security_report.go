package profileauth

import (
	"time"

	"github.com/MrEthical07/profileauth/internal/security"
)

// SecurityReport is a read-only snapshot of the engine's security posture,
// returned by [Engine.SecurityReport].
type SecurityReport = security.Report

// SecurityReport summarizes the active protections. It is safe to log.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	c := e.config
	v := c.Verification
	return security.BuildReport(security.ReportInput{
		ProductionMode:   c.Security.ProductionMode,
		SigningAlgorithm: c.JWT.SigningMethod,
		AccessTTL:        c.JWT.AccessTTL,
		RefreshTTL:       c.JWT.RefreshTTL,
		Password: security.PasswordReport{
			Memory:      c.Password.Memory,
			Time:        c.Password.Time,
			Parallelism: c.Password.Parallelism,
			SaltLength:  c.Password.SaltLength,
			KeyLength:   c.Password.KeyLength,
		},
		PasswordMinLength:     c.Password.MinLength,
		EnableLoginThrottle:   c.Security.EnableLoginThrottle,
		MaxLoginAttempts:      c.Security.MaxLoginAttempts,
		LoginCooldown:         c.Security.LoginCooldownDuration,
		EnableRefreshThrottle: c.Security.EnableRefreshThrottle,
		EnableSignUpThrottle:  c.Security.EnableSignUpThrottle,
		EnableScopeThrottle:   v.EnableScopeThrottle,
		EnableIPThrottle:      v.EnableIPThrottle,
		CodeTTLs: []time.Duration{
			v.EmailVerifyTTL, v.ForgotPasswordTTL, v.LoginChangeTTL,
			v.EmailChangeTTL, v.PhoneChangeTTL, v.PasswordChangeTTL,
		},
		LoginChangeCooldown: v.LoginChangeCooldown,
		AuditEnabled:        c.Audit.Enabled,
	})
}
