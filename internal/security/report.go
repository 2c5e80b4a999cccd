package security

import "time"

type PasswordReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

type Report struct {
	ProductionMode        bool
	SigningAlgorithm      string
	AccessTTL             time.Duration
	RefreshTTL            time.Duration
	Argon2                PasswordReport
	PasswordMinLength     int
	RefreshRotation       bool
	RefreshHashedAtRest   bool
	LoginThrottleActive   bool
	RefreshThrottleActive bool
	SignUpThrottleActive  bool
	VerificationThrottle  bool
	LongestCodeTTL        time.Duration
	LoginChangeCooldown   time.Duration
	AuditEnabled          bool
	SecureCookies         bool
	WeakSettings          []string
}

type ReportInput struct {
	ProductionMode        bool
	SigningAlgorithm      string
	AccessTTL             time.Duration
	RefreshTTL            time.Duration
	Password              PasswordReport
	PasswordMinLength     int
	EnableLoginThrottle   bool
	MaxLoginAttempts      int
	LoginCooldown         time.Duration
	EnableRefreshThrottle bool
	EnableSignUpThrottle  bool
	EnableScopeThrottle   bool
	EnableIPThrottle      bool
	CodeTTLs              []time.Duration
	LoginChangeCooldown   time.Duration
	AuditEnabled          bool
}

// BuildReport summarizes input. WeakSettings lists short codes for settings
// that are acceptable in development but not recommended in production.
func BuildReport(input ReportInput) Report {
	loginThrottle := input.EnableLoginThrottle &&
		input.MaxLoginAttempts > 0 &&
		input.LoginCooldown > 0

	var longest time.Duration
	for _, ttl := range input.CodeTTLs {
		if ttl > longest {
			longest = ttl
		}
	}

	var weak []string
	if !loginThrottle {
		weak = append(weak, "login_throttle_off")
	}
	if !input.EnableScopeThrottle && !input.EnableIPThrottle {
		weak = append(weak, "verification_throttle_off")
	}
	if input.AccessTTL > 15*time.Minute {
		weak = append(weak, "long_access_ttl")
	}
	if longest > time.Hour {
		weak = append(weak, "long_code_ttl")
	}
	if input.Password.Memory < 64*1024 || input.Password.Time < 2 {
		weak = append(weak, "weak_argon2")
	}
	if input.PasswordMinLength < 8 {
		weak = append(weak, "short_password_min")
	}
	if !input.ProductionMode {
		weak = append(weak, "insecure_cookies")
	}

	return Report{
		ProductionMode:        input.ProductionMode,
		SigningAlgorithm:      input.SigningAlgorithm,
		AccessTTL:             input.AccessTTL,
		RefreshTTL:            input.RefreshTTL,
		Argon2:                input.Password,
		PasswordMinLength:     input.PasswordMinLength,
		RefreshRotation:       true,
		RefreshHashedAtRest:   true,
		LoginThrottleActive:   loginThrottle,
		RefreshThrottleActive: input.EnableRefreshThrottle,
		SignUpThrottleActive:  input.EnableSignUpThrottle,
		VerificationThrottle:  input.EnableScopeThrottle || input.EnableIPThrottle,
		LongestCodeTTL:        longest,
		LoginChangeCooldown:   input.LoginChangeCooldown,
		AuditEnabled:          input.AuditEnabled,
		SecureCookies:         input.ProductionMode,
		WeakSettings:          weak,
	}
}
