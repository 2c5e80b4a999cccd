package profileauth

import (
	"bytes"
	"errors"
	"strings"
	"time"
)

// Config is the complete engine configuration. Build one with
// DefaultConfig, adjust it, and hand it to Builder.WithConfig. The engine
// keeps its own copy; later changes to the caller's value have no effect.
type Config struct {
	JWT          JWTConfig
	Session      SessionConfig
	Password     PasswordConfig
	Verification VerificationConfig
	Security     SecurityConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures the two token classes. Access and refresh tokens
// must be signed with different secrets (or key pairs).
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"

	AccessSecret  []byte
	RefreshSecret []byte

	// Ed25519 key material, raw or PEM.
	AccessPrivateKey  []byte
	AccessPublicKey   []byte
	RefreshPrivateKey []byte
	RefreshPublicKey  []byte

	Issuer   string
	Audience string
	Leeway   time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls refresh-state storage and the HTTP cookies that
// carry the token pair.
type SessionConfig struct {
	RedisPrefix       string
	AccessCookieName  string
	RefreshCookieName string
	CookiePath        string
	CookieDomain      string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	// MinLength is the minimum password length in bytes. Only matching
	// password and repeat are required by default; ProductionMode asks for 8.
	MinLength int
	// UpgradeOnLogin rehashes legacy or weaker hashes after a successful sign-in.
	UpgradeOnLogin bool
}

/*
====================================
VERIFICATION CONFIG
====================================
*/

// VerificationConfig configures the code-gated flows. Every TTL must be
// positive: pending entries never live forever.
type VerificationConfig struct {
	KeyPrefix string

	EmailVerifyTTL    time.Duration
	ForgotPasswordTTL time.Duration
	LoginChangeTTL    time.Duration
	EmailChangeTTL    time.Duration
	PhoneChangeTTL    time.Duration
	PasswordChangeTTL time.Duration

	// LoginChangeCooldown is the minimum time between two login changes.
	LoginChangeCooldown time.Duration

	EnableScopeThrottle bool
	EnableIPThrottle    bool
	ThrottleWindow      time.Duration
	MaxRequests         int
	MaxConfirms         int
}

/*
====================================
SECURITY CONFIG
====================================
*/

type SecurityConfig struct {
	ProductionMode bool

	EnableLoginThrottle   bool
	EnableIPThrottle      bool
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration

	EnableRefreshThrottle   bool
	MaxRefreshAttempts      int
	RefreshCooldownDuration time.Duration

	EnableSignUpThrottle bool
	MaxSignUpAttempts    int
	SignUpCooldown       time.Duration
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration: 15 minute access
// tokens, 7 day refresh tokens, 15 minute verification codes and a 30 day
// login change cooldown. Secrets are left empty and must be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "hs256",
		},
		Session: SessionConfig{
			RedisPrefix:       "pa",
			AccessCookieName:  "access_token",
			RefreshCookieName: "refresh_token",
			CookiePath:        "/",
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			MinLength:      1,
			UpgradeOnLogin: true,
		},
		Verification: VerificationConfig{
			EmailVerifyTTL:      15 * time.Minute,
			ForgotPasswordTTL:   15 * time.Minute,
			LoginChangeTTL:      15 * time.Minute,
			EmailChangeTTL:      15 * time.Minute,
			PhoneChangeTTL:      15 * time.Minute,
			PasswordChangeTTL:   15 * time.Minute,
			LoginChangeCooldown: 30 * 24 * time.Hour,
			EnableScopeThrottle: true,
			EnableIPThrottle:    true,
			ThrottleWindow:      15 * time.Minute,
			MaxRequests:         5,
			MaxConfirms:         10,
		},
		Security: SecurityConfig{
			ProductionMode:          false,
			EnableLoginThrottle:     true,
			EnableIPThrottle:        false,
			MaxLoginAttempts:        10,
			LoginCooldownDuration:   15 * time.Minute,
			EnableRefreshThrottle:   false,
			MaxRefreshAttempts:      60,
			RefreshCooldownDuration: time.Minute,
			EnableSignUpThrottle:    true,
			MaxSignUpAttempts:       5,
			SignUpCooldown:          15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

// HighSecurityConfig tightens DefaultConfig for production: production mode
// on, 5 minute access tokens, IP throttles on, audit and metrics on.
func HighSecurityConfig() Config {
	cfg := defaultConfig()
	cfg.Security.ProductionMode = true
	cfg.JWT.AccessTTL = 5 * time.Minute
	cfg.JWT.SigningMethod = "ed25519"
	cfg.Security.EnableIPThrottle = true
	cfg.Security.EnableRefreshThrottle = true
	cfg.Password.MinLength = 12
	cfg.Audit.Enabled = true
	cfg.Metrics.Enabled = true
	cfg.Verification.MaxConfirms = 5
	return cfg
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessSecret = cloneBytes(cfg.JWT.AccessSecret)
	out.JWT.RefreshSecret = cloneBytes(cfg.JWT.RefreshSecret)
	out.JWT.AccessPrivateKey = cloneBytes(cfg.JWT.AccessPrivateKey)
	out.JWT.AccessPublicKey = cloneBytes(cfg.JWT.AccessPublicKey)
	out.JWT.RefreshPrivateKey = cloneBytes(cfg.JWT.RefreshPrivateKey)
	out.JWT.RefreshPublicKey = cloneBytes(cfg.JWT.RefreshPublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration error, or nil.
func (c *Config) Validate() error {
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be greater than AccessTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}
	if c.JWT.Audience != "" && strings.TrimSpace(c.JWT.Audience) == "" {
		return errors.New("JWT Audience must not be blank")
	}

	switch c.JWT.SigningMethod {
	case "hs256":
		if len(c.JWT.AccessSecret) == 0 || len(c.JWT.RefreshSecret) == 0 {
			return errors.New("hs256 requires AccessSecret and RefreshSecret")
		}
		if bytes.Equal(c.JWT.AccessSecret, c.JWT.RefreshSecret) {
			return errors.New("AccessSecret and RefreshSecret must differ")
		}
	case "ed25519":
		if len(c.JWT.AccessPrivateKey) == 0 || len(c.JWT.AccessPublicKey) == 0 {
			return errors.New("ed25519 requires access key pair")
		}
		if len(c.JWT.RefreshPrivateKey) == 0 || len(c.JWT.RefreshPublicKey) == 0 {
			return errors.New("ed25519 requires refresh key pair")
		}
		if bytes.Equal(c.JWT.AccessPrivateKey, c.JWT.RefreshPrivateKey) {
			return errors.New("access and refresh key pairs must differ")
		}
	default:
		return errors.New("JWT SigningMethod must be hs256 or ed25519")
	}

	if c.Session.AccessCookieName == "" || c.Session.RefreshCookieName == "" {
		return errors.New("Session cookie names must be set")
	}
	if c.Session.AccessCookieName == c.Session.RefreshCookieName {
		return errors.New("Session cookie names must differ")
	}

	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	v := c.Verification
	for name, ttl := range map[string]time.Duration{
		"EmailVerifyTTL":    v.EmailVerifyTTL,
		"ForgotPasswordTTL": v.ForgotPasswordTTL,
		"LoginChangeTTL":    v.LoginChangeTTL,
		"EmailChangeTTL":    v.EmailChangeTTL,
		"PhoneChangeTTL":    v.PhoneChangeTTL,
		"PasswordChangeTTL": v.PasswordChangeTTL,
	} {
		if ttl <= 0 {
			return errors.New("Verification " + name + " must be > 0")
		}
	}
	if v.LoginChangeCooldown < 0 {
		return errors.New("Verification LoginChangeCooldown must be >= 0")
	}
	if v.EnableScopeThrottle || v.EnableIPThrottle {
		if v.ThrottleWindow <= 0 {
			return errors.New("Verification ThrottleWindow must be > 0 when throttling")
		}
		if v.MaxRequests <= 0 || v.MaxConfirms <= 0 {
			return errors.New("Verification MaxRequests and MaxConfirms must be > 0 when throttling")
		}
	}

	s := c.Security
	if s.EnableLoginThrottle && (s.MaxLoginAttempts <= 0 || s.LoginCooldownDuration <= 0) {
		return errors.New("Security login throttle requires MaxLoginAttempts and LoginCooldownDuration > 0")
	}
	if s.EnableRefreshThrottle && (s.MaxRefreshAttempts <= 0 || s.RefreshCooldownDuration <= 0) {
		return errors.New("Security refresh throttle requires MaxRefreshAttempts and RefreshCooldownDuration > 0")
	}
	if s.EnableSignUpThrottle && (s.MaxSignUpAttempts <= 0 || s.SignUpCooldown <= 0) {
		return errors.New("Security sign-up throttle requires MaxSignUpAttempts and SignUpCooldown > 0")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	if s.ProductionMode {
		if c.JWT.AccessTTL > 15*time.Minute {
			return errors.New("ProductionMode requires JWT AccessTTL <= 15m")
		}
		if c.JWT.RefreshTTL > 30*24*time.Hour {
			return errors.New("ProductionMode requires JWT RefreshTTL <= 30d")
		}
		if c.JWT.SigningMethod == "hs256" && (len(c.JWT.AccessSecret) < 32 || len(c.JWT.RefreshSecret) < 32) {
			return errors.New("ProductionMode requires hs256 secrets >= 256 bits")
		}
		if c.Password.Memory < 64*1024 {
			return errors.New("ProductionMode requires Password Memory >= 65536 KB")
		}
		if c.Password.Time < 2 {
			return errors.New("ProductionMode requires Password Time >= 2")
		}
		if c.Password.KeyLength < 32 {
			return errors.New("ProductionMode requires Password KeyLength >= 32")
		}
		if c.Password.MinLength < 8 {
			return errors.New("ProductionMode requires Password MinLength >= 8")
		}
		if !s.EnableLoginThrottle {
			return errors.New("ProductionMode requires the login throttle")
		}
		for _, ttl := range []time.Duration{v.EmailVerifyTTL, v.ForgotPasswordTTL, v.LoginChangeTTL, v.EmailChangeTTL, v.PhoneChangeTTL, v.PasswordChangeTTL} {
			if ttl > time.Hour {
				return errors.New("ProductionMode requires verification TTLs <= 1h")
			}
		}
	}

	return nil
}
