package profileauth

import (
	"testing"
	"time"
)

func validTestConfig() Config {
	cfg := defaultConfig()
	cfg.JWT.AccessSecret = []byte("access-secret-access-secret-0001")
	cfg.JWT.RefreshSecret = []byte("refresh-secret-refresh-secret-01")
	return cfg
}

func TestDefaultConfigValuesMatchProtocol(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.JWT.AccessTTL != 15*time.Minute || cfg.JWT.RefreshTTL != 7*24*time.Hour {
		t.Fatalf("unexpected token TTLs: %v / %v", cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	}
	if cfg.Session.AccessCookieName != "access_token" || cfg.Session.RefreshCookieName != "refresh_token" {
		t.Fatalf("unexpected cookie names: %+v", cfg.Session)
	}
	if cfg.Verification.LoginChangeCooldown != 30*24*time.Hour {
		t.Fatalf("unexpected cooldown %v", cfg.Verification.LoginChangeCooldown)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{name: "baseline", mutate: func(*Config) {}, wantValid: true},
		{name: "missing secrets", mutate: func(c *Config) { c.JWT.AccessSecret = nil }, wantValid: false},
		{name: "shared secret", mutate: func(c *Config) { c.JWT.RefreshSecret = c.JWT.AccessSecret }, wantValid: false},
		{name: "refresh not longer than access", mutate: func(c *Config) { c.JWT.RefreshTTL = c.JWT.AccessTTL }, wantValid: false},
		{name: "leeway too large", mutate: func(c *Config) { c.JWT.Leeway = 3 * time.Minute }, wantValid: false},
		{name: "blank audience", mutate: func(c *Config) { c.JWT.Audience = "  " }, wantValid: false},
		{name: "unsupported signing", mutate: func(c *Config) { c.JWT.SigningMethod = "rs256" }, wantValid: false},
		{name: "ed25519 without keys", mutate: func(c *Config) { c.JWT.SigningMethod = "ed25519" }, wantValid: false},
		{name: "zero verification ttl", mutate: func(c *Config) { c.Verification.PhoneChangeTTL = 0 }, wantValid: false},
		{name: "same cookie names", mutate: func(c *Config) { c.Session.RefreshCookieName = "access_token" }, wantValid: false},
		{name: "zero min length", mutate: func(c *Config) { c.Password.MinLength = 0 }, wantValid: false},
		{name: "short min length allowed", mutate: func(c *Config) { c.Password.MinLength = 1 }, wantValid: true},
		{name: "throttle without window", mutate: func(c *Config) { c.Verification.ThrottleWindow = 0 }, wantValid: false},
		{name: "login throttle without budget", mutate: func(c *Config) { c.Security.MaxLoginAttempts = 0 }, wantValid: false},
		{
			name: "production with weak secrets",
			mutate: func(c *Config) {
				c.Security.ProductionMode = true
				c.JWT.AccessSecret = []byte("short")
			},
			wantValid: false,
		},
		{
			name: "production with default min length",
			mutate: func(c *Config) {
				c.Security.ProductionMode = true
				c.Password.MinLength = 1
			},
			wantValid: false,
		},
		{
			name: "production with long verification ttl",
			mutate: func(c *Config) {
				c.Security.ProductionMode = true
				c.Verification.EmailVerifyTTL = 2 * time.Hour
			},
			wantValid: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validTestConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tc.wantValid && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestCloneConfigCopiesSecrets(t *testing.T) {
	cfg := validTestConfig()
	clone := cloneConfig(cfg)
	cfg.JWT.AccessSecret[0] = 'X'
	if clone.JWT.AccessSecret[0] == 'X' {
		t.Fatal("clone must not share secret backing arrays")
	}
}
