package profileauth

import (
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/profileauth/internal"
	"github.com/MrEthical07/profileauth/internal/limiters"
	"github.com/MrEthical07/profileauth/internal/rate"
	"github.com/MrEthical07/profileauth/internal/stores"
	"github.com/MrEthical07/profileauth/jwt"
	"github.com/MrEthical07/profileauth/notify"
	"github.com/MrEthical07/profileauth/password"
	"github.com/MrEthical07/profileauth/session"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. Configure it once during initialization;
// Build may be called only once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	userProvider   UserProvider
	notifier       notify.Sender
	sessionBackend session.Backend
	auditSink      AuditSink
	logger         *slog.Logger
	codeGenerator  func() (string, error)
	now            func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client used for pending verification entries,
// throttles and, unless WithSessionBackend is used, refresh state.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithNotifier sets the sender used to deliver verification codes.
func (b *Builder) WithNotifier(sender notify.Sender) *Builder {
	b.notifier = sender
	return b
}

// WithSessionBackend overrides where refresh-token digests live.
func (b *Builder) WithSessionBackend(backend session.Backend) *Builder {
	b.sessionBackend = backend
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the logger for best-effort failures. Defaults to
// slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithCodeGenerator replaces the 6-digit code source. Intended for tests.
func (b *Builder) WithCodeGenerator(gen func() (string, error)) *Builder {
	b.codeGenerator = gen
	return b
}

// WithClock replaces time.Now for token issuance, token expiry and the
// login change cooldown.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}
	if b.notifier == nil {
		return nil, errors.New("notifier required")
	}

	engine := &Engine{
		config:       cfg,
		userProvider: b.userProvider,
		notifier:     b.notifier,
		logger:       b.logger,
		newCode:      b.codeGenerator,
		now:          b.now,
	}
	if engine.logger == nil {
		engine.logger = slog.Default()
	}
	if engine.now == nil {
		engine.now = time.Now
	}
	if engine.newCode == nil {
		engine.newCode = internal.NewCode
	}

	// -------- TOKENS --------
	access, err := jwt.NewManager(jwt.Config{
		TTL:           cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		Secret:        cloneBytes(cfg.JWT.AccessSecret),
		PrivateKey:    cloneBytes(cfg.JWT.AccessPrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.AccessPublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		Now:           engine.now,
	})
	if err != nil {
		return nil, err
	}
	refresh, err := jwt.NewManager(jwt.Config{
		TTL:           cfg.JWT.RefreshTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		Secret:        cloneBytes(cfg.JWT.RefreshSecret),
		PrivateKey:    cloneBytes(cfg.JWT.RefreshPrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.RefreshPublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		Now:           engine.now,
	})
	if err != nil {
		return nil, err
	}
	engine.accessTokens = access
	engine.refreshTokens = refresh

	// -------- SESSIONS --------
	backend := b.sessionBackend
	if backend == nil {
		backend = session.NewRedisBackend(b.redis, cfg.Session.RedisPrefix, cfg.JWT.RefreshTTL)
	}
	engine.sessions = session.NewManager(backend)

	// -------- PASSWORDS --------
	pw, err := password.NewVerifier(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	engine.passwords = pw

	// -------- VERIFICATION --------
	engine.pending = stores.NewPendingStore(b.redis, cfg.Verification.KeyPrefix)
	engine.verificationLimiter = limiters.NewVerificationLimiter(b.redis, limiters.VerificationConfig{
		EnableScopeThrottle: cfg.Verification.EnableScopeThrottle,
		EnableIPThrottle:    cfg.Verification.EnableIPThrottle,
		Window:              cfg.Verification.ThrottleWindow,
		MaxRequests:         cfg.Verification.MaxRequests,
		MaxConfirms:         cfg.Verification.MaxConfirms,
	})

	// -------- THROTTLES --------
	if cfg.Security.EnableLoginThrottle || cfg.Security.EnableRefreshThrottle {
		throttles := rate.Config{PerIP: cfg.Security.EnableIPThrottle}
		if cfg.Security.EnableLoginThrottle {
			throttles.Login = rate.Window{Max: cfg.Security.MaxLoginAttempts, Length: cfg.Security.LoginCooldownDuration}
		}
		if cfg.Security.EnableRefreshThrottle {
			throttles.Refresh = rate.Window{Max: cfg.Security.MaxRefreshAttempts, Length: cfg.Security.RefreshCooldownDuration}
		}
		engine.rateLimiter = rate.New(b.redis, throttles)
	}
	if cfg.Security.EnableSignUpThrottle {
		engine.signUpLimiter = limiters.NewSignUpLimiter(b.redis, limiters.SignUpConfig{
			PerEmail:    true,
			PerIP:       true,
			MaxAttempts: cfg.Security.MaxSignUpAttempts,
			Window:      cfg.Security.SignUpCooldown,
		})
	}

	engine.audit = newAuditQueue(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.flows = engine.verificationFlows()

	b.built = true

	return engine, nil
}
