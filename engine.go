package profileauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/profileauth/internal/flows"
	"github.com/MrEthical07/profileauth/internal/limiters"
	"github.com/MrEthical07/profileauth/internal/rate"
	"github.com/MrEthical07/profileauth/internal/stores"
	"github.com/MrEthical07/profileauth/jwt"
	"github.com/MrEthical07/profileauth/notify"
	"github.com/MrEthical07/profileauth/password"
	"github.com/MrEthical07/profileauth/session"
)

// Engine runs the session protocol and the verification flows. Build it
// with New().…Build(); it is safe for concurrent use afterwards.
type Engine struct {
	config              Config
	accessTokens        *jwt.Manager
	refreshTokens       *jwt.Manager
	sessions            *session.Manager
	passwords           *password.Verifier
	pending             *stores.PendingStore
	verificationLimiter *limiters.VerificationLimiter
	signUpLimiter       *limiters.SignUpLimiter
	rateLimiter         *rate.Limiter
	audit               *auditQueue
	metrics             *Metrics
	userProvider        UserProvider
	notifier            notify.Sender
	logger              *slog.Logger
	newCode             func() (string, error)
	now                 func() time.Time
	flows               verificationFlows

	dummyOnce sync.Once
	dummyHash string
}

// Close flushes the audit queue.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// AccessTTL is the lifetime of access tokens and of the access cookie.
func (e *Engine) AccessTTL() time.Duration { return e.config.JWT.AccessTTL }

// RefreshTTL is the lifetime of refresh tokens and of the refresh cookie.
func (e *Engine) RefreshTTL() time.Duration { return e.config.JWT.RefreshTTL }

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

/*
====================================
SIGN IN / LOGOUT
====================================
*/

// SignIn verifies email and password and starts a new session. An unknown
// email and a wrong password both return ErrInvalidCredentials.
func (e *Engine) SignIn(ctx context.Context, email, pass string) (TokenPair, error) {
	if e == nil || e.userProvider == nil {
		return TokenPair{}, ErrEngineNotReady
	}
	email = strings.TrimSpace(email)
	if email == "" || pass == "" {
		e.metricInc(MetricSignInFailure)
		e.emitAudit(ctx, auditEventSignInFailure, false, "", ErrInvalidCredentials, nil)
		return TokenPair{}, ErrInvalidCredentials
	}

	ip := clientIPFromContext(ctx)
	if e.loginThrottled() {
		if err := e.rateLimiter.CheckLogin(ctx, email, ip); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				e.metricInc(MetricSignInRateLimited)
				e.emitAudit(ctx, auditEventSignInRateLimited, false, "", ErrLoginRateLimited, nil)
				return TokenPair{}, ErrLoginRateLimited
			}
			return TokenPair{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}

	user, err := e.userProvider.GetUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrProviderNotFound) {
			return TokenPair{}, e.providerError(err)
		}
		// Spend the same argon2 work as a real check.
		_, _ = e.passwords.Verify(pass, e.dummyPasswordHash())
		return TokenPair{}, e.signInFailed(ctx, "", email, ip)
	}

	ok, err := e.passwords.Verify(pass, user.PasswordHash)
	if err != nil || !ok {
		if err != nil {
			e.logger.Warn("stored password hash unusable", "user_id", user.UserID, "error", err)
		}
		return TokenPair{}, e.signInFailed(ctx, user.UserID, email, ip)
	}

	if e.loginThrottled() {
		if err := e.rateLimiter.ClearLogin(ctx, email, ip); err != nil {
			e.logger.Warn("login throttle reset failed", "error", err)
		}
	}

	if e.config.Password.UpgradeOnLogin && e.passwords.NeedsRehash(user.PasswordHash) {
		e.upgradePasswordHash(ctx, user.UserID, pass)
	}

	pair, err := e.startSession(ctx, user.UserID, user.Login)
	if err != nil {
		e.metricInc(MetricSignInFailure)
		e.emitAudit(ctx, auditEventSignInFailure, false, user.UserID, err, nil)
		return TokenPair{}, err
	}

	e.metricInc(MetricSignInSuccess)
	e.emitAudit(ctx, auditEventSignInSuccess, true, user.UserID, nil, nil)
	return pair, nil
}

func (e *Engine) signInFailed(ctx context.Context, userID, email, ip string) error {
	if e.loginThrottled() {
		if err := e.rateLimiter.RecordLoginFailure(ctx, email, ip); err != nil && !errors.Is(err, rate.ErrRateLimited) {
			e.logger.Warn("login throttle increment failed", "error", err)
		}
	}
	e.metricInc(MetricSignInFailure)
	e.emitAudit(ctx, auditEventSignInFailure, false, userID, ErrInvalidCredentials, nil)
	return ErrInvalidCredentials
}

func (e *Engine) loginThrottled() bool {
	return e.rateLimiter != nil && e.config.Security.EnableLoginThrottle
}

func (e *Engine) upgradePasswordHash(ctx context.Context, userID, pass string) {
	hash, err := e.passwords.Hash(pass)
	if err != nil {
		e.logger.Warn("password rehash failed", "user_id", userID, "error", err)
		return
	}
	if _, err := e.userProvider.UpdateUser(ctx, userID, UserUpdate{PasswordHash: &hash}); err != nil {
		e.logger.Warn("password rehash store failed", "user_id", userID, "error", err)
	}
}

func (e *Engine) dummyPasswordHash() string {
	e.dummyOnce.Do(func() {
		h, err := e.passwords.Hash("profileauth-timing-equalizer")
		if err == nil {
			e.dummyHash = h
		}
	})
	return e.dummyHash
}

// Logout clears the user's refresh state. Outstanding access tokens stay
// valid until they expire; the next refresh fails with ErrSessionStale.
func (e *Engine) Logout(ctx context.Context, userID string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	if userID == "" {
		return ErrAuthorizationRequired
	}
	if err := e.sessions.Invalidate(ctx, userID); err != nil {
		e.emitAudit(ctx, auditEventLogout, false, userID, err, nil)
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, userID, nil, nil)
	return nil
}

/*
====================================
TOKENS
====================================
*/

func (e *Engine) issuePair(userID, login string) (string, string, error) {
	access, _, err := e.accessTokens.Issue(userID, login)
	if err != nil {
		return "", "", err
	}
	refresh, _, err := e.refreshTokens.Issue(userID, login)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// startSession mints a pair and makes its refresh token the only live one.
func (e *Engine) startSession(ctx context.Context, userID, login string) (TokenPair, error) {
	access, refresh, err := e.issuePair(userID, login)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue tokens: %w", err)
	}
	if err := e.sessions.Rotate(ctx, userID, refresh); err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (e *Engine) refreshDeps() flows.RefreshDeps {
	deps := flows.RefreshDeps{
		ParseRefresh: func(token string) (string, string, error) {
			claims, err := e.refreshTokens.Parse(token)
			if err != nil {
				return "", "", err
			}
			return claims.Subject, claims.Login, nil
		},
		IssuePair: e.issuePair,
		Exchange:  e.sessions.Exchange,
		NoSession: session.ErrNoSession,
		Mismatch:  session.ErrMismatch,
	}
	if e.rateLimiter != nil {
		deps.RateLimiter = e.rateLimiter
	}
	return deps
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// single-use: a second exchange of it returns ErrSessionStale.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if e == nil || e.sessions == nil {
		return TokenPair{}, ErrEngineNotReady
	}

	res := flows.RunRefresh(ctx, refreshToken, e.refreshDeps())
	if res.Failure != flows.RefreshFailureNone {
		return TokenPair{}, e.refreshFailed(ctx, res)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, res.UserID, nil, nil)
	return TokenPair{AccessToken: res.AccessToken, RefreshToken: res.RefreshToken}, nil
}

func (e *Engine) refreshFailed(ctx context.Context, res flows.RefreshResult) error {
	var mapped error
	switch res.Failure {
	case flows.RefreshFailureMissing:
		mapped = ErrAuthorizationRequired
	case flows.RefreshFailureDecode:
		mapped = ErrSessionExpired
	case flows.RefreshFailureRateLimited:
		if errors.Is(res.Err, rate.ErrRateLimited) {
			e.metricInc(MetricRefreshRateLimited)
			e.emitAudit(ctx, auditEventRefreshRateLimited, false, res.UserID, ErrRefreshRateLimited, nil)
			return ErrRefreshRateLimited
		}
		mapped = fmt.Errorf("%w: %v", ErrBackendUnavailable, res.Err)
	case flows.RefreshFailureMismatch:
		e.metricInc(MetricRefreshReuseDetected)
		e.emitAudit(ctx, auditEventRefreshReuseDetected, false, res.UserID, ErrSessionStale, nil)
		mapped = ErrSessionStale
	case flows.RefreshFailureNoSession:
		mapped = ErrSessionStale
	case flows.RefreshFailureIssue:
		mapped = fmt.Errorf("issue tokens: %w", res.Err)
	default:
		mapped = fmt.Errorf("%w: %v", ErrBackendUnavailable, res.Err)
	}

	e.metricInc(MetricRefreshFailure)
	e.emitAudit(ctx, auditEventRefreshFailure, false, res.UserID, mapped, nil)
	return mapped
}

/*
====================================
AUTHENTICATE
====================================
*/

// Authenticate runs the request authenticator over the presented tokens.
// A valid access token admits directly. An expired or absent one falls
// back to the refresh token; on success the returned AuthResult carries the
// rotated pair, which the caller must send back to the client.
func (e *Engine) Authenticate(ctx context.Context, creds Credentials) (*AuthResult, error) {
	if e == nil || e.accessTokens == nil {
		return nil, ErrEngineNotReady
	}

	var start time.Time
	if e.metrics != nil && e.metrics.LatencyEnabled() {
		start = time.Now()
		defer func() {
			e.metrics.Observe(MetricAuthenticateLatency, time.Since(start))
		}()
	}

	res := flows.RunAuthenticate(ctx, creds.AccessToken, creds.RefreshToken, flows.AuthenticateDeps{
		ParseAccess: func(token string) (string, string, error) {
			claims, err := e.accessTokens.Parse(token)
			if err != nil {
				return "", "", err
			}
			return claims.Subject, claims.Login, nil
		},
		Expired: func(err error) bool { return errors.Is(err, jwt.ErrTokenExpired) },
		Refresh: e.refreshDeps(),
	})

	switch res.Failure {
	case flows.AuthFailureNone:
	case flows.AuthFailureAccessInvalid:
		e.metricInc(MetricAuthenticateRejected)
		e.emitAudit(ctx, auditEventAuthenticateRejected, false, "", ErrTokenInvalid, nil)
		return nil, ErrTokenInvalid
	default:
		e.metricInc(MetricAuthenticateRejected)
		return nil, e.refreshFailed(ctx, res.Refresh)
	}

	out := &AuthResult{
		UserID: res.UserID,
		Login:  res.Login,
		State:  res.State.String(),
	}
	if res.Refreshed {
		out.Tokens = &TokenPair{
			AccessToken:  res.Refresh.AccessToken,
			RefreshToken: res.Refresh.RefreshToken,
		}
		e.metricInc(MetricSilentRefresh)
		e.emitAudit(ctx, auditEventSilentRefresh, true, res.UserID, nil, nil)
	}
	e.metricInc(MetricAuthenticateAdmitted)
	return out, nil
}

/*
====================================
HELPERS
====================================
*/

// providerError maps a UserProvider failure onto the public error set.
func (e *Engine) providerError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, ErrProviderNotFound):
		return ErrUserNotFound
	case errors.Is(err, ErrProviderDuplicate):
		return ErrConcurrentUpdate
	default:
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
}

func (e *Engine) loadUser(ctx context.Context, userID string) (UserRecord, error) {
	if e == nil || e.userProvider == nil {
		return UserRecord{}, ErrEngineNotReady
	}
	if userID == "" {
		return UserRecord{}, ErrAuthorizationRequired
	}
	user, err := e.userProvider.GetUserByID(ctx, userID)
	if err != nil {
		return UserRecord{}, e.providerError(err)
	}
	return user, nil
}

func (e *Engine) checkNewPassword(pass, repeat string) error {
	if pass != repeat {
		return ErrPasswordMismatch
	}
	if len(pass) < e.config.Password.MinLength || len(pass) > password.DefaultMaxPasswordBytes {
		return ErrPasswordPolicy
	}
	return nil
}
