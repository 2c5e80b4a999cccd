package profileauth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/profileauth/notify"
)

func seedAlice(t *testing.T, env *testEnv) UserRecord {
	t.Helper()
	return env.seedUser(t, UserRecord{UserID: "u1", Login: "alice", Email: "alice@example.com"}, "correct-password-123")
}

func TestEmailVerificationFlow(t *testing.T) {
	env := newTestEnv(t)
	seedAlice(t, env)
	ctx := context.Background()

	if err := env.engine.RequestEmailVerification(ctx, "u1"); err != nil {
		t.Fatalf("RequestEmailVerification failed: %v", err)
	}
	msg := env.nextMessage(t)
	if msg.Template != "verify-email" || msg.To != "alice@example.com" {
		t.Fatalf("unexpected message %+v", msg)
	}
	code := msg.Context["code"]

	err := env.engine.ConfirmEmailVerification(ctx, "u1", wrongCode(code))
	if !errors.Is(err, ErrVerificationInvalid) {
		t.Fatalf("expected ErrVerificationInvalid, got %v", err)
	}
	if HTTPStatus(err) != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", HTTPStatus(err))
	}
	if env.users.get(t, "u1").IsEmailVerified {
		t.Fatal("wrong code must not mutate the user")
	}
	if !env.mr.Exists(FlowEmailVerify + ":u1") {
		t.Fatal("wrong code must leave the pending entry intact")
	}

	if err := env.engine.ConfirmEmailVerification(ctx, "u1", code); err != nil {
		t.Fatalf("ConfirmEmailVerification failed: %v", err)
	}
	if !env.users.get(t, "u1").IsEmailVerified {
		t.Fatal("expected email to be verified")
	}
	if env.mr.Exists(FlowEmailVerify + ":u1") {
		t.Fatal("pending entry must be consumed")
	}

	err = env.engine.ConfirmEmailVerification(ctx, "u1", code)
	if !errors.Is(err, ErrVerificationNotFound) {
		t.Fatalf("expected ErrVerificationNotFound on replay, got %v", err)
	}

	if err := env.engine.RequestEmailVerification(ctx, "u1"); err != nil {
		t.Fatalf("request on a verified user must be a no-op: %v", err)
	}
	select {
	case msg := <-env.mail.Messages():
		t.Fatalf("no message expected for a verified user, got %+v", msg)
	default:
	}
}

func TestEmailVerificationResendReplacesCode(t *testing.T) {
	codes := []string{"111111", "222222"}
	var mu sync.Mutex
	gen := func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}

	mr, rdb := newTestRedis(t)
	users := newMockUserProvider()
	mail := notify.NewChannelSender(4)
	engine, err := New().
		WithConfig(testConfig()).
		WithRedis(rdb).
		WithUserProvider(users).
		WithNotifier(mail).
		WithCodeGenerator(gen).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})
	users.users["u1"] = UserRecord{UserID: "u1", Login: "alice", Email: "alice@example.com"}
	ctx := context.Background()

	if err := engine.RequestEmailVerification(ctx, "u1"); err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	if err := engine.RequestEmailVerification(ctx, "u1"); err != nil {
		t.Fatalf("second request failed: %v", err)
	}

	if err := engine.ConfirmEmailVerification(ctx, "u1", "111111"); !errors.Is(err, ErrVerificationInvalid) {
		t.Fatalf("old code must be replaced, got %v", err)
	}
	if err := engine.ConfirmEmailVerification(ctx, "u1", "222222"); err != nil {
		t.Fatalf("latest code must confirm: %v", err)
	}
}

func TestPendingEntryExpires(t *testing.T) {
	env := newTestEnv(t)
	seedAlice(t, env)
	ctx := context.Background()

	if err := env.engine.RequestEmailVerification(ctx, "u1"); err != nil {
		t.Fatalf("RequestEmailVerification failed: %v", err)
	}
	code := env.nextCode(t, "alice@example.com")

	env.mr.FastForward(15*time.Minute + time.Second)

	if err := env.engine.ConfirmEmailVerification(ctx, "u1", code); !errors.Is(err, ErrVerificationNotFound) {
		t.Fatalf("expected ErrVerificationNotFound after expiry, got %v", err)
	}
}

func TestDeliveryFailureKeepsEntry(t *testing.T) {
	failing := notify.SenderFunc(func(context.Context, notify.Message) error {
		return errors.New("smtp: connection refused")
	})
	env := newTestEnvWithSender(t, failing)
	seedAlice(t, env)

	err := env.engine.RequestPhoneChange(context.Background(), "u1", "+15550100")
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
	if !env.mr.Exists(FlowPhoneChange + ":u1") {
		t.Fatal("pending entry must survive a delivery failure")
	}
	if env.engine.MetricsSnapshot().Counters[MetricVerificationDeliveryFailure] != 1 {
		t.Fatal("expected delivery failure to be counted")
	}
}

func TestForgotPasswordFlow(t *testing.T) {
	env := newTestEnv(t)
	seedAlice(t, env)
	ctx := context.Background()

	if err := env.engine.ResetPassword(ctx, "u1", "brand-new-password", "brand-new-password"); !errors.Is(err, ErrResetNotVerified) {
		t.Fatalf("expected ErrResetNotVerified before confirm, got %v", err)
	}

	if err := env.engine.ForgotPassword(ctx, "nobody@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	if err := env.engine.ForgotPassword(ctx, "alice@example.com"); err != nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}
	code := env.nextCode(t, "alice@example.com")
	if !env.mr.Exists(FlowForgotPassword + ":" + code) {
		t.Fatal("expected the recovery entry to be keyed by its code")
	}

	if _, err := env.engine.ConfirmForgotPassword(ctx, wrongCode(code)); !errors.Is(err, ErrVerificationNotFound) {
		t.Fatalf("expected ErrVerificationNotFound for an unknown recovery code, got %v", err)
	}

	userID, err := env.engine.ConfirmForgotPassword(ctx, code)
	if err != nil {
		t.Fatalf("ConfirmForgotPassword failed: %v", err)
	}
	if userID != "u1" {
		t.Fatalf("expected u1, got %q", userID)
	}
	if !env.users.get(t, "u1").IsResetVerified {
		t.Fatal("expected reset flag to be set")
	}

	if err := env.engine.ResetPassword(ctx, "u1", "brand-new-password", "other-password"); !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("expected ErrPasswordMismatch, got %v", err)
	}
	if err := env.engine.ResetPassword(ctx, "u1", "brand-new-password", "brand-new-password"); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}
	if env.users.get(t, "u1").IsResetVerified {
		t.Fatal("reset flag must be cleared")
	}
	if err := env.engine.ResetPassword(ctx, "u1", "another-password", "another-password"); !errors.Is(err, ErrResetNotVerified) {
		t.Fatalf("second reset must be forbidden, got %v", err)
	}

	if _, err := env.engine.SignIn(ctx, "alice@example.com", "brand-new-password"); err != nil {
		t.Fatalf("SignIn with the new password failed: %v", err)
	}
}

func TestLoginChangeCooldown(t *testing.T) {
	env := newTestEnv(t)
	user := seedAlice(t, env)
	changedAt := env.clock.Now().Add(-29 * 24 * time.Hour)
	user.LastLoginChangeAt = &changedAt
	env.seedUser(t, user, "")
	ctx := context.Background()

	if err := env.engine.RequestLoginChange(ctx, "u1", "alice2"); err != nil {
		t.Fatalf("RequestLoginChange failed: %v", err)
	}
	msg := env.nextMessage(t)
	if msg.Context["login"] != "alice2" {
		t.Fatalf("expected the new login in the message, got %v", msg.Context)
	}
	code := msg.Context["code"]

	if _, err := env.engine.ConfirmLoginChange(ctx, "u1", code); !errors.Is(err, ErrLoginChangeCooldown) {
		t.Fatalf("expected ErrLoginChangeCooldown on day 29, got %v", err)
	}
	_, err := env.engine.ConfirmLoginChange(ctx, "u1", wrongCode(code))
	if !errors.Is(err, ErrLoginChangeCooldown) || !errors.Is(err, ErrValidation) {
		t.Fatalf("expected a validation error for a wrong code inside the cooldown, got %v", err)
	}
	if errors.Is(err, ErrVerification) {
		t.Fatalf("cooldown must be reported before the code is compared, got %v", err)
	}
	if env.users.get(t, "u1").Login != "alice" {
		t.Fatal("login must not change inside the cooldown")
	}

	env.clock.Advance(24 * time.Hour)

	pair, err := env.engine.ConfirmLoginChange(ctx, "u1", code)
	if err != nil {
		t.Fatalf("ConfirmLoginChange on day 30 failed: %v", err)
	}
	got := env.users.get(t, "u1")
	if got.Login != "alice2" {
		t.Fatalf("expected login alice2, got %q", got.Login)
	}
	if got.LastLoginChangeAt == nil || !got.LastLoginChangeAt.Equal(env.clock.Now()) {
		t.Fatalf("expected LastLoginChangeAt to be stamped, got %v", got.LastLoginChangeAt)
	}

	claims, err := env.engine.accessTokens.Parse(pair.AccessToken)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if claims.Login != "alice2" {
		t.Fatalf("expected login claim alice2, got %q", claims.Login)
	}
}

func TestLoginChangeRejectsTakenLogin(t *testing.T) {
	env := newTestEnv(t)
	seedAlice(t, env)
	env.seedUser(t, UserRecord{UserID: "u2", Login: "bob", Email: "bob@example.com"}, "")
	ctx := context.Background()

	if err := env.engine.RequestLoginChange(ctx, "u1", "bob"); !errors.Is(err, ErrLoginTaken) {
		t.Fatalf("expected ErrLoginTaken, got %v", err)
	}

	if err := env.engine.RequestLoginChange(ctx, "u1", "carol"); err != nil {
		t.Fatalf("RequestLoginChange failed: %v", err)
	}
	code := env.nextCode(t, "alice@example.com")
	env.seedUser(t, UserRecord{UserID: "u3", Login: "carol", Email: "carol@example.com"}, "")

	if _, err := env.engine.ConfirmLoginChange(ctx, "u1", code); !errors.Is(err, ErrLoginTaken) {
		t.Fatalf("expected ErrLoginTaken at confirm, got %v", err)
	}
	if env.users.get(t, "u1").Login != "alice" {
		t.Fatal("login must not change")
	}
}

func TestEmailChangeTwoPhases(t *testing.T) {
	env := newTestEnv(t)
	user := seedAlice(t, env)
	user.IsEmailVerified = true
	env.seedUser(t, user, "")
	ctx := context.Background()

	if err := env.engine.RequestEmailChange(ctx, "u1", "alice@new.example.com"); err != nil {
		t.Fatalf("RequestEmailChange failed: %v", err)
	}
	first := env.nextCode(t, "alice@example.com")

	if err := env.engine.ConfirmEmailChangeNew(ctx, "u1", first); !errors.Is(err, ErrVerificationInvalid) {
		t.Fatalf("a first-phase code must not finish the change, got %v", err)
	}
	if !env.mr.Exists(FlowEmailChange + ":u1") {
		t.Fatal("phase mismatch must leave the entry intact")
	}

	if err := env.engine.ConfirmEmailChangeCurrent(ctx, "u1", first); err != nil {
		t.Fatalf("ConfirmEmailChangeCurrent failed: %v", err)
	}
	mid := env.users.get(t, "u1")
	if mid.IsEmailVerified || mid.Email != "alice@example.com" {
		t.Fatalf("expected unverified old email between phases, got %+v", mid)
	}

	second := env.nextCode(t, "alice@new.example.com")
	if err := env.engine.ConfirmEmailChangeCurrent(ctx, "u1", second); !errors.Is(err, ErrVerificationInvalid) {
		t.Fatalf("a second-phase code must not restart the change, got %v", err)
	}

	if err := env.engine.ConfirmEmailChangeNew(ctx, "u1", second); err != nil {
		t.Fatalf("ConfirmEmailChangeNew failed: %v", err)
	}
	done := env.users.get(t, "u1")
	if done.Email != "alice@new.example.com" || !done.IsEmailVerified {
		t.Fatalf("expected verified new email, got %+v", done)
	}
	if env.mr.Exists(FlowEmailChange + ":u1") {
		t.Fatal("pending entry must be consumed")
	}
}

func TestEmailChangeRejectsTakenEmail(t *testing.T) {
	env := newTestEnv(t)
	seedAlice(t, env)
	env.seedUser(t, UserRecord{UserID: "u2", Login: "bob", Email: "bob@example.com"}, "")

	err := env.engine.RequestEmailChange(context.Background(), "u1", "bob@example.com")
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestPhoneChangeFlow(t *testing.T) {
	env := newTestEnv(t)
	seedAlice(t, env)
	ctx := context.Background()

	if err := env.engine.RequestPhoneChange(ctx, "u1", "  "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if err := env.engine.RequestPhoneChange(ctx, "u1", "+15550100"); err != nil {
		t.Fatalf("RequestPhoneChange failed: %v", err)
	}
	code := env.nextCode(t, "alice@example.com")

	if err := env.engine.ConfirmPhoneChange(ctx, "", code); !errors.Is(err, ErrAuthorizationRequired) {
		t.Fatalf("expected ErrAuthorizationRequired, got %v", err)
	}
	if err := env.engine.ConfirmPhoneChange(ctx, "u1", code); err != nil {
		t.Fatalf("ConfirmPhoneChange failed: %v", err)
	}
	if got := env.users.get(t, "u1").PhoneNumber; got != "+15550100" {
		t.Fatalf("expected +15550100, got %q", got)
	}
}

func TestPasswordChangeFlow(t *testing.T) {
	env := newTestEnv(t)
	seedAlice(t, env)
	ctx := context.Background()

	req := PasswordChangeRequest{
		CurrentPassword: "wrong-current",
		NewPassword:     "brand-new-password",
		RePassword:      "brand-new-password",
	}
	if err := env.engine.RequestPasswordChange(ctx, "u1", req); !errors.Is(err, ErrCurrentPasswordInvalid) {
		t.Fatalf("expected ErrCurrentPasswordInvalid, got %v", err)
	}

	req.CurrentPassword = "correct-password-123"
	if err := env.engine.RequestPasswordChange(ctx, "u1", req); err != nil {
		t.Fatalf("RequestPasswordChange failed: %v", err)
	}
	code := env.nextCode(t, "alice@example.com")

	stored, err := env.mr.Get(FlowPasswordChange + ":u1")
	if err != nil {
		t.Fatalf("expected pending entry: %v", err)
	}
	if strings.Contains(stored, "brand-new-password") {
		t.Fatal("pending entry must not hold the plaintext password")
	}

	if err := env.engine.ConfirmPasswordChange(ctx, "u1", wrongCode(code)); !errors.Is(err, ErrVerificationInvalid) {
		t.Fatalf("expected ErrVerificationInvalid, got %v", err)
	}
	if err := env.engine.ConfirmPasswordChange(ctx, "u1", code); err != nil {
		t.Fatalf("ConfirmPasswordChange failed: %v", err)
	}

	if _, err := env.engine.SignIn(ctx, "alice@example.com", "correct-password-123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password must stop working, got %v", err)
	}
	if _, err := env.engine.SignIn(ctx, "alice@example.com", "brand-new-password"); err != nil {
		t.Fatalf("SignIn with the new password failed: %v", err)
	}
}

func TestWrongCodeNeverMutates(t *testing.T) {
	env := newTestEnv(t)
	seedAlice(t, env)
	ctx := context.Background()

	if err := env.engine.RequestPhoneChange(ctx, "u1", "+15550100"); err != nil {
		t.Fatalf("RequestPhoneChange failed: %v", err)
	}
	code := env.nextCode(t, "alice@example.com")
	before := env.users.updateCalls

	for i := 0; i < 3; i++ {
		if err := env.engine.ConfirmPhoneChange(ctx, "u1", wrongCode(code)); !errors.Is(err, ErrVerificationInvalid) {
			t.Fatalf("attempt %d: expected ErrVerificationInvalid, got %v", i+1, err)
		}
	}
	if env.users.updateCalls != before {
		t.Fatal("wrong codes must not reach the user store")
	}
	if !env.mr.Exists(FlowPhoneChange + ":u1") {
		t.Fatal("entry must survive wrong codes")
	}
	if err := env.engine.ConfirmPhoneChange(ctx, "u1", code); err != nil {
		t.Fatalf("correct code must still work: %v", err)
	}
}

func TestApplyFailureRestoresEntry(t *testing.T) {
	env := newTestEnv(t)
	seedAlice(t, env)
	ctx := context.Background()

	if err := env.engine.RequestPhoneChange(ctx, "u1", "+15550100"); err != nil {
		t.Fatalf("RequestPhoneChange failed: %v", err)
	}
	code := env.nextCode(t, "alice@example.com")

	env.users.mu.Lock()
	env.users.updateErr = errors.New("db down")
	env.users.mu.Unlock()

	if err := env.engine.ConfirmPhoneChange(ctx, "u1", code); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}

	env.users.mu.Lock()
	env.users.updateErr = nil
	env.users.mu.Unlock()

	if err := env.engine.ConfirmPhoneChange(ctx, "u1", code); err != nil {
		t.Fatalf("code must be usable after a failed apply: %v", err)
	}
}

func TestConcurrentConfirmSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	seedAlice(t, env)
	ctx := context.Background()

	if err := env.engine.RequestPhoneChange(ctx, "u1", "+15550100"); err != nil {
		t.Fatalf("RequestPhoneChange failed: %v", err)
	}
	code := env.nextCode(t, "alice@example.com")

	const n = 8
	var wg sync.WaitGroup
	wg.Add(n)
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			results <- env.engine.ConfirmPhoneChange(ctx, "u1", code)
		}()
	}
	wg.Wait()
	close(results)

	success := 0
	for err := range results {
		switch {
		case err == nil:
			success++
		case errors.Is(err, ErrVerificationNotFound):
		default:
			t.Fatalf("unexpected confirm error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly one winner, got %d", success)
	}
	if env.users.updateCalls != 1 {
		t.Fatalf("expected one user update, got %d", env.users.updateCalls)
	}
}

func TestVerificationRequestThrottle(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.Verification.MaxRequests = 2
	})
	seedAlice(t, env)
	ctx := context.Background()

	var err error
	for i := 0; i < 4; i++ {
		err = env.engine.RequestPhoneChange(ctx, "u1", "+15550100")
		if err != nil {
			break
		}
	}
	if !errors.Is(err, ErrVerificationRateLimited) {
		t.Fatalf("expected ErrVerificationRateLimited, got %v", err)
	}
	if HTTPStatus(err) != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", HTTPStatus(err))
	}
}
