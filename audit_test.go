package profileauth

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/profileauth/notify"
)

// recordingSink buffers events for assertions.
type recordingSink chan AuditEvent

func (s recordingSink) Emit(ctx context.Context, ev AuditEvent) {
	select {
	case s <- ev:
	case <-ctx.Done():
	}
}

func (s recordingSink) collect(t *testing.T, n int) []AuditEvent {
	t.Helper()
	out := make([]AuditEvent, 0, n)
	deadline := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case ev := <-s:
			out = append(out, ev)
		case <-deadline:
			t.Fatalf("collected %d of %d audit events", len(out), n)
		}
	}
	return out
}

// blockingSink holds the audit goroutine until release is closed or fed.
type blockingSink struct {
	release chan struct{}
}

func (s blockingSink) Emit(context.Context, AuditEvent) { <-s.release }

func newAuditEnv(t *testing.T, sink AuditSink, mutate func(*Config)) *testEnv {
	t.Helper()

	mr, rdb := newTestRedis(t)
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 64
	if mutate != nil {
		mutate(&cfg)
	}
	env := &testEnv{
		mr:    mr,
		rdb:   rdb,
		users: newMockUserProvider(),
		mail:  notify.NewChannelSender(16),
		clock: newFakeClock(),
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(env.users).
		WithNotifier(env.mail).
		WithAuditSink(sink).
		WithClock(env.clock.Now).
		Build()
	require.NoError(t, err)
	env.engine = engine

	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return env
}

func TestAuditDisabled(t *testing.T) {
	var calls atomic.Int64
	sink := AuditSinkFunc(func(context.Context, AuditEvent) { calls.Add(1) })
	env := newAuditEnv(t, sink, func(c *Config) { c.Audit.Enabled = false })
	env.seedUser(t, UserRecord{UserID: "u1", Login: "alice", Email: "alice@example.com"}, "correct-password-123")

	_, _ = env.engine.SignIn(context.Background(), "alice@example.com", "wrong-password")
	env.engine.Close()

	assert.Zero(t, calls.Load())
	assert.Nil(t, env.engine.audit)
}

func TestAuditEventCarriesRequestContext(t *testing.T) {
	sink := make(recordingSink, 8)
	env := newAuditEnv(t, sink, nil)
	env.seedUser(t, UserRecord{UserID: "u1", Login: "alice", Email: "alice@example.com"}, "correct-password-123")

	ctx := WithRequestID(WithUserAgent(WithClientIP(context.Background(), "198.51.100.33"), "curl/8.0"), "req-7")
	_, _ = env.engine.SignIn(ctx, "alice@example.com", "super-secret-password")

	ev := sink.collect(t, 1)[0]
	assert.Equal(t, auditEventSignInFailure, ev.Type)
	assert.False(t, ev.OK)
	assert.Equal(t, "198.51.100.33", ev.IP)
	assert.Equal(t, "req-7", ev.RequestID)
	assert.Equal(t, "u1", ev.UserID)
	assert.Equal(t, "curl/8.0", ev.Attrs["user_agent"])
	assert.Equal(t, string(auditErrInvalidCredentials), ev.Reason)
	assert.Equal(t, env.clock.Now().UTC(), ev.At, "timestamp follows the engine clock")
}

func TestAuditQueueDropIfFull(t *testing.T) {
	sink := blockingSink{release: make(chan struct{})}
	q := newAuditQueue(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)
	defer func() {
		close(sink.release)
		q.Close()
	}()

	// One event parks in the sink, one fills the buffer.
	q.Emit(context.Background(), AuditEvent{Type: "e1"})
	q.Emit(context.Background(), AuditEvent{Type: "e2"})

	start := time.Now()
	q.Emit(context.Background(), AuditEvent{Type: "e3"})
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Eventually(t, func() bool { return q.Dropped() > 0 }, time.Second, 10*time.Millisecond)
}

func TestAuditQueueBlocksWithoutDrop(t *testing.T) {
	sink := blockingSink{release: make(chan struct{})}
	q := newAuditQueue(AuditConfig{Enabled: true, BufferSize: 1}, sink)
	defer func() {
		close(sink.release)
		q.Close()
	}()

	q.Emit(context.Background(), AuditEvent{Type: "e1"})
	q.Emit(context.Background(), AuditEvent{Type: "e2"})

	done := make(chan struct{})
	go func() {
		q.Emit(context.Background(), AuditEvent{Type: "e3"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("emit returned while the buffer was full")
	case <-time.After(150 * time.Millisecond):
	}

	sink.release <- struct{}{}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("emit stayed blocked after room was made")
	}
	assert.Zero(t, q.Dropped())
}

func TestAuditQueueBlockedEmitHonorsContext(t *testing.T) {
	sink := blockingSink{release: make(chan struct{})}
	q := newAuditQueue(AuditConfig{Enabled: true, BufferSize: 1}, sink)
	defer func() {
		close(sink.release)
		q.Close()
	}()

	q.Emit(context.Background(), AuditEvent{Type: "e1"})
	q.Emit(context.Background(), AuditEvent{Type: "e2"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	q.Emit(ctx, AuditEvent{Type: "e3"})
	assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
}

func TestAuditQueueCloseFlushes(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	q := newAuditQueue(AuditConfig{Enabled: true, BufferSize: 8}, AuditSinkFunc(func(_ context.Context, ev AuditEvent) {
		mu.Lock()
		seen = append(seen, ev.Type)
		mu.Unlock()
	}))

	for _, typ := range []string{"a", "b", "c"} {
		q.Emit(context.Background(), AuditEvent{Type: typ})
	}
	q.Close()
	q.Close()
	q.Emit(context.Background(), AuditEvent{Type: "late"})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b", "c"}, seen)
}

func TestAuditNilQueue(t *testing.T) {
	var q *auditQueue
	q.Emit(context.Background(), AuditEvent{})
	q.Close()
	assert.Zero(t, q.Dropped())
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), AuditEvent{Type: auditEventSignInSuccess, UserID: "u1", IP: "127.0.0.1", OK: true})
	sink.Emit(context.Background(), AuditEvent{Type: auditEventLogout, UserID: "u1", OK: true})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &got))
	assert.Equal(t, "sign_in_success", got["type"])
	assert.Equal(t, "u1", got["user_id"])
	assert.Equal(t, true, got["ok"])
	assert.NotContains(t, got, "reason")
}

func TestSlogSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSlogSink(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	sink.Emit(context.Background(), AuditEvent{Type: auditEventSignInSuccess, UserID: "u1", OK: true})
	sink.Emit(context.Background(), AuditEvent{Type: auditEventSignInFailure, Reason: "invalid_credentials", Attrs: map[string]string{"user_agent": "curl"}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var ok, failed map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &ok))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &failed))

	assert.Equal(t, "INFO", ok["level"])
	assert.Equal(t, "audit", ok["component"])
	assert.Equal(t, "u1", ok["user_id"])
	assert.Equal(t, "WARN", failed["level"])
	assert.Equal(t, "invalid_credentials", failed["reason"])
	assert.Equal(t, "curl", failed["attr.user_agent"])
	assert.NotContains(t, failed, "user_id")
}

func TestAuditNeverLeaksSecrets(t *testing.T) {
	sink := make(recordingSink, 64)
	env := newAuditEnv(t, sink, nil)
	const pass = "correct-password-123"
	env.seedUser(t, UserRecord{UserID: "u1", Login: "alice", Email: "alice@example.com"}, pass)
	ctx := context.Background()

	pair, err := env.engine.SignIn(ctx, "alice@example.com", pass)
	require.NoError(t, err)
	next, err := env.engine.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NoError(t, env.engine.RequestEmailVerification(ctx, "u1"))
	code := env.nextCode(t, "alice@example.com")
	_ = env.engine.ConfirmEmailVerification(ctx, "u1", wrongCode(code))
	require.NoError(t, env.engine.ConfirmEmailVerification(ctx, "u1", code))

	env.engine.Close()
	close(sink)
	var events []AuditEvent
	for ev := range sink {
		events = append(events, ev)
	}
	require.GreaterOrEqual(t, len(events), 5)

	secrets := []string{pass, pair.AccessToken, pair.RefreshToken, next.RefreshToken, env.users.get(t, "u1").PasswordHash, code}
	sawMismatch := false
	for _, ev := range events {
		if ev.Type == auditEventVerificationConfirm && ev.Reason == string(auditErrCodeInvalid) {
			sawMismatch = true
		}
		raw, err := json.Marshal(ev)
		require.NoError(t, err)
		for _, secret := range secrets {
			assert.NotContains(t, string(raw), secret, "event %s", ev.Type)
		}
	}
	assert.True(t, sawMismatch, "expected a code_invalid verification_confirm event")
}
