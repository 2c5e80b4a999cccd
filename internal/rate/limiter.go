package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRateLimited means the caller has spent its window budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrStoreUnavailable wraps any Redis failure.
	ErrStoreUnavailable = errors.New("throttle store unavailable")
)

const keyPrefix = "pa:rl:"

var hitScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// Window is a fixed-window budget. A zero Max disables the window.
type Window struct {
	Max    int
	Length time.Duration
}

func (w Window) enabled() bool {
	return w.Max > 0 && w.Length > 0
}

// Config selects which throttles run.
type Config struct {
	Login Window
	// PerIP also counts sign-in failures per client address, sharing the
	// Login budget.
	PerIP   bool
	Refresh Window
}

// Limiter applies Config against a Redis client.
type Limiter struct {
	rdb redis.UniversalClient
	cfg Config
}

func New(rdb redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{rdb: rdb, cfg: cfg}
}

// CheckLogin reports ErrRateLimited once email or ip has failed more than
// the Login budget inside the current window. It does not count.
func (l *Limiter) CheckLogin(ctx context.Context, email, ip string) error {
	if !l.cfg.Login.enabled() {
		return nil
	}
	for _, key := range l.loginKeys(email, ip) {
		n, err := l.rdb.Get(ctx, key).Int64()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if n > int64(l.cfg.Login.Max) {
			return ErrRateLimited
		}
	}
	return nil
}

// RecordLoginFailure counts one failed sign-in. It returns ErrRateLimited
// when this failure pushed a counter over budget.
func (l *Limiter) RecordLoginFailure(ctx context.Context, email, ip string) error {
	if !l.cfg.Login.enabled() {
		return nil
	}
	var limited bool
	for _, key := range l.loginKeys(email, ip) {
		n, err := l.hit(ctx, key, l.cfg.Login.Length)
		if err != nil {
			return err
		}
		if n > int64(l.cfg.Login.Max) {
			limited = true
		}
	}
	if limited {
		return ErrRateLimited
	}
	return nil
}

// ClearLogin forgets the failures of email and ip after a good sign-in.
func (l *Limiter) ClearLogin(ctx context.Context, email, ip string) error {
	if err := l.rdb.Del(ctx, l.loginKeys(email, ip)...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// LoginFailures returns the failure count recorded for email.
func (l *Limiter) LoginFailures(ctx context.Context, email string) (int, error) {
	n, err := l.rdb.Get(ctx, keyPrefix+"login:"+email).Int()
	switch {
	case errors.Is(err, redis.Nil):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	case n < 0:
		return 0, nil
	}
	return n, nil
}

// CheckRefresh counts one refresh exchange for userID and rejects it when
// the Refresh budget is spent.
func (l *Limiter) CheckRefresh(ctx context.Context, userID string) error {
	if !l.cfg.Refresh.enabled() {
		return nil
	}
	n, err := l.hit(ctx, keyPrefix+"refresh:"+userID, l.cfg.Refresh.Length)
	if err != nil {
		return err
	}
	if n > int64(l.cfg.Refresh.Max) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	n, err := hitScript.Run(ctx, l.rdb, []string{key}, window.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}

func (l *Limiter) loginKeys(email, ip string) []string {
	keys := []string{keyPrefix + "login:" + email}
	if l.cfg.PerIP && ip != "" {
		keys = append(keys, keyPrefix+"ip:"+ip)
	}
	return keys
}
