package limiters

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type SignUpConfig struct {
	PerEmail    bool
	PerIP       bool
	MaxAttempts int
	Window      time.Duration
}

// SignUpLimiter caps account creation attempts per email and per client
// address.
type SignUpLimiter struct {
	email, ip       window
	perEmail, perIP bool
}

func NewSignUpLimiter(rdb redis.UniversalClient, cfg SignUpConfig) *SignUpLimiter {
	return &SignUpLimiter{
		email:    window{rdb: rdb, prefix: "pa:su:email:", max: cfg.MaxAttempts, length: cfg.Window},
		ip:       window{rdb: rdb, prefix: "pa:su:ip:", max: cfg.MaxAttempts, length: cfg.Window},
		perEmail: cfg.PerEmail,
		perIP:    cfg.PerIP,
	}
}

// Allow counts one sign-up attempt.
func (l *SignUpLimiter) Allow(ctx context.Context, email, ip string) error {
	if l == nil {
		return nil
	}
	var hits []func(context.Context) error
	if l.perEmail {
		hits = append(hits, func(ctx context.Context) error { return l.email.hit(ctx, email) })
	}
	if l.perIP {
		hits = append(hits, func(ctx context.Context) error { return l.ip.hit(ctx, ip) })
	}
	return hitAll(ctx, hits...)
}
