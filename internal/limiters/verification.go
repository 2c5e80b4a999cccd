package limiters

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type VerificationConfig struct {
	EnableScopeThrottle bool
	EnableIPThrottle    bool
	Window              time.Duration
	MaxRequests         int
	MaxConfirms         int
}

// VerificationLimiter throttles code requests and confirm attempts. Every
// flow gets its own windows, so a burst of phone-change codes does not
// block email verification.
type VerificationLimiter struct {
	requests, confirms window
	cfg                VerificationConfig
}

func NewVerificationLimiter(rdb redis.UniversalClient, cfg VerificationConfig) *VerificationLimiter {
	return &VerificationLimiter{
		requests: window{rdb: rdb, prefix: "pa:vr:", max: cfg.MaxRequests, length: cfg.Window},
		confirms: window{rdb: rdb, prefix: "pa:vc:", max: cfg.MaxConfirms, length: cfg.Window},
		cfg:      cfg,
	}
}

// CheckRequest counts one code request for flow.
func (l *VerificationLimiter) CheckRequest(ctx context.Context, flow, scope, ip string) error {
	if l == nil {
		return nil
	}
	return l.check(ctx, l.requests, flow, scope, ip)
}

// CheckConfirm counts one confirm attempt for flow, right or wrong.
func (l *VerificationLimiter) CheckConfirm(ctx context.Context, flow, scope, ip string) error {
	if l == nil {
		return nil
	}
	return l.check(ctx, l.confirms, flow, scope, ip)
}

func (l *VerificationLimiter) check(ctx context.Context, w window, flow, scope, ip string) error {
	var hits []func(context.Context) error
	if l.cfg.EnableScopeThrottle && scope != "" {
		hits = append(hits, func(ctx context.Context) error { return w.hit(ctx, flow+":s:"+scope) })
	}
	if l.cfg.EnableIPThrottle && ip != "" {
		hits = append(hits, func(ctx context.Context) error { return w.hit(ctx, flow+":ip:"+ip) })
	}
	return hitAll(ctx, hits...)
}
