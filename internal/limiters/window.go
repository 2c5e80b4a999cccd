package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrLimited means a window's budget is spent.
	ErrLimited = errors.New("throttled")
	// ErrUnavailable wraps Redis failures.
	ErrUnavailable = errors.New("limiter store unavailable")
)

// incr bumps KEYS[1] and starts its expiry on the first hit of a window.
var incr = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// window is one fixed-window budget under a key namespace.
type window struct {
	rdb    redis.UniversalClient
	prefix string
	max    int
	length time.Duration
}

// hit counts one attempt for id. Empty ids are not counted.
func (w window) hit(ctx context.Context, id string) error {
	if id == "" || w.max <= 0 {
		return nil
	}
	n, err := incr.Run(ctx, w.rdb, []string{w.prefix + id}, w.length.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n > int64(w.max) {
		return ErrLimited
	}
	return nil
}

// hitAll stops at the first window that refuses.
func hitAll(ctx context.Context, hits ...func(context.Context) error) error {
	for _, h := range hits {
		if err := h(ctx); err != nil {
			return err
		}
	}
	return nil
}
