package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisManager(t *testing.T) (*Manager, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return NewManager(NewRedisBackend(rdb, "pa", time.Hour)), mr, rdb
}

func TestRotateValidateSingleLive(t *testing.T) {
	m, _, _ := newRedisManager(t)
	ctx := context.Background()

	if err := m.Validate(ctx, "u1", "t1"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession before rotate, got %v", err)
	}
	if err := m.Rotate(ctx, "u1", "t1"); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if err := m.Validate(ctx, "u1", "t1"); err != nil {
		t.Fatalf("validate t1: %v", err)
	}
	if err := m.Rotate(ctx, "u1", "t2"); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if err := m.Validate(ctx, "u1", "t1"); !errors.Is(err, ErrMismatch) {
		t.Fatalf("expected old token mismatch, got %v", err)
	}
	if err := m.Validate(ctx, "u1", "t2"); err != nil {
		t.Fatalf("validate t2: %v", err)
	}
}

func TestDigestStoredNotPlaintext(t *testing.T) {
	m, mr, _ := newRedisManager(t)
	if err := m.Rotate(context.Background(), "u1", "plain-refresh-token"); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	stored, err := mr.Get("pa:rt:u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if strings.Contains(stored, "plain-refresh-token") || stored != Digest("plain-refresh-token") {
		t.Fatalf("expected digest at rest, got %q", stored)
	}
	if mr.TTL("pa:rt:u1") != time.Hour {
		t.Fatalf("expected key TTL to follow refresh TTL, got %v", mr.TTL("pa:rt:u1"))
	}
}

func TestExchangeOutcomes(t *testing.T) {
	m, _, _ := newRedisManager(t)
	ctx := context.Background()

	if err := m.Exchange(ctx, "u1", "a", "b"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if err := m.Rotate(ctx, "u1", "a"); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if err := m.Exchange(ctx, "u1", "a", "b"); err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if err := m.Exchange(ctx, "u1", "a", "c"); !errors.Is(err, ErrMismatch) {
		t.Fatalf("expected replay mismatch, got %v", err)
	}
	if err := m.Validate(ctx, "u1", "b"); err != nil {
		t.Fatalf("validate b: %v", err)
	}
}

func TestExchangeConcurrentSingleWinner(t *testing.T) {
	m, _, _ := newRedisManager(t)
	ctx := context.Background()
	if err := m.Rotate(ctx, "u1", "seed"); err != nil {
		t.Fatalf("rotate: %v", err)
	}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			next := "next-" + string(rune('a'+i))
			if err := m.Exchange(ctx, "u1", "seed", next); err == nil {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins.Load())
	}
}

func TestInvalidateIdempotent(t *testing.T) {
	m, _, _ := newRedisManager(t)
	ctx := context.Background()
	if err := m.Rotate(ctx, "u1", "a"); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if err := m.Invalidate(ctx, "u1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if err := m.Invalidate(ctx, "u1"); err != nil {
		t.Fatalf("second invalidate: %v", err)
	}
	if err := m.Validate(ctx, "u1", "a"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession after logout, got %v", err)
	}
}

func TestBackendFaultWrapped(t *testing.T) {
	m, mr, _ := newRedisManager(t)
	mr.Close()
	if err := m.Rotate(context.Background(), "u1", "a"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
