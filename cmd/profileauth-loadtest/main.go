// Command profileauth-loadtest drives the refresh-session store with
// concurrent validate and rotate calls and prints latency percentiles.
//
// Sessions live in Redis by default (an in-process miniredis when no
// address is given) or in Postgres when -dsn is set.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/profileauth/session"
	"github.com/MrEthical07/profileauth/store/postgres"
)

type options struct {
	sessions, workers, ops int
	redisAddr, prefix, dsn string
}

// account is one simulated user. gen advances on every rotation so each
// refresh token is unique.
type account struct {
	mu     sync.Mutex
	userID string
	token  string
	gen    int
}

type result struct {
	phase    string
	elapsed  time.Duration
	failures int64
	samples  []time.Duration
}

func main() {
	var o options
	flag.IntVar(&o.sessions, "sessions", 100000, "sessions to seed")
	flag.IntVar(&o.workers, "concurrency", 256, "concurrent workers")
	flag.IntVar(&o.ops, "ops", 200000, "operations per phase")
	flag.StringVar(&o.redisAddr, "redis-addr", os.Getenv("REDIS_ADDR"), "redis address; empty starts miniredis")
	flag.StringVar(&o.prefix, "prefix", "pa", "redis key prefix")
	flag.StringVar(&o.dsn, "dsn", "", "postgres DSN; selects the postgres session store")
	flag.Parse()

	if o.sessions <= 0 || o.workers <= 0 || o.ops <= 0 {
		log.Fatal("-sessions, -concurrency and -ops must be > 0")
	}

	ctx := context.Background()
	backend, closeBackend, err := openBackend(ctx, o)
	if err != nil {
		log.Fatalf("open backend: %v", err)
	}
	defer closeBackend()
	mgr := session.NewManager(backend)

	accounts, err := seed(ctx, mgr, o.sessions)
	if err != nil {
		log.Fatalf("seed: %v", err)
	}

	results := []result{
		run("validate", accounts, o, func(a *account) error {
			a.mu.Lock()
			token := a.token
			a.mu.Unlock()
			return mgr.Validate(ctx, a.userID, token)
		}),
		run("rotate", accounts, o, func(a *account) error {
			a.mu.Lock()
			defer a.mu.Unlock()
			next := refreshToken(a.userID, a.gen+1)
			if err := mgr.Exchange(ctx, a.userID, a.token, next); err != nil {
				return err
			}
			a.token, a.gen = next, a.gen+1
			return nil
		}),
	}
	report(results)
}

func openBackend(ctx context.Context, o options) (session.Backend, func(), error) {
	if o.dsn != "" {
		db, err := postgres.Open(ctx, o.dsn)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		log.Print("backend: postgres")
		return postgres.New(db), func() { _ = db.Close() }, nil
	}

	addr, stop := o.redisAddr, func() {}
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		addr, stop = mr.Addr(), mr.Close
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, PoolSize: o.workers})
	log.Printf("backend: redis at %s", addr)
	return session.NewRedisBackend(rdb, o.prefix, 24*time.Hour), func() {
		_ = rdb.Close()
		stop()
	}, nil
}

func seed(ctx context.Context, mgr *session.Manager, n int) ([]*account, error) {
	start := time.Now()
	accounts := make([]*account, n)
	for i := range accounts {
		a := &account{userID: "lt-" + strconv.Itoa(i)}
		a.token = refreshToken(a.userID, 0)
		if err := mgr.Rotate(ctx, a.userID, a.token); err != nil {
			return nil, err
		}
		accounts[i] = a
	}
	log.Printf("seeded %d sessions in %s", n, time.Since(start).Round(time.Millisecond))
	return accounts, nil
}

// run spreads o.ops calls of op over o.workers goroutines, each picking
// random accounts. Workers keep their own samples so timing is lock-free.
func run(phase string, accounts []*account, o options, op func(*account) error) result {
	var (
		next     atomic.Int64
		failures atomic.Int64
		wg       sync.WaitGroup
	)
	perWorker := make([][]time.Duration, o.workers)

	start := time.Now()
	for w := range o.workers {
		wg.Go(func() {
			samples := make([]time.Duration, 0, o.ops/o.workers+1)
			for next.Add(1) <= int64(o.ops) {
				a := accounts[rand.IntN(len(accounts))]
				t0 := time.Now()
				if err := op(a); err != nil {
					failures.Add(1)
				}
				samples = append(samples, time.Since(t0))
			}
			perWorker[w] = samples
		})
	}
	wg.Wait()

	return result{
		phase:    phase,
		elapsed:  time.Since(start),
		failures: failures.Load(),
		samples:  slices.Concat(perWorker...),
	}
}

func report(results []result) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "phase\tops\tfailed\tops/s\tp50\tp95\tp99\t")
	for _, r := range results {
		slices.Sort(r.samples)
		rate := float64(len(r.samples)) / r.elapsed.Seconds()
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.0f\t%s\t%s\t%s\t\n",
			r.phase, len(r.samples), r.failures, rate,
			quantile(r.samples, 0.50), quantile(r.samples, 0.95), quantile(r.samples, 0.99))
	}
	_ = tw.Flush()
}

// quantile expects sorted samples.
func quantile(sorted []time.Duration, q float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	i := int(q * float64(len(sorted)-1))
	return sorted[i].Round(time.Microsecond)
}

// refreshToken stands in for a signed refresh token. Stores keep only its
// digest, so any unique string works.
func refreshToken(userID string, gen int) string {
	return userID + "." + strconv.Itoa(gen) + "." + strconv.FormatUint(rand.Uint64(), 36)
}
