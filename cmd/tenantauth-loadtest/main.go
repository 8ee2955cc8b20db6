// Command tenantauth-loadtest drives the cache primitives concurrently
// against Redis (or an in-process miniredis) and reports latency
// percentiles per phase. The lock phase also checks mutual exclusion.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/tenantauth/cache"
	"github.com/MrEthical07/tenantauth/scope"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func main() {
	var (
		tenants     = flag.Int("tenants", 50, "number of tenants to spread keys over")
		resources   = flag.Int("resources", 64, "number of lockable resources per tenant")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "operations per phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *tenants <= 0 || *resources <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "tenants, resources, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()
	client, cleanup, err := connect(*redisAddr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer cleanup()

	scopes := make([]scope.Scope, *tenants)
	for i := range scopes {
		scopes[i] = scope.Tenant(uuid.New())
	}

	counter := cache.NewCounter(client)
	locker := cache.NewLocker(client)
	blacklist := cache.NewBlacklist(client)
	idem := cache.NewIdempotency(client, time.Hour)

	results := []struct {
		name  string
		stats phaseStats
	}{
		{"counter", runPhase(*ops, *concurrency, func(r *rand.Rand, i int) error {
			s := scopes[r.Intn(len(scopes))]
			key := cache.RateKey(s, "login", "192.0.2."+strconv.Itoa(r.Intn(254)+1))
			_, err := counter.Hit(ctx, key, time.Minute, 1_000_000)
			return err
		})},
		{"lock", runLockPhase(ctx, locker, scopes, *resources, *ops, *concurrency)},
		{"blacklist", runPhase(*ops, *concurrency, func(r *rand.Rand, i int) error {
			s := scopes[r.Intn(len(scopes))]
			jti := "jti-" + strconv.Itoa(i)
			if err := blacklist.Revoke(ctx, s, jti, time.Now().Add(10*time.Minute)); err != nil {
				return err
			}
			revoked, err := blacklist.IsRevoked(ctx, s, jti)
			if err != nil {
				return err
			}
			if !revoked {
				return errors.New("revoked jti not found")
			}
			return nil
		})},
		{"idempotency", runPhase(*ops, *concurrency, func(r *rand.Rand, i int) error {
			k := cache.IdemKey{
				Scope:    scopes[r.Intn(len(scopes))],
				Endpoint: "login",
				Key:      "key-" + strconv.Itoa(i),
			}
			rec := cache.Record{Status: 200, ContentType: "application/json", Body: []byte(`{"ok":true}`)}
			if err := idem.Store(ctx, nil, k, rec); err != nil {
				return err
			}
			got, err := idem.Lookup(ctx, nil, k)
			if err != nil {
				return err
			}
			if got == nil || got.Status != 200 {
				return errors.New("stored record not found")
			}
			return nil
		})},
	}

	fmt.Println("---- results ----")
	for _, res := range results {
		printStats(res.name, res.stats)
	}
}

func connect(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

// runPhase runs op ops times across concurrency workers.
func runPhase(ops, concurrency int, op func(r *rand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

// runLockPhase contends for a small set of resources. A held lock that is
// acquired again counts as a violation and aborts the run.
func runLockPhase(ctx context.Context, locker *cache.Locker, scopes []scope.Scope, resources, ops, concurrency int) phaseStats {
	var (
		holders    sync.Map
		contention int64
	)
	stats := runPhase(ops, concurrency, func(r *rand.Rand, i int) error {
		key := cache.LockKey(scopes[r.Intn(len(scopes))], "idem", "resource-"+strconv.Itoa(r.Intn(resources)))
		lk, err := locker.Acquire(ctx, key, 5*time.Second)
		if errors.Is(err, cache.ErrLockUnavailable) {
			atomic.AddInt64(&contention, 1)
			return nil
		}
		if err != nil {
			return err
		}
		if _, loaded := holders.LoadOrStore(key, struct{}{}); loaded {
			fmt.Fprintf(os.Stderr, "mutual exclusion violated on %s\n", key)
			os.Exit(1)
		}
		holders.Delete(key)
		_, err = lk.Release(ctx)
		return err
	})
	fmt.Printf("lock: contended=%d\n", contention)
	return stats
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
