// Command mfa-loadtest drives registration and login flows through the
// engine against Redis and reports latency percentiles per phase.
//
//	go run ./cmd/mfa-loadtest --members 2000 --concurrency 64 --ops 20000
//
// Without --redis-addr or REDIS_ADDR an in-process miniredis is used.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	goMFA "github.com/MrEthical07/goMFA"
	"github.com/MrEthical07/goMFA/hostsession"
	"github.com/MrEthical07/goMFA/method"
	"github.com/MrEthical07/goMFA/methods/basicmath"
	"github.com/MrEthical07/goMFA/records"
	"github.com/MrEthical07/goMFA/registry"
	"github.com/alicebob/miniredis/v2"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
)

func main() {
	var (
		members     = pflag.Int("members", 1000, "number of members to register")
		concurrency = pflag.Int("concurrency", 64, "number of concurrent workers")
		ops         = pflag.Int("ops", 10000, "login operations to run")
		failRate    = pflag.Float64("fail-rate", 0, "fraction of logins answered wrong")
		redisAddr   = pflag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = pflag.String("prefix", "mfa-load", "record key prefix")
	)
	pflag.Parse()

	if *members <= 0 || *concurrency <= 0 || *ops <= 0 || *failRate < 0 || *failRate > 1 {
		fmt.Fprintln(os.Stderr, "members, concurrency and ops must be > 0; fail-rate must be within [0,1]")
		os.Exit(2)
	}

	ctx := context.Background()
	client, cleanup, err := connect(*redisAddr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer cleanup()

	cfg := goMFA.DefaultConfig()
	cfg.Methods = []string{basicmath.URLSegment}
	cfg.Policy.BackupMethod = ""
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	engine, err := goMFA.New().
		WithConfig(cfg).
		WithCatalogue(registry.Catalogue{
			basicmath.URLSegment: func() (method.Method, error) { return basicmath.New(basicmath.Config{}), nil },
		}).
		WithRepository(records.NewRedis(client, *prefix)).
		WithRedis(client).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	ids := make([]goMFA.Member, *members)
	for i := range ids {
		ids[i] = goMFA.Member{ID: "member-" + strconv.Itoa(i), Email: fmt.Sprintf("member-%d@example.com", i)}
	}

	fmt.Printf("registering %d members...\n", *members)
	registerStats := runPhase(*members, *concurrency, func(i int, _ *rand.Rand) error {
		return register(ctx, engine, ids[i])
	})

	loginStats := runPhase(*ops, *concurrency, func(_ int, r *rand.Rand) error {
		wrong := r.Float64() < *failRate
		return login(ctx, engine, ids[r.Intn(len(ids))], wrong)
	})

	snapshot := engine.MetricsSnapshot()
	fmt.Println("---- results ----")
	printStats("register", registerStats)
	printStats("login", loginStats)
	fmt.Printf("login failures=%d lockouts=%d\n",
		snapshot.Counters[goMFA.MetricLoginFailure],
		snapshot.Counters[goMFA.MetricVerificationLocked],
	)
}

func connect(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, errors.Wrap(err, "start miniredis")
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		fmt.Printf("using miniredis at %s\n", mr.Addr())
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	fmt.Printf("using redis at %s\n", addr)
	return client, func() { _ = client.Close() }, nil
}

func register(ctx context.Context, engine *goMFA.Engine, member goMFA.Member) error {
	sess := hostsession.NewMemory()
	start, err := engine.StartRegistration(ctx, sess, member, basicmath.URLSegment)
	if err != nil {
		return err
	}
	res, err := engine.CompleteRegistration(ctx, sess, member, basicmath.URLSegment, answer(start.Props, 0))
	if err != nil {
		return err
	}
	if !res.Successful {
		return errors.Newf("registration rejected: %s", res.Message)
	}
	return nil
}

func login(ctx context.Context, engine *goMFA.Engine, member goMFA.Member, wrong bool) error {
	sess := hostsession.NewMemory()
	start, err := engine.StartLogin(ctx, sess, member, basicmath.URLSegment)
	if err != nil {
		return err
	}
	offset := 0
	if wrong {
		offset = 1
	}
	out, err := engine.CompleteLogin(ctx, sess, member, basicmath.URLSegment, answer(start.Props, offset))
	if err != nil {
		return err
	}
	if !out.FullyVerified {
		return errors.Newf("login rejected: %s", out.Result.Message)
	}
	return nil
}

func answer(props method.Props, offset int) []byte {
	sum := offset
	numbers, _ := props["numbers"].([]int)
	for _, n := range numbers {
		sum += n
	}
	return []byte(`{"number":` + strconv.Itoa(sum) + `}`)
}

// runPhase calls op ops times across concurrency workers, timing each call.
func runPhase(ops, concurrency int, op func(i int, r *rand.Rand) error) phaseStats {
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
				err := op(i, r)
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
	slices.Sort(samples)
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
	switch {
	case len(samples) == 0:
		return 0
	case p <= 0:
		return samples[0]
	case p >= 100:
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
