package cmd

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/backend/memory"
	"github.com/MrEthical07/goGuard/session"
)

type loadtestOptions struct {
	sessions    int
	users       int
	concurrency int
	ops         int
}

var loadOpts loadtestOptions

var loadtestCmd = &cobra.Command{
	Use:   "loadtest",
	Short: "Measure session load and guard latency against Redis",
	Long: `loadtest seeds sessions through the engine, then runs two phases with
concurrent workers: load+check (session load plus a NotBanned role chain) and
load+touch (session load plus a persisted touch).

It uses redis.addr when configured and an embedded miniredis otherwise.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := LoadConfig(configPath)
		if err != nil {
			return err
		}
		if loadOpts.sessions <= 0 || loadOpts.users <= 0 || loadOpts.concurrency <= 0 || loadOpts.ops <= 0 {
			return fmt.Errorf("sessions, users, concurrency and ops must be > 0")
		}

		addr := cfg.Redis.Addr
		if addr == "" {
			mr, err := miniredis.Run()
			if err != nil {
				return fmt.Errorf("start miniredis: %w", err)
			}
			defer mr.Close()
			addr = mr.Addr()
			fmt.Fprintf(cmd.OutOrStdout(), "using miniredis at %s\n", addr)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{addr},
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()

		return runLoadtest(cmd.Context(), cmd.OutOrStdout(), cfg.GoGuard, client, loadOpts)
	},
}

func init() {
	rootCmd.AddCommand(loadtestCmd)
	f := loadtestCmd.Flags()
	f.IntVar(&loadOpts.sessions, "sessions", 10000, "sessions to seed")
	f.IntVar(&loadOpts.users, "users", 100, "distinct users the sessions belong to")
	f.IntVar(&loadOpts.concurrency, "concurrency", 64, "concurrent workers")
	f.IntVar(&loadOpts.ops, "ops", 50000, "operations per phase")
}

func runLoadtest(ctx context.Context, out io.Writer, cfg goGuard.Config, client redis.UniversalClient, opts loadtestOptions) error {
	cfg.Audit.Enabled = false
	backend, err := memory.New(memory.WithPasswordConfig(cfg.Password))
	if err != nil {
		return err
	}
	engine, err := goGuard.New[uuid.UUID, memory.User]().
		WithConfig(cfg).
		WithBackend(backend).
		WithRedis(client).
		WithLogger(zap.NewNop()).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close(ctx)

	users := make([]memory.User, opts.users)
	for i := range users {
		// Passwordless accounts skip Argon2 during seeding.
		u, err := backend.CreateUser(ctx, fmt.Sprintf("load-%d@example.com", i), "", true, goGuard.RoleModerator)
		if err != nil {
			return err
		}
		users[i] = u
	}

	fmt.Fprintf(out, "seeding %d sessions for %d users...\n", opts.sessions, opts.users)
	seedStart := time.Now()
	ids := make([]string, opts.sessions)
	for i := range ids {
		sess := engine.Load(ctx, engine.NewHandle(""))
		if err := sess.LoginWithMetadata(ctx, users[i%len(users)], "goguard-loadtest", "127.0.0.1"); err != nil {
			return fmt.Errorf("seed session %d: %w", i, err)
		}
		ids[i] = sess.ID()
	}
	fmt.Fprintf(out, "seeded in %s\n", time.Since(seedStart).Round(time.Millisecond))

	reqs := goGuard.AuthRequirements().Authenticated().Verified().NotBanned().RoleAtLeast(goGuard.RoleModerator)
	check := runPhase(ids, opts, func(id string) error {
		sess := engine.Load(ctx, engine.NewHandle(id))
		return goGuard.CheckRequirements(ctx, sess, reqs)
	})
	touch := runPhase(ids, opts, func(id string) error {
		sess := engine.Load(ctx, engine.NewHandle(id))
		if !sess.IsAuthenticated() {
			return session.ErrNotFound
		}
		return sess.Touch(ctx)
	})

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "load+check", check)
	printStats(out, "load+touch", touch)
	if check.failures > 0 || touch.failures > 0 {
		return fmt.Errorf("%d operations failed", check.failures+touch.failures)
	}
	return nil
}

func runPhase(ids []string, opts loadtestOptions, op func(id string) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, opts.ops)
	)

	start := time.Now()
	for w := 0; w < opts.concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			local := make([]time.Duration, 0, opts.ops/opts.concurrency+1)
			for atomic.AddInt64(&cursor, 1) <= int64(opts.ops) {
				id := ids[r.Intn(len(ids))]
				t0 := time.Now()
				if err := op(id); err != nil {
					atomic.AddInt64(&failures, 1)
				}
				local = append(local, time.Since(t0))
			}
			mu.Lock()
			latencies = append(latencies, local...)
			mu.Unlock()
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
		return phaseStats{total: total, failures: failures}
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

// percentile expects sorted samples.
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

func printStats(out io.Writer, name string, s phaseStats) {
	fmt.Fprintf(out, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
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
