package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/audit/kafka"
	"github.com/MrEthical07/goGuard/oauth"
	"github.com/MrEthical07/goGuard/session"
)

// infra holds the process-wide clients chosen by the config. close releases
// them in reverse order of acquisition.
type infra struct {
	redis   redis.UniversalClient
	store   session.Store
	bolt    *session.BoltStore
	csrf    oauth.CSRFStorage
	sink    goGuard.AuditSink
	closers []func() error
}

func (in *infra) onClose(fn func() error) {
	in.closers = append(in.closers, fn)
}

func (in *infra) close() error {
	var errs []error
	for i := len(in.closers) - 1; i >= 0; i-- {
		if err := in.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// openInfra picks Redis when configured, then bbolt, then memory for
// sessions. CSRF state follows Redis or stays in memory.
func openInfra(ctx context.Context, cfg AppConfig, logger *zap.Logger) (*infra, error) {
	in := &infra{}

	if cfg.Redis.Addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Redis.Addr},
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		in.onClose(client.Close)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = in.close()
			return nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
		}
		in.redis = client

		var opts []session.RedisStoreOption
		if cfg.GoGuard.Session.SlidingExpiration {
			opts = append(opts, session.WithSlidingExpiration(cfg.GoGuard.Session.TTL))
		}
		if cfg.GoGuard.Session.JitterRange > 0 {
			opts = append(opts, session.WithJitter(cfg.GoGuard.Session.JitterRange))
		}
		in.store = session.NewRedisStore(client, cfg.GoGuard.Session.RedisPrefix, opts...)
		in.csrf = oauth.NewRedisCSRFStore(client)
		logger.Info("using redis", zap.String("addr", cfg.Redis.Addr))
	} else {
		in.csrf = oauth.NewMemoryCSRFStore()
	}

	if in.store == nil && cfg.Bolt.Path != "" {
		bolt, err := session.OpenBoltStore(cfg.Bolt.Path, nil)
		if err != nil {
			_ = in.close()
			return nil, err
		}
		in.onClose(bolt.Close)
		in.bolt = bolt
		in.store = bolt
		logger.Info("using bbolt session store", zap.String("path", cfg.Bolt.Path))
	}
	if in.store == nil {
		in.store = session.NewMemoryStore()
		logger.Warn("using in-memory session store; sessions are lost on restart")
	}

	if len(cfg.Kafka.Brokers) > 0 {
		sink, err := kafka.New(cfg.Kafka, logger.Named("audit"))
		if err != nil {
			_ = in.close()
			return nil, fmt.Errorf("kafka audit sink: %w", err)
		}
		in.onClose(sink.Close)
		in.sink = sink
	}
	return in, nil
}

// sweepBolt removes expired bbolt sessions every interval until ctx ends.
// Redis and memory stores expire entries themselves.
func sweepBolt(ctx context.Context, store *session.BoltStore, interval time.Duration, logger *zap.Logger) {
	if store == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.Sweep(ctx)
			if err != nil {
				logger.Warn("session sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Debug("swept expired sessions", zap.Int("removed", n))
			}
		}
	}
}
