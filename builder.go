package goGuard

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/MrEthical07/goGuard/internal/audit"
	"github.com/MrEthical07/goGuard/session"
)

const tracerName = "github.com/MrEthical07/goGuard"

// Builder assembles an Engine. A builder produces exactly one engine.
type Builder[ID comparable, U AuthUser[ID]] struct {
	config Config

	backend AuthBackend[ID, U]
	store   session.Store
	redis   redis.UniversalClient

	logger         *zap.Logger
	auditSink      AuditSink
	tracerProvider trace.TracerProvider
	now            func() time.Time

	built bool
}

// New starts a builder with DefaultConfig.
func New[ID comparable, U AuthUser[ID]]() *Builder[ID, U] {
	return &Builder[ID, U]{
		config: DefaultConfig(),
	}
}

func (b *Builder[ID, U]) WithConfig(cfg Config) *Builder[ID, U] {
	b.config = cfg
	return b
}

func (b *Builder[ID, U]) WithBackend(backend AuthBackend[ID, U]) *Builder[ID, U] {
	b.backend = backend
	return b
}

// WithSessionStore sets the store sessions are persisted in. It takes
// precedence over WithRedis.
func (b *Builder[ID, U]) WithSessionStore(store session.Store) *Builder[ID, U] {
	b.store = store
	return b
}

// WithRedis builds a session.RedisStore from the session config.
func (b *Builder[ID, U]) WithRedis(client redis.UniversalClient) *Builder[ID, U] {
	b.redis = client
	return b
}

func (b *Builder[ID, U]) WithLogger(logger *zap.Logger) *Builder[ID, U] {
	b.logger = logger
	return b
}

// WithAuditSink sets the sink for audit events. Events are only produced when
// Config.Audit.Enabled is true.
func (b *Builder[ID, U]) WithAuditSink(sink AuditSink) *Builder[ID, U] {
	b.auditSink = sink
	return b
}

func (b *Builder[ID, U]) WithTracerProvider(tp trace.TracerProvider) *Builder[ID, U] {
	b.tracerProvider = tp
	return b
}

// WithClock replaces time.Now for every timestamp the engine takes.
func (b *Builder[ID, U]) WithClock(now func() time.Time) *Builder[ID, U] {
	b.now = now
	return b
}

func (b *Builder[ID, U]) WithMetricsEnabled(enabled bool) *Builder[ID, U] {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder[ID, U]) WithLatencyHistograms(enabled bool) *Builder[ID, U] {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns the engine.
func (b *Builder[ID, U]) Build() (*Engine[ID, U], error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.backend == nil {
		return nil, errors.New("auth backend required")
	}

	store := b.store
	if store == nil {
		if b.redis == nil {
			return nil, errors.New("session store or redis client required")
		}
		var opts []session.RedisStoreOption
		if cfg.Session.SlidingExpiration {
			opts = append(opts, session.WithSlidingExpiration(cfg.Session.TTL))
		}
		if cfg.Session.JitterRange > 0 {
			opts = append(opts, session.WithJitter(cfg.Session.JitterRange))
		}
		store = session.NewRedisStore(b.redis, cfg.Session.RedisPrefix, opts...)
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tp := b.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	engine := &Engine[ID, U]{
		config:  cfg,
		backend: b.backend,
		store:   store,
		logger:  logger.Named("goguard"),
		tracer:  tp.Tracer(tracerName),
		audit:   audit.NewDispatcher(cfg.Audit, b.auditSink),
		metrics: NewMetrics(cfg.Metrics),
		now:     now,
	}

	b.built = true
	return engine, nil
}
