package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/audit/kafka"
	"github.com/MrEthical07/goGuard/oauth"
)

// AppConfig is everything the CLI reads. GoGuard is the engine config and
// starts from goGuard.DefaultConfig.
type AppConfig struct {
	Server   ServerSettings       `mapstructure:"server"`
	Log      LogSettings          `mapstructure:"log"`
	Redis    RedisSettings        `mapstructure:"redis"`
	Postgres PostgresSettings     `mapstructure:"postgres"`
	Bolt     BoltSettings         `mapstructure:"bolt"`
	Kafka    kafka.Config         `mapstructure:"kafka"`
	Google   oauth.ProviderConfig `mapstructure:"google"`
	Seed     SeedSettings         `mapstructure:"seed"`
	GoGuard  goGuard.Config       `mapstructure:"goguard"`
}

type ServerSettings struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogSettings struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// RedisSettings selects Redis for sessions and OAuth state when Addr is set.
type RedisSettings struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// PostgresSettings selects the PostgreSQL backend when DSN is set.
type PostgresSettings struct {
	DSN         string `mapstructure:"dsn"`
	ApplySchema bool   `mapstructure:"apply_schema"`
}

// BoltSettings selects a local bbolt session file when Path is set and no
// Redis address is configured.
type BoltSettings struct {
	Path          string        `mapstructure:"path"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// SeedSettings creates one account at startup when Email is set.
type SeedSettings struct {
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
	Role     int32  `mapstructure:"role"`
	Verified bool   `mapstructure:"verified"`
}

var envKeys = []string{
	"server.addr",
	"server.shutdown_timeout",
	"log.level",
	"log.development",
	"redis.addr",
	"redis.password",
	"redis.db",
	"postgres.dsn",
	"postgres.apply_schema",
	"bolt.path",
	"bolt.sweep_interval",
	"kafka.brokers",
	"kafka.topic",
	"kafka.client_id",
	"google.client_id",
	"google.client_secret",
	"google.redirect_uri",
	"seed.email",
	"seed.password",
	"seed.role",
	"seed.verified",
	"goguard.session.ttl",
	"goguard.session.absolute_lifetime",
	"goguard.session.idle_timeout",
	"goguard.session.dangling",
	"goguard.session.verify_auth_hash",
	"goguard.session.redis_prefix",
	"goguard.cookie.name",
	"goguard.cookie.domain",
	"goguard.cookie.secure",
	"goguard.cookie.same_site",
	"goguard.cookie.signing_key",
	"goguard.ban.cache_age",
	"goguard.oauth.csrf_ttl",
	"goguard.audit.enabled",
	"goguard.audit.buffer_size",
	"goguard.audit.drop_if_full",
	"goguard.metrics.enabled",
	"goguard.metrics.enable_latency_histograms",
}

func defaultAppConfig() AppConfig {
	return AppConfig{
		Server:  ServerSettings{Addr: ":8080", ShutdownTimeout: 10 * time.Second},
		Log:     LogSettings{Level: "info"},
		Bolt:    BoltSettings{SweepInterval: 5 * time.Minute},
		Kafka:   kafka.Config{Topic: kafka.DefaultTopic, ClientID: "goguard"},
		Seed:    SeedSettings{Role: goGuard.RoleUser},
		GoGuard: goGuard.DefaultConfig(),
	}
}

// LoadConfig reads path (optional) and the GOGUARD_ environment on top of
// the defaults, then validates the engine section.
func LoadConfig(path string) (AppConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("GOGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return AppConfig{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return AppConfig{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if google := cfg.Google; google.ClientID != "" && google.AuthURL == "" {
		cfg.Google = oauth.GoogleConfig(google.ClientID, google.ClientSecret, google.RedirectURI)
	}
	if err := cfg.GoGuard.Validate(); err != nil {
		return AppConfig{}, fmt.Errorf("goguard config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg LogSettings) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
