package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/backend/memory"
	"github.com/MrEthical07/goGuard/backend/postgres"
	"github.com/MrEthical07/goGuard/oauth"
	"github.com/MrEthical07/goGuard/password"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reference HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := LoadConfig(configPath)
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg.Log)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		in, err := openInfra(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := in.close(); err != nil {
				logger.Warn("closing infrastructure", zap.Error(err))
			}
		}()
		go sweepBolt(ctx, in.bolt, cfg.Bolt.SweepInterval, logger)

		if cfg.Postgres.DSN != "" {
			return servePostgres(ctx, cfg, in, logger)
		}
		return serveMemory(ctx, cfg, in, logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serveMemory(ctx context.Context, cfg AppConfig, in *infra, logger *zap.Logger) error {
	backend, err := memory.New(memory.WithPasswordConfig(cfg.GoGuard.Password))
	if err != nil {
		return err
	}
	if cfg.Seed.Email != "" {
		if _, err := backend.CreateUser(ctx, cfg.Seed.Email, cfg.Seed.Password, cfg.Seed.Verified, cfg.Seed.Role); err != nil {
			return fmt.Errorf("seed user: %w", err)
		}
		logger.Info("seeded user", zap.String("email", cfg.Seed.Email), zap.Int32("role", cfg.Seed.Role))
	}
	logger.Warn("using in-memory user backend")
	return run[memory.User](ctx, cfg, in, backend, logger)
}

func servePostgres(ctx context.Context, cfg AppConfig, in *infra, logger *zap.Logger) error {
	pool, err := postgres.Connect(ctx, cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	if cfg.Postgres.ApplySchema {
		if _, err := pool.Exec(ctx, postgres.Schema); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	passwords, err := password.FromConfig(cfg.GoGuard.Password)
	if err != nil {
		return err
	}
	backend, err := postgres.New(pool, postgres.WithPasswords(passwords))
	if err != nil {
		return err
	}
	if cfg.Seed.Email != "" {
		if _, found, err := backend.FindByEmail(ctx, cfg.Seed.Email); err != nil {
			return err
		} else if !found {
			if _, err := backend.CreateUser(ctx, cfg.Seed.Email, cfg.Seed.Password, cfg.Seed.Verified, cfg.Seed.Role); err != nil {
				return fmt.Errorf("seed user: %w", err)
			}
			logger.Info("seeded user", zap.String("email", cfg.Seed.Email))
		}
	}
	logger.Info("using postgres user backend")
	return run[postgres.User](ctx, cfg, in, backend, logger)
}

func run[U goGuard.AuthUser[uuid.UUID]](ctx context.Context, cfg AppConfig, in *infra, users accounts[U], logger *zap.Logger) error {
	b := goGuard.New[uuid.UUID, U]().
		WithConfig(cfg.GoGuard).
		WithBackend(users).
		WithSessionStore(in.store).
		WithLogger(logger)
	if in.sink != nil {
		b = b.WithAuditSink(in.sink)
	} else if cfg.GoGuard.Audit.Enabled {
		b = b.WithAuditSink(goGuard.NewJSONWriterSink(os.Stderr))
	}
	engine, err := b.Build()
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := engine.Close(closeCtx); err != nil {
			logger.Warn("audit drain incomplete", zap.Error(err))
		}
	}()

	var flow *oauth.Flow[uuid.UUID, U]
	if cfg.Google.ClientID != "" {
		flow = oauth.NewFlow(engine, oauth.NewGoogle(cfg.Google), in.csrf, users)
		logger.Info("google sign-in enabled")
	}

	handler, err := newRouter(engine, users, flow)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	done := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			done <- fmt.Errorf("server failed: %w", err)
			return
		}
		done <- nil
	}()
	logger.Info("listening", zap.String("addr", cfg.Server.Addr))

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-done:
		return err
	}
}
