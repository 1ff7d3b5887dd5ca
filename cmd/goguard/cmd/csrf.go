package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MrEthical07/goGuard/oauth"
)

var errCSRFReplay = errors.New("csrf store accepted a token twice")

var csrfCheckCmd = &cobra.Command{
	Use:   "csrf-check",
	Short: "Verify the OAuth state store is reachable and single-use",
	Long: `csrf-check stores a fresh state token in the configured CSRF store,
consumes it, and confirms a second consume is rejected.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := LoadConfig(configPath)
		if err != nil {
			return err
		}
		in, err := openInfra(cmd.Context(), cfg, zap.NewNop())
		if err != nil {
			return err
		}
		defer in.close()
		return checkCSRF(cmd.Context(), cmd.OutOrStdout(), in.csrf, cfg.GoGuard.OAuth.CSRFTTL)
	},
}

func init() {
	rootCmd.AddCommand(csrfCheckCmd)
}

func checkCSRF(ctx context.Context, out io.Writer, store oauth.CSRFStorage, ttl time.Duration) error {
	token, err := oauth.NewCSRFToken()
	if err != nil {
		return err
	}
	if err := store.Store(ctx, token, ttl); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	ok, err := store.VerifyAndConsume(ctx, token)
	if err != nil {
		return fmt.Errorf("consume token: %w", err)
	}
	if !ok {
		return errors.New("csrf store lost a freshly stored token")
	}
	again, err := store.VerifyAndConsume(ctx, token)
	if err != nil {
		return fmt.Errorf("second consume: %w", err)
	}
	if again {
		return errCSRFReplay
	}
	_, err = fmt.Fprintf(out, "csrf store ok (%T, ttl %s)\n", store, ttl)
	return err
}
