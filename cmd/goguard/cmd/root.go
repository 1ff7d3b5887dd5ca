package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "goguard",
	Short: "goGuard reference server and session tooling",
	Long: `goguard serves a reference HTTP API guarded by the goGuard engine and
inspects the stores it writes to.

Settings come from an optional config file and GOGUARD_* environment
variables, e.g. GOGUARD_REDIS_ADDR or GOGUARD_GOGUARD_SESSION_TTL.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML, TOML or JSON config file")
}
