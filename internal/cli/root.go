// Package cli implements the command-line interface for prospect.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/colthorp/prospect/internal/core"
)

// Global flags
var (
	configPath  string
	verbose     bool
	quiet       bool
	raw         bool
	token       string
	dumpMetrics bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "prospect",
	Short: "prospect – find and score restaurant prospects",
	Long: `A command-line utility that counts and lists restaurants in an area,
detects the technology on their websites and scores how well each one fits
as a prospect for an online ordering platform.`,
	Version:       core.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default ./prospect.yaml if present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose debug output to stderr")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress progress messages")
	rootCmd.PersistentFlags().BoolVar(&raw, "raw", false, "Emit raw JSON instead of markdown")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", fmt.Sprintf("Access token (default: $%s or auth.token)", core.TokenEnvVar))
	rootCmd.PersistentFlags().BoolVar(&dumpMetrics, "metrics", false, "Write Prometheus metrics to stderr on exit")
}

// resolveToken picks the access token: flag, then environment, then config,
// then "local" for the static verifier's open mode.
func resolveToken(configured string) string {
	switch {
	case token != "":
		return token
	case os.Getenv(core.TokenEnvVar) != "":
		return os.Getenv(core.TokenEnvVar)
	case configured != "":
		return configured
	default:
		return "local"
	}
}
