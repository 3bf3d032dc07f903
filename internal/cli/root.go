// Package cli implements the scripd command line interface.
package cli

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "scripd",
	Short: "Settlement core for the bounty marketplace",
	Long: `scripd runs the settlement core: an event-sourced credit ledger with
escrow-backed bounties, policy-gated approvals, bonded disputes, and
earned reputation. Credits move only through ledger entries; balances
are a projection that always replays from the log.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.toml (default ~/.scrip/config.toml)")
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}
