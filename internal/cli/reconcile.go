package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(reconcileCmd)
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Replay the ledger and report balance drift",
	Long: `Recompute every identity's spendable balance from its ledger entries
and compare against the stored projection. A clean run prints nothing
and exits zero; drifted identities are listed and the exit code is
non-zero.`,
	RunE: runReconcile,
}

func runReconcile(cmd *cobra.Command, args []string) error {
	core, err := openCore()
	if err != nil {
		return err
	}
	defer core.Close()

	drifts, err := core.Ledger.Reconcile(cmd.Context())
	if err != nil {
		return err
	}
	if len(drifts) == 0 {
		fmt.Fprintln(os.Stdout, "ledger balanced")
		return nil
	}
	for _, d := range drifts {
		fmt.Fprintf(os.Stdout, "%s: expected %d, stored %d (drift %d)\n",
			d.Identity, d.Expected, d.Actual, d.Drift())
	}
	return fmt.Errorf("%d identities drifted", len(drifts))
}
