package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/scrip-network/scrip/internal/domain"
)

func init() {
	rootCmd.AddCommand(creditsCmd)
	creditsCmd.AddCommand(creditsMintCmd)
	creditsCmd.AddCommand(creditsPromoCmd)
	creditsCmd.AddCommand(creditsTransferCmd)
	creditsCmd.AddCommand(creditsBalanceCmd)
	creditsCmd.AddCommand(creditsHistoryCmd)

	creditsMintCmd.Flags().String("reason", "", "note recorded on the ledger entry")
	creditsPromoCmd.Flags().String("reason", "", "note recorded on the ledger entry")
	creditsTransferCmd.Flags().String("reason", "", "note recorded on the ledger entry")
	creditsHistoryCmd.Flags().Int("limit", 50, "maximum entries to print")
}

var creditsCmd = &cobra.Command{
	Use:   "credits",
	Short: "Manage the credit ledger",
	Long: `Inspect and move credits on the local store. Every movement is a
ledger entry; balances are projections of the log.`,
}

// ─── credits mint ───────────────────────────────────────────────────────────

var creditsMintCmd = &cobra.Command{
	Use:   "mint IDENTITY AMOUNT",
	Short: "Mint credits to an identity",
	Args:  cobra.ExactArgs(2),
	RunE:  runCreditsMint,
}

func runCreditsMint(cmd *cobra.Command, args []string) error {
	core, err := openCore()
	if err != nil {
		return err
	}
	defer core.Close()

	amount, err := domain.ParseAmount(args[1])
	if err != nil {
		return err
	}
	reason, _ := cmd.Flags().GetString("reason")
	entry, err := core.Ledger.Mint(cmd.Context(), domain.Identity(args[0]), amount, reason)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "minted %s to %s (entry %s)\n", entry.Amount, entry.To, entry.ID)
	return nil
}

// ─── credits promo ──────────────────────────────────────────────────────────

var creditsPromoCmd = &cobra.Command{
	Use:   "promo IDENTITY AMOUNT",
	Short: "Mint promotional credits, subject to the lifetime cap",
	Args:  cobra.ExactArgs(2),
	RunE:  runCreditsPromo,
}

func runCreditsPromo(cmd *cobra.Command, args []string) error {
	core, err := openCore()
	if err != nil {
		return err
	}
	defer core.Close()

	amount, err := domain.ParseAmount(args[1])
	if err != nil {
		return err
	}
	reason, _ := cmd.Flags().GetString("reason")
	entry, err := core.Ledger.PromoMint(cmd.Context(), domain.Identity(args[0]), amount, reason)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "minted %s promo to %s (entry %s)\n", entry.Amount, entry.To, entry.ID)
	return nil
}

// ─── credits transfer ───────────────────────────────────────────────────────

var creditsTransferCmd = &cobra.Command{
	Use:   "transfer FROM TO AMOUNT",
	Short: "Transfer credits between identities",
	Args:  cobra.ExactArgs(3),
	RunE:  runCreditsTransfer,
}

func runCreditsTransfer(cmd *cobra.Command, args []string) error {
	core, err := openCore()
	if err != nil {
		return err
	}
	defer core.Close()

	amount, err := domain.ParseAmount(args[2])
	if err != nil {
		return err
	}
	reason, _ := cmd.Flags().GetString("reason")
	entry, err := core.Ledger.Transfer(cmd.Context(), domain.Identity(args[0]), domain.Identity(args[1]), amount, reason)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "transferred %s from %s to %s\n", entry.Amount, entry.From, entry.To)
	return nil
}

// ─── credits balance ────────────────────────────────────────────────────────

var creditsBalanceCmd = &cobra.Command{
	Use:   "balance IDENTITY",
	Short: "Show an identity's balances",
	Args:  cobra.ExactArgs(1),
	RunE:  runCreditsBalance,
}

func runCreditsBalance(cmd *cobra.Command, args []string) error {
	core, err := openCore()
	if err != nil {
		return err
	}
	defer core.Close()

	acct, err := core.Ledger.Balance(cmd.Context(), domain.Identity(args[0]))
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "balance:  %s\n", acct.Balance)
	fmt.Fprintf(os.Stdout, "promo:    %s (lifetime %s)\n", acct.PromoBalance, acct.PromoLifetime)
	return nil
}

// ─── credits history ────────────────────────────────────────────────────────

var creditsHistoryCmd = &cobra.Command{
	Use:   "history IDENTITY",
	Short: "Print an identity's ledger entries, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runCreditsHistory,
}

func runCreditsHistory(cmd *cobra.Command, args []string) error {
	core, err := openCore()
	if err != nil {
		return err
	}
	defer core.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	entries, err := core.Ledger.History(cmd.Context(), domain.Identity(args[0]), limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stdout, "no ledger entries")
		return nil
	}
	for _, e := range entries {
		from := string(e.From)
		if from == "" {
			from = "-"
		}
		to := string(e.To)
		if to == "" {
			to = "-"
		}
		fmt.Fprintf(os.Stdout, "%s  %-10s %12s  %s → %s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"), e.Kind, e.Amount, from, to)
	}
	return nil
}
