package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/scrip-network/scrip/internal/domain"
)

func init() {
	rootCmd.AddCommand(reputationCmd)
	reputationCmd.AddCommand(reputationScoreCmd)
	reputationCmd.AddCommand(reputationEventsCmd)

	reputationEventsCmd.Flags().Int("limit", 50, "maximum events to print")
}

var reputationCmd = &cobra.Command{
	Use:   "reputation",
	Short: "Inspect earned reputation",
}

var reputationScoreCmd = &cobra.Command{
	Use:   "score IDENTITY",
	Short: "Show an identity's current decayed score",
	Args:  cobra.ExactArgs(1),
	RunE:  runReputationScore,
}

func runReputationScore(cmd *cobra.Command, args []string) error {
	core, err := openCore()
	if err != nil {
		return err
	}
	defer core.Close()

	score, err := core.Reputation.Score(cmd.Context(), domain.Identity(args[0]))
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "score: %s\n", score)
	return nil
}

var reputationEventsCmd = &cobra.Command{
	Use:   "events IDENTITY",
	Short: "Print an identity's reputation events, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runReputationEvents,
}

func runReputationEvents(cmd *cobra.Command, args []string) error {
	core, err := openCore()
	if err != nil {
		return err
	}
	defer core.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	events, err := core.Reputation.Events(cmd.Context(), domain.Identity(args[0]), limit)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(os.Stdout, "no reputation events")
		return nil
	}
	for _, e := range events {
		fmt.Fprintf(os.Stdout, "%s  %-18s %+d  %s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"), e.Kind, e.Weighted, e.Reason)
	}
	return nil
}
