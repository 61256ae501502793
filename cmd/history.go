package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"nixmate/internal/cli"
	"nixmate/internal/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recently run operations",
	Long: `Lists the latest operations from the history journal, newest first,
including cache hits and recovered failures.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		printerOpts, err := printerOptions(cmd)
		if err != nil {
			return err
		}

		a, err := newApplication(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.History(commandContext(cmd), historyLimit)
		if err != nil {
			return err
		}
		if err := cli.NewPrinter(cmd.OutOrStdout(), printerOpts).History(records); err != nil {
			return fmt.Errorf("failed to print history: %w", err)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", history.DefaultLimit, "Number of operations to show")
	rootCmd.AddCommand(historyCmd)
}
