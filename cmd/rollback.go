package cmd

import (
	"github.com/spf13/cobra"

	"nixmate/internal/operation"
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback [GENERATION]",
	Short: "Switch back to a previous system generation",
	Long: `Switches the system back to the previous generation, or to GENERATION when
given. Rolling back to an explicit generation with --force also needs --yes.

Requires root.`,
	Example: `  nixmate rollback
  nixmate rollback 41`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := changedOptions(cmd, map[string]string{
			"force": operation.OptForce,
			"yes":   operation.OptConfirm,
		})
		if err != nil {
			return err
		}
		if len(args) == 1 {
			// Canonicalisation parses and range-checks the number.
			opts[operation.OptGenerationNumber] = args[0]
		}
		return runOperation(cmd, operation.KindRollback, opts)
	},
}

func init() {
	rollbackCmd.Flags().Bool("force", false, "Force the rollback (requires --yes)")
	rollbackCmd.Flags().BoolP("yes", "y", false, "Confirm a forced rollback")
	rootCmd.AddCommand(rollbackCmd)
}
