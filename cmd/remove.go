package cmd

import (
	"github.com/spf13/cobra"

	"nixmate/internal/operation"
)

var removeCmd = &cobra.Command{
	Use:     "remove PACKAGE",
	Aliases: []string{"uninstall"},
	Short:   "Remove a package from the default profile",
	Long: `Removes a package from the default profile. --force also needs --yes.

Requires root.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := changedOptions(cmd, map[string]string{
			"force": operation.OptForce,
			"yes":   operation.OptConfirm,
		})
		if err != nil {
			return err
		}
		opts[operation.OptPackageName] = args[0]
		return runOperation(cmd, operation.KindRemove, opts)
	},
}

func init() {
	removeCmd.Flags().Bool("force", false, "Force the removal (requires --yes)")
	removeCmd.Flags().BoolP("yes", "y", false, "Confirm a forced removal")
	rootCmd.AddCommand(removeCmd)
}
