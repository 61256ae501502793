package cmd

import (
	"github.com/spf13/cobra"

	"nixmate/internal/operation"
)

var dryRunCmd = &cobra.Command{
	Use:   "dry-run",
	Short: "Show what an update would build and download",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := changedOptions(cmd, map[string]string{
			"file":    operation.OptConfigPath,
			"flake":   operation.OptFlake,
			"upgrade": operation.OptUpgrade,
		})
		if err != nil {
			return err
		}
		return runOperation(cmd, operation.KindDryRun, opts)
	},
}

func init() {
	dryRunCmd.Flags().StringP("file", "f", "", "Configuration file to evaluate instead of the default")
	dryRunCmd.Flags().String("flake", "", "Local flake to evaluate, optionally with #host")
	dryRunCmd.Flags().Bool("upgrade", false, "Include a channel update")
	rootCmd.AddCommand(dryRunCmd)
}
