package cmd

import (
	"github.com/spf13/cobra"

	"nixmate/internal/operation"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Build and switch to the current system configuration",
	Long: `Builds the system configuration and makes it the running system, like
nixos-rebuild switch. With --upgrade the channels are updated first.

Requires root.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := changedOptions(cmd, map[string]string{
			"upgrade": operation.OptUpgrade,
			"flake":   operation.OptFlake,
		})
		if err != nil {
			return err
		}
		return runOperation(cmd, operation.KindUpdate, opts)
	},
}

func init() {
	updateCmd.Flags().Bool("upgrade", false, "Update channels before building")
	updateCmd.Flags().String("flake", "", "Local flake to build, optionally with #host")
	rootCmd.AddCommand(updateCmd)
}
