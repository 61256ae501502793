package cmd

import (
	"github.com/spf13/cobra"

	"nixmate/internal/operation"
)

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Verify and repair the Nix store",
	Long: `Verifies the Nix store database and repairs what it can. With
--check-contents every store path is also hashed, which can take a long time.

Requires root.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := changedOptions(cmd, map[string]string{"check-contents": operation.OptCheckContents})
		if err != nil {
			return err
		}
		return runOperation(cmd, operation.KindRepair, opts)
	},
}

func init() {
	repairCmd.Flags().Bool("check-contents", false, "Hash every store path against the database")
	rootCmd.AddCommand(repairCmd)
}
