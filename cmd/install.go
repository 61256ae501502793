package cmd

import (
	"github.com/spf13/cobra"

	"nixmate/internal/operation"
)

var installCmd = &cobra.Command{
	Use:   "install PACKAGE",
	Short: "Install a package into the default profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := changedOptions(cmd, map[string]string{"yes": operation.OptConfirm})
		if err != nil {
			return err
		}
		opts[operation.OptPackageName] = args[0]
		return runOperation(cmd, operation.KindInstall, opts)
	},
}

func init() {
	installCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(installCmd)
}
