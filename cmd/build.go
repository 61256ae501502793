package cmd

import (
	"github.com/spf13/cobra"

	"nixmate/internal/operation"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the system configuration without switching to it",
	Long: `Builds the system configuration, like nixos-rebuild build, and prints the
resulting store path. The running system is not changed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := changedOptions(cmd, map[string]string{
			"file":  operation.OptConfigPath,
			"flake": operation.OptFlake,
		})
		if err != nil {
			return err
		}
		return runOperation(cmd, operation.KindBuild, opts)
	},
}

func init() {
	buildCmd.Flags().StringP("file", "f", "", "Configuration file to build instead of the default")
	buildCmd.Flags().String("flake", "", "Local flake to build, optionally with #host")
	rootCmd.AddCommand(buildCmd)
}
