package cmd

import (
	"github.com/spf13/cobra"

	"nixmate/internal/operation"
)

var generationsCmd = &cobra.Command{
	Use:     "generations",
	Aliases: []string{"gens", "list-generations"},
	Short:   "List system generations, newest first",
	Long: `Lists the system generations found in the system profile, newest first,
marking the current one. Results are cached until the profile changes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := changedOptions(cmd, map[string]string{"limit": operation.OptLimit})
		if err != nil {
			return err
		}
		return runOperation(cmd, operation.KindListGenerations, opts)
	},
}

func init() {
	generationsCmd.Flags().Int("limit", 0, "Show at most this many generations (0 shows all)")
	rootCmd.AddCommand(generationsCmd)
}
