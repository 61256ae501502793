package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"nixmate/internal/operation"
)

var searchCmd = &cobra.Command{
	Use:   "search QUERY...",
	Short: "Search available packages",
	Long: `Searches the packages of the configured channel by name and description.
All words of the query must match.`,
	Example: `  nixmate search firefox
  nixmate search python3 requests --limit 5`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := changedOptions(cmd, map[string]string{"limit": operation.OptLimit})
		if err != nil {
			return err
		}
		opts[operation.OptQuery] = strings.Join(args, " ")
		return runOperation(cmd, operation.KindSearch, opts)
	},
}

func init() {
	searchCmd.Flags().Int("limit", 0, "Show at most this many packages (0 shows all)")
	rootCmd.AddCommand(searchCmd)
}
