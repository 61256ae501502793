package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"nixmate/internal/cli"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which executor nixmate uses and how it is configured",
	Long: `Resolves the native API the same way every command does and reports the
result: the executor in use, how the native API was found, the profile
directory and whether caching and history are enabled.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	printerOpts, err := printerOptions(cmd)
	if err != nil {
		return err
	}

	a, err := newApplication(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	services := a.Services()
	st := services.Status()

	source := st.ResolverSource
	if source == "" {
		source = "none (native API unavailable)"
	}
	historyPath := "disabled"
	if services.Journal != nil {
		historyPath = services.Config.History.Path
	}

	pairs := [][2]string{
		{"executor", st.Executor},
		{"resolver source", source},
		{"profile directory", st.ProfileDir},
		{"enhanced", strconv.FormatBool(st.Enhanced)},
		{"cache entries", strconv.Itoa(st.CacheEntries)},
		{"history", historyPath},
	}
	if err := cli.NewPrinter(cmd.OutOrStdout(), printerOpts).KeyValues(pairs, st); err != nil {
		return fmt.Errorf("failed to print status: %w", err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
