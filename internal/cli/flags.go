package cli

import (
	"github.com/spf13/cobra"
)

// CommandFlags holds the output flags shared by every operation command.
type CommandFlags struct {
	// OutputFormat specifies the desired output format (table, json, yaml)
	OutputFormat string
	// NoHeaders suppresses the header row in table output
	NoHeaders bool
	// Quiet suppresses progress indicators and non-essential output
	Quiet bool
	// NoColor disables ANSI colors in table output
	NoColor bool
}

// RegisterOutputFlags registers the output flags as persistent flags of cmd.
//
// The registered flags are:
//   - --output/-o: Output format (table, json, yaml), default: "table"
//   - --no-headers: Suppress header row in table output
//   - --quiet/-q: Suppress progress and non-essential output
//   - --no-color: Disable colors
func RegisterOutputFlags(cmd *cobra.Command, flags *CommandFlags) {
	cmd.PersistentFlags().StringVarP(&flags.OutputFormat, "output", "o", "table", "Output format (table, json, yaml)")
	cmd.PersistentFlags().BoolVar(&flags.NoHeaders, "no-headers", false, "Suppress header row in table output")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "Suppress progress and non-essential output")
	cmd.PersistentFlags().BoolVar(&flags.NoColor, "no-color", false, "Disable colors in table output")
}

// ToPrinterOptions validates the flags and converts them to PrinterOptions.
func (f *CommandFlags) ToPrinterOptions() (PrinterOptions, error) {
	if err := ValidateOutputFormat(f.OutputFormat); err != nil {
		return PrinterOptions{}, err
	}
	return PrinterOptions{
		Format:    OutputFormat(f.OutputFormat),
		NoHeaders: f.NoHeaders,
		Quiet:     f.Quiet,
		NoColor:   f.NoColor,
	}, nil
}
