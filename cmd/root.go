package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"nixmate/internal/app"
	"nixmate/internal/cli"
	"nixmate/internal/config"
	"nixmate/internal/operation"
)

var (
	// rootDebug enables debug logging on stderr for every command.
	rootDebug bool

	// rootConfigPath is the directory holding config.yaml.
	rootConfigPath string

	// outputFlags are shared by every command that prints results.
	outputFlags cli.CommandFlags
)

// newAppConfig builds the application configuration for a command. Tests
// replace it to inject a command runner and probes.
var newAppConfig = func() *app.Config {
	return app.NewConfig(rootDebug, rootConfigPath)
}

// rootCmd represents the base command for the nixmate application.
var rootCmd = &cobra.Command{
	Use:   "nixmate",
	Short: "Manage a NixOS system through one validated, cached interface",
	Long: `nixmate runs NixOS system-management operations (updates, rollbacks,
builds, package installs and searches) through a single pipeline that validates
requests, caches reads, recovers from common failures and reports progress.

It uses the native Nix state directly when available and falls back to the
nixos-rebuild, nix-env and nix-store tools otherwise.

Exit codes:
  0  success
  1  the operation failed
  2  the request was invalid
  3  the operation requires root
  4  the operation timed out`,
	// Failures are printed by the commands themselves; see Execute.
	SilenceUsage:  true,
	SilenceErrors: true,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute runs the root command and exits with the code matching the error.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "nixmate version %s\n" .Version}}`)
	os.Exit(execute(context.Background()))
}

// execute runs the root command and returns the process exit code. SIGINT
// and SIGTERM cancel the running operation, which kills the process group of
// any Nix tool it started.
func execute(ctx context.Context) int {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !cli.Reported(err) {
			fmt.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		}
		return cli.ExitCode(err)
	}
	return cli.ExitSuccess
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&rootDebug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&rootConfigPath, "config-path", config.GetDefaultConfigPath(), "Configuration directory containing config.yaml")
	cli.RegisterOutputFlags(rootCmd, &outputFlags)

	if env := config.EnvDescription(); env != "" {
		rootCmd.Long += "\n\n" + env
	}

	rootCmd.AddCommand(newVersionCmd())
}

// commandContext returns the command context, or Background when the command
// runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// newApplication creates the application for a command.
func newApplication(cmd *cobra.Command) (*app.Application, error) {
	a, err := app.NewApplication(commandContext(cmd), newAppConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize nixmate: %w", err)
	}
	return a, nil
}

// runOperation executes one operation with progress on stderr and prints the
// result on stdout. A failed result becomes an error carrying its exit code.
func runOperation(cmd *cobra.Command, kind operation.Kind, opts map[string]any) error {
	printerOpts, err := printerOptions(cmd)
	if err != nil {
		return err
	}

	a, err := newApplication(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	op := operation.New(kind, opts)
	renderer := cli.NewProgressRenderer(cmd.ErrOrStderr(), printerOpts.Quiet)
	renderer.Start(op.Describe())
	res := a.Execute(commandContext(cmd), op, renderer.Callback())
	renderer.Stop()

	if err := cli.NewPrinter(cmd.OutOrStdout(), printerOpts).Result(res); err != nil {
		return fmt.Errorf("failed to print result: %w", err)
	}
	return cli.ResultError(res)
}

// printerOptions validates the output flags. An invalid format is a usage
// error and exits with the validation code.
func printerOptions(cmd *cobra.Command) (cli.PrinterOptions, error) {
	opts, err := outputFlags.ToPrinterOptions()
	if err != nil {
		return opts, &cli.ExitError{Code: cli.ExitValidation, Err: reportError(cmd, err)}
	}
	return opts, nil
}

// reportError prints err on stderr and returns it.
func reportError(cmd *cobra.Command, err error) error {
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
	return err
}

// changedOptions copies the flags the user set into operation options, so
// unset flags fall back to the operation defaults.
func changedOptions(cmd *cobra.Command, flagToOption map[string]string) (map[string]any, error) {
	opts := make(map[string]any)
	for flag, option := range flagToOption {
		f := cmd.Flags().Lookup(flag)
		if f == nil || !f.Changed {
			continue
		}
		var (
			value any
			err   error
		)
		switch f.Value.Type() {
		case "bool":
			value, err = cmd.Flags().GetBool(flag)
		case "int":
			value, err = cmd.Flags().GetInt(flag)
		default:
			value = f.Value.String()
		}
		if err != nil {
			return nil, err
		}
		opts[option] = value
	}
	return opts, nil
}
