package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"nixmate/internal/app"
)

// serveCmd runs nixmate as a long-lived service.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the operation API over HTTP",
	Long: `Starts the HTTP API on server.listen (default 127.0.0.1:8765):

  POST /v1/operations   run an operation, body {"kind": ..., "options": {...}}
  GET  /v1/metrics      metrics snapshot
  GET  /v1/status       executor and resolver details
  GET  /v1/history      latest operations (?limit=N)
  GET  /metrics         Prometheus metrics
  GET  /health          liveness

While serving, changes to the system profile made outside nixmate invalidate
cached generation listings. Under systemd (Type=notify) readiness and shutdown
are reported with sd_notify. Logs use logging.level and logging.format from
the configuration.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := newAppConfig()
		cfg.Serve = true

		a, err := app.NewApplication(commandContext(cmd), cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize nixmate: %w", err)
		}
		defer a.Close()

		return a.Serve(commandContext(cmd))
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
