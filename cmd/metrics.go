package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"nixmate/internal/cli"
	"nixmate/internal/config"
	"nixmate/internal/metrics"
)

const metricsRequestTimeout = 10 * time.Second

var metricsServer string

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show the metrics of a running nixmate server",
	Long: `Fetches the metrics snapshot from a running 'nixmate serve' and prints it:
operation counts, success and cache hit rates, average durations per kind and
failures per category.

The server address defaults to server.listen from the configuration.`,
	Args: cobra.NoArgs,
	RunE: runMetrics,
}

func runMetrics(cmd *cobra.Command, args []string) error {
	printerOpts, err := printerOptions(cmd)
	if err != nil {
		return err
	}

	addr := metricsServer
	if addr == "" {
		cfg, err := config.LoadConfig(rootConfigPath)
		if err != nil {
			return err
		}
		addr = cfg.Server.Listen
	}

	snap, err := fetchMetrics(commandContext(cmd), addr)
	if err != nil {
		return err
	}
	return cli.NewPrinter(cmd.OutOrStdout(), printerOpts).Metrics(snap)
}

// fetchMetrics reads GET /v1/metrics from the server at addr, which may be a
// host:port or a URL.
func fetchMetrics(ctx context.Context, addr string) (metrics.Snapshot, error) {
	base := strings.TrimRight(addr, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}

	ctx, cancel := context.WithTimeout(ctx, metricsRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/v1/metrics", nil)
	if err != nil {
		return metrics.Snapshot{}, fmt.Errorf("invalid server address %q: %w", addr, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return metrics.Snapshot{}, fmt.Errorf("failed to reach nixmate at %s (is 'nixmate serve' running?): %w", base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return metrics.Snapshot{}, fmt.Errorf("nixmate at %s answered %s", base, resp.Status)
	}
	var snap metrics.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return metrics.Snapshot{}, fmt.Errorf("failed to decode metrics: %w", err)
	}
	return snap, nil
}

func init() {
	metricsCmd.Flags().StringVar(&metricsServer, "server", "", "Address of the nixmate server (host:port or URL)")
	rootCmd.AddCommand(metricsCmd)
}
