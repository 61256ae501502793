package app

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"nixmate/internal/server"
	"nixmate/internal/watch"
	"nixmate/pkg/logging"
)

const shutdownTimeout = 10 * time.Second

// notify is replaced in tests.
var notify = func(state string) {
	sent, err := daemon.SdNotify(false, state)
	switch {
	case err != nil:
		logging.Warn("Serve", "Failed to notify systemd (%s): %v", state, err)
	case sent:
		logging.Debug("Serve", "Notified systemd: %s", state)
	}
}

// runServeMode serves the HTTP API until ctx is cancelled or SIGINT/SIGTERM
// arrives.
//
// Behavior:
//   - Starts the HTTP server on server.listen
//   - Starts the profile watcher when caching is enabled
//   - Sends READY=1 to systemd once listening
//   - Sends STOPPING=1 and shuts down gracefully when signaled
func runServeMode(ctx context.Context, cfg *Config, services *Services) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(server.Config{
		Listen:  services.Config.Server.Listen,
		Runner:  services.Orchestrator,
		Metrics: services.Metrics,
		Status:  services.Status,
		History: historySource(services),
	})
	addr, err := srv.Start()
	if err != nil {
		logging.Error("Serve", err, "Failed to start HTTP server")
		return err
	}

	if services.Cache != nil && services.ProfileDir != "" {
		w := watch.New(services.ProfileDir, services.Cache)
		if err := w.Start(ctx); err != nil {
			// Cached reads are still bounded by their TTL.
			logging.Warn("Serve", "Profile watcher not started: %v", err)
		} else {
			defer w.Stop()
		}
	}

	notify(daemon.SdNotifyReady)
	logging.Info("Serve", "nixmate serving on %s (executor=%s)", addr, services.Executor.Name())

	<-ctx.Done()

	notify(daemon.SdNotifyStopping)
	logging.Info("Serve", "Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error("Serve", err, "HTTP server did not shut down cleanly")
		return err
	}
	return nil
}

// historySource avoids handing the server a typed nil journal.
func historySource(services *Services) server.HistorySource {
	if services.Journal == nil {
		return nil
	}
	return services.Journal
}
