package app

import (
	"context"
	"fmt"
	"os"

	"nixmate/internal/config"
	"nixmate/internal/history"
	"nixmate/internal/operation"
	"nixmate/internal/progress"
	"nixmate/pkg/logging"
)

// Application is the entry point the commands use: it loads configuration,
// builds the services and runs operations through them.
//
// Example usage:
//
//	a, err := app.NewApplication(ctx, app.NewConfig(false, ""))
//	if err != nil {
//	    return fmt.Errorf("failed to create application: %w", err)
//	}
//	defer a.Close()
//	res := a.Execute(ctx, operation.New(operation.KindListGenerations, nil), nil)
type Application struct {
	config   *Config
	services *Services
}

// NewApplication initializes logging, loads the configuration unless one is
// already set on cfg, and initializes the services.
func NewApplication(ctx context.Context, cfg *Config) (*Application, error) {
	if cfg.NixmateConfig == nil {
		// Loader messages before logging is configured are dropped.
		loaded, err := config.LoadConfig(cfg.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load nixmate configuration: %w", err)
		}
		cfg.NixmateConfig = &loaded
	}
	initLogging(cfg)
	logging.Debug("Bootstrap", "Configuration loaded from %q", cfg.ConfigPath)

	services, err := InitializeServices(ctx, cfg)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &Application{
		config:   cfg,
		services: services,
	}, nil
}

func initLogging(cfg *Config) {
	output := cfg.LogOutput
	if output == nil {
		output = os.Stderr
	}

	if !cfg.Serve {
		level := logging.LevelWarn
		if cfg.Debug {
			level = logging.LevelDebug
		}
		logging.InitForCLI(level, output)
		return
	}

	opts := logging.Options{
		Level:  logging.ParseLevel(cfg.NixmateConfig.Logging.Level),
		Format: logging.Format(cfg.NixmateConfig.Logging.Format),
		Output: output,
	}
	if cfg.Debug {
		opts.Level = logging.LevelDebug
	}
	logging.Init(opts)
}

// Services returns the initialized services.
func (a *Application) Services() *Services {
	return a.services
}

// Execute runs op through the orchestrator.
func (a *Application) Execute(ctx context.Context, op operation.Operation, cb progress.Callback) operation.Result {
	return a.services.Orchestrator.Execute(ctx, op, cb)
}

// History returns the latest journal records. It fails when history is
// disabled or could not be opened.
func (a *Application) History(ctx context.Context, limit int) ([]history.Record, error) {
	if a.services.Journal == nil {
		return nil, fmt.Errorf("operation history is disabled")
	}
	return a.services.Journal.Recent(ctx, limit)
}

// Serve runs the HTTP API until ctx is cancelled or a termination signal
// arrives.
func (a *Application) Serve(ctx context.Context) error {
	return runServeMode(ctx, a.config, a.services)
}

// Close releases the services.
func (a *Application) Close() error {
	return a.services.Close()
}
