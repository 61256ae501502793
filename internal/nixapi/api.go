package nixapi

import (
	"fmt"

	"nixmate/internal/operation"
)

// ProgressFunc receives native progress. Fraction is in [0, 1].
type ProgressFunc func(message string, fraction float64)

// BuildRequest selects the configuration to build.
type BuildRequest struct {
	// ConfigPath overrides nixos-config for channel-based systems.
	ConfigPath string
	// Flake is a local flake path with an optional "#host" suffix.
	Flake string
	// Upgrade refreshes channels before building.
	Upgrade bool
}

// API is the blocking native interface.
type API interface {
	ListGenerations() ([]operation.Generation, error)
	SearchPackages(query string, limit int) ([]operation.Package, error)
	// Build realises the system closure and returns its store path.
	Build(req BuildRequest, progress ProgressFunc) (string, error)
	// Switch builds, adds a profile generation and activates it.
	Switch(req BuildRequest, progress ProgressFunc) (string, error)
	// Rollback activates generation, or the one before the current
	// generation when generation is 0. It returns the activated number.
	Rollback(generation int, progress ProgressFunc) (int, error)
	Install(pkg string, progress ProgressFunc) error
	Remove(pkg string, progress ProgressFunc) error
	Repair(checkContents bool, progress ProgressFunc) error
	// DryRun returns the store paths a build would produce or fetch.
	DryRun(req BuildRequest) ([]string, error)
	CollectGarbage() error
}

// Error is returned by Native for every failed call.
type Error struct {
	Op       string
	Message  string
	Output   string
	ExitCode int
	Err      error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op + " failed"
}

func (e *Error) Unwrap() error { return e.Err }
