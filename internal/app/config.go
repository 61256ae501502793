package app

import (
	"io"

	"nixmate/internal/command"
	"nixmate/internal/config"
	"nixmate/internal/resolver"
	"nixmate/internal/security"
)

// Config holds the application configuration
type Config struct {
	// Debug enables debug logging
	Debug bool

	// Serve selects the logging setup of the long-running mode
	Serve bool

	// Custom configuration directory (optional)
	ConfigPath string

	// LogOutput receives log lines; defaults to stderr
	LogOutput io.Writer

	// Loaded configuration; LoadConfig is skipped when set
	NixmateConfig *config.Config

	// Probes replaces the default resolver probe chain when not nil
	Probes []resolver.Probe

	// Runner replaces process execution when not nil
	Runner command.Runner

	// Privilege replaces the process privilege check when not nil
	Privilege security.PrivilegeChecker
}

// NewConfig creates a new application configuration
func NewConfig(debug bool, configPath string) *Config {
	return &Config{
		Debug:      debug,
		ConfigPath: configPath,
	}
}
