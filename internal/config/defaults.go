package config

import "time"

const (
	DefaultCacheTTL       = 300 * time.Second
	DefaultSearchTTL      = 60 * time.Second
	DefaultDryRunTTL      = 120 * time.Second
	DefaultReadTimeout    = 30 * time.Second
	DefaultBuildTimeout   = 2 * time.Hour
	DefaultMutateTimeout  = 30 * time.Minute
	DefaultDryRunTimeout  = 10 * time.Minute
	DefaultListenAddress  = "127.0.0.1:8765"
	DefaultHistoryFile    = "history.db"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultSystemProfiles = "/nix/var/nix/profiles"
)

// GetDefaultConfig returns the built-in configuration that config.yaml and
// the environment are layered on.
func GetDefaultConfig() Config {
	return Config{
		Enhanced: true,
		Cache: CacheConfig{
			TTL: DefaultCacheTTL,
			KindTTL: map[string]time.Duration{
				"search":  DefaultSearchTTL,
				"dry_run": DefaultDryRunTTL,
			},
		},
		Executor: ExecutorConfig{
			ReadTimeout:    DefaultReadTimeout,
			BuildTimeout:   DefaultBuildTimeout,
			DefaultTimeout: DefaultMutateTimeout,
			Timeouts: map[string]time.Duration{
				"dry_run": DefaultDryRunTimeout,
			},
		},
		Security: SecurityConfig{
			AllowedRoots: []string{"/etc/nixos", "/home", "/root"},
		},
		History: HistoryConfig{
			Enabled: true,
		},
		Server: ServerConfig{
			Listen: DefaultListenAddress,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
