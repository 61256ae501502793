package config

import "time"

// Config is the top-level configuration structure for nixmate.
type Config struct {
	// NativeAPIPath overrides discovery of the Nix profile directory used by
	// the native API. Empty means "probe the conventional locations".
	NativeAPIPath string `yaml:"nativeAPIPath,omitempty" env:"NIXMATE_NATIVE_API_PATH"`

	// Enhanced toggles caching and automatic error recovery.
	Enhanced bool `yaml:"enhanced" env:"NIXMATE_ENHANCED"`

	Cache    CacheConfig    `yaml:"cache"`
	Executor ExecutorConfig `yaml:"executor"`
	Security SecurityConfig `yaml:"security"`
	History  HistoryConfig  `yaml:"history"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// CacheConfig configures the operation cache.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl" env:"NIXMATE_CACHE_TTL"`
	// KindTTL overrides TTL per operation kind ("search", "list_generations", "dry_run").
	KindTTL map[string]time.Duration `yaml:"kindTTL,omitempty"`
	// PersistentDir enables the on-disk cache store shared between CLI invocations.
	PersistentDir string `yaml:"persistentDir,omitempty" env:"NIXMATE_CACHE_DIR"`
}

// ExecutorConfig configures the worker pool and per-kind timeouts.
type ExecutorConfig struct {
	// Workers bounds concurrent native calls and subprocesses. Zero means GOMAXPROCS.
	Workers      int           `yaml:"workers,omitempty" env:"NIXMATE_WORKERS"`
	ReadTimeout  time.Duration `yaml:"readTimeout" env:"NIXMATE_READ_TIMEOUT"`
	BuildTimeout time.Duration `yaml:"buildTimeout" env:"NIXMATE_BUILD_TIMEOUT"`
	// DefaultTimeout applies to kinds that are neither reads nor builds.
	DefaultTimeout time.Duration `yaml:"defaultTimeout" env:"NIXMATE_DEFAULT_TIMEOUT"`
	// Timeouts overrides the timeout for individual kinds.
	Timeouts map[string]time.Duration `yaml:"timeouts,omitempty"`
}

// SecurityConfig configures request validation.
type SecurityConfig struct {
	// AllowedRoots lists directories that path options must resolve into.
	AllowedRoots []string `yaml:"allowedRoots,omitempty"`
}

// HistoryConfig configures the operation journal.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled" env:"NIXMATE_HISTORY_ENABLED"`
	Path    string `yaml:"path,omitempty" env:"NIXMATE_HISTORY_PATH"`
}

// ServerConfig configures the serve command.
type ServerConfig struct {
	Listen string `yaml:"listen" env:"NIXMATE_LISTEN"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"NIXMATE_LOG_LEVEL"`
	Format string `yaml:"format" env:"NIXMATE_LOG_FORMAT"`
}
