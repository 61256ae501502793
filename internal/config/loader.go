package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"nixmate/internal/operation"
	"nixmate/pkg/logging"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/nixmate"
	configFileName = "config.yaml"
)

// GetDefaultConfigPath returns ~/.config/nixmate, or "" if the home directory
// cannot be determined.
func GetDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, userConfigDir)
}

// LoadConfig loads config.yaml from configPath over the defaults and then
// applies NIXMATE_* environment overrides. A missing file is not an error.
func LoadConfig(configPath string) (Config, error) {
	config := GetDefaultConfig()

	if configPath != "" {
		configFilePath := filepath.Join(configPath, configFileName)
		data, err := os.ReadFile(configFilePath)
		switch {
		case errors.Is(err, os.ErrNotExist):
			logging.Debug("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
		case err != nil:
			return Config{}, fmt.Errorf("error reading config from %s: %w", configFilePath, err)
		default:
			if err := yaml.Unmarshal(data, &config); err != nil {
				return Config{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
			}
			logging.Debug("ConfigLoader", "Loaded configuration from %s", configFilePath)
		}
	}

	if err := cleanenv.ReadEnv(&config); err != nil {
		return Config{}, fmt.Errorf("error applying environment overrides: %w", err)
	}

	if config.History.Path == "" && configPath != "" {
		config.History.Path = filepath.Join(configPath, DefaultHistoryFile)
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	config.Cache.KindTTL = canonicalKindKeys(config.Cache.KindTTL)
	config.Executor.Timeouts = canonicalKindKeys(config.Executor.Timeouts)
	return config, nil
}

// canonicalKindKeys rewrites operation kind keys such as LIST-GENERATIONS to
// their canonical spelling. Keys must have passed validation.
func canonicalKindKeys(m map[string]time.Duration) map[string]time.Duration {
	if len(m) == 0 {
		return m
	}
	out := make(map[string]time.Duration, len(m))
	for name, d := range m {
		if kind, err := operation.ParseKind(name); err == nil {
			name = string(kind)
		}
		out[name] = d
	}
	return out
}

// EnvDescription returns a help text listing the supported environment variables.
func EnvDescription() string {
	var cfg Config
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return ""
	}
	return text
}
