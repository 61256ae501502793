package app

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nixmate/internal/command"
	"nixmate/internal/config"
	"nixmate/internal/executor"
	"nixmate/internal/executor/executortest"
	"nixmate/internal/metrics"
	"nixmate/internal/nixapi"
	"nixmate/internal/resolver"
	"nixmate/internal/security"
)

var unusedRunner = command.RunnerFunc(func(context.Context, command.Command) (command.Result, error) {
	return command.Result{ExitCode: 127}, errors.New("no tools in tests")
})

func testConfig(t *testing.T, mutate func(*config.Config)) *Config {
	t.Helper()
	nc := config.GetDefaultConfig()
	nc.History.Path = filepath.Join(t.TempDir(), "history.db")
	if mutate != nil {
		mutate(&nc)
	}
	return &Config{
		LogOutput:     io.Discard,
		NixmateConfig: &nc,
		Probes:        []resolver.Probe{},
		Runner:        unusedRunner,
		Privilege:     security.PrivilegeFunc(func() bool { return true }),
	}
}

// fakeInstallation creates a profile directory with one generation and a
// bin directory holding nix-store.
func fakeInstallation(t *testing.T) (profiles, bin string) {
	t.Helper()
	root := t.TempDir()
	profiles = filepath.Join(root, "profiles")
	bin = filepath.Join(root, "bin")
	store := filepath.Join(root, "store", "abc-nixos-system")
	require.NoError(t, os.MkdirAll(profiles, 0o755))
	require.NoError(t, os.MkdirAll(bin, 0o755))
	require.NoError(t, os.MkdirAll(store, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(store, "nixos-version"), []byte("25.11\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(bin, "nix-store"), []byte("#!/bin/sh\n"), 0o755))
	require.NoError(t, os.Symlink(store, filepath.Join(profiles, nixapi.GenerationLinkName(1))))
	require.NoError(t, os.Symlink(nixapi.GenerationLinkName(1), filepath.Join(profiles, nixapi.SystemProfileName)))
	return profiles, bin
}

func TestInitializeServices(t *testing.T) {
	tests := []struct {
		name          string
		config        func(t *testing.T) *Config
		checkServices func(*testing.T, *Services)
	}{
		{
			name:   "falls back to subprocess when no probe succeeds",
			config: func(t *testing.T) *Config { return testConfig(t, nil) },
			checkServices: func(t *testing.T, s *Services) {
				assert.Equal(t, executor.NameSubprocess, s.Executor.Name())
				assert.Equal(t, config.DefaultSystemProfiles, s.ProfileDir)
				assert.Empty(t, s.Handle.Source)
				assert.NotNil(t, s.Cache)
				assert.NotNil(t, s.Journal)
			},
		},
		{
			name: "uses the native API when a probe passes the capability check",
			config: func(t *testing.T) *Config {
				profiles, bin := fakeInstallation(t)
				cfg := testConfig(t, nil)
				cfg.Probes = []resolver.Probe{resolver.EnvProbe{Path: profiles, BinDirs: []string{bin}}}
				return cfg
			},
			checkServices: func(t *testing.T, s *Services) {
				assert.Equal(t, executor.NameNative, s.Executor.Name())
				assert.Equal(t, "override", s.Handle.Source)
				assert.Equal(t, s.Handle.ProfileDir, s.ProfileDir)
			},
		},
		{
			name: "probe without generations falls back",
			config: func(t *testing.T) *Config {
				cfg := testConfig(t, nil)
				cfg.Probes = []resolver.Probe{resolver.EnvProbe{Path: t.TempDir()}}
				return cfg
			},
			checkServices: func(t *testing.T, s *Services) {
				assert.Equal(t, executor.NameSubprocess, s.Executor.Name())
			},
		},
		{
			name: "plain mode has no cache",
			config: func(t *testing.T) *Config {
				return testConfig(t, func(c *config.Config) { c.Enhanced = false })
			},
			checkServices: func(t *testing.T, s *Services) {
				assert.Nil(t, s.Cache)
				assert.False(t, s.Orchestrator.Enhanced())
				assert.False(t, s.Status().Enhanced)
			},
		},
		{
			name: "persistent cache",
			config: func(t *testing.T) *Config {
				dir := t.TempDir()
				return testConfig(t, func(c *config.Config) { c.Cache.PersistentDir = dir })
			},
			checkServices: func(t *testing.T, s *Services) {
				require.NotNil(t, s.Cache)
				assert.Equal(t, 0, s.Status().CacheEntries)
			},
		},
		{
			name: "history disabled",
			config: func(t *testing.T) *Config {
				return testConfig(t, func(c *config.Config) { c.History.Enabled = false })
			},
			checkServices: func(t *testing.T, s *Services) {
				assert.Nil(t, s.Journal)
			},
		},
		{
			name: "unopenable history is skipped",
			config: func(t *testing.T) *Config {
				blocker := filepath.Join(t.TempDir(), "file")
				require.NoError(t, os.WriteFile(blocker, nil, 0o644))
				return testConfig(t, func(c *config.Config) { c.History.Path = filepath.Join(blocker, "history.db") })
			},
			checkServices: func(t *testing.T, s *Services) {
				assert.Nil(t, s.Journal)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := InitializeServices(context.Background(), tt.config(t))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })

			assert.NotNil(t, s.Orchestrator)
			assert.NotNil(t, s.Metrics)
			tt.checkServices(t, s)
		})
	}
}

func TestInitializeServices_InvalidKindTTL(t *testing.T) {
	cfg := testConfig(t, func(c *config.Config) {
		c.Cache.KindTTL = map[string]time.Duration{"reboot": time.Minute}
	})
	_, err := InitializeServices(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache.kindTTL")
}

func TestServices_Status(t *testing.T) {
	s, err := InitializeServices(context.Background(), testConfig(t, nil))
	require.NoError(t, err)
	defer s.Close()

	st := s.Status()
	assert.Equal(t, executor.NameSubprocess, st.Executor)
	assert.True(t, st.Enhanced)
	assert.Equal(t, config.DefaultSystemProfiles, st.ProfileDir)
	assert.False(t, st.StartedAt.IsZero())
}

func TestCountedRemediator(t *testing.T) {
	gcErr := errors.New("store locked")
	ex := &executortest.Executor{ExecutorName: "native", GCFunc: func(context.Context) error { return gcErr }}
	m := metrics.New()
	r := countedRemediator{executor: ex, metrics: m}

	require.ErrorIs(t, r.CollectGarbage(context.Background()), gcErr)
	ex.GCFunc = nil
	require.NoError(t, r.CollectGarbage(context.Background()))

	assert.Equal(t, 2, ex.GCCalls())
	assert.EqualValues(t, 2, m.Snapshot().Executions)
}
