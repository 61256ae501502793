package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nixmate/internal/cache"
	"nixmate/internal/command"
	"nixmate/internal/config"
	"nixmate/internal/executor"
	"nixmate/internal/history"
	"nixmate/internal/metrics"
	"nixmate/internal/nixapi"
	"nixmate/internal/operation"
	"nixmate/internal/orchestrator"
	"nixmate/internal/recovery"
	"nixmate/internal/resolver"
	"nixmate/internal/security"
	"nixmate/internal/server"
	"nixmate/pkg/logging"
)

// Services holds the initialized components.
//
// Field descriptions:
//   - Orchestrator: runs every operation; the only entry point commands use
//   - Executor: the executor selected by the resolver
//   - Handle: the resolved native API location; zero when falling back
//   - ProfileDir: the profile directory in use by either executor
//   - Cache: nil when enhanced mode is off
//   - Journal: nil when history is disabled or unavailable
type Services struct {
	Config       *config.Config
	Orchestrator *orchestrator.Orchestrator
	Executor     executor.Executor
	Handle       resolver.Handle
	ProfileDir   string
	Cache        *cache.Cache
	Journal      *history.Journal
	Metrics      *metrics.Collector
	StartedAt    time.Time
}

// InitializeServices builds the component graph described in the package
// documentation.
func InitializeServices(ctx context.Context, cfg *Config) (*Services, error) {
	nc := cfg.NixmateConfig
	if nc == nil {
		defaults := config.GetDefaultConfig()
		nc = &defaults
	}

	runner := cfg.Runner
	if runner == nil {
		runner = command.ExecRunner{}
	}
	timeouts := executor.TimeoutFunc(nc.Executor.TimeoutFor)
	pool := executor.NewPool(nc.Executor.Workers)

	s := &Services{Config: nc, StartedAt: time.Now()}

	// Step 1: pick the executor
	probes := cfg.Probes
	if probes == nil {
		probes = resolver.DefaultProbes(nc.NativeAPIPath, runner)
	}
	res := resolver.New(func(h resolver.Handle) error {
		return nativeFor(h, runner).Check()
	}, probes...)

	handle, err := res.Resolve(ctx)
	switch {
	case err == nil:
		s.Handle = handle
		s.ProfileDir = handle.ProfileDir
		s.Executor = executor.NewAdapter(nativeFor(handle, runner), pool, timeouts)
		logging.Debug("Bootstrap", "Native executor selected for %s", handle.ProfileDir)
	case errors.Is(err, resolver.ErrUnavailable):
		profileDir := nc.NativeAPIPath
		if profileDir == "" {
			profileDir = config.DefaultSystemProfiles
		}
		s.ProfileDir = profileDir
		s.Executor = executor.NewSubprocess(executor.SubprocessConfig{
			Runner:     runner,
			ProfileDir: profileDir,
			Pool:       pool,
			Timeouts:   timeouts,
		})
		logging.Debug("Bootstrap", "Subprocess executor selected: %v", err)
	default:
		return nil, fmt.Errorf("failed to resolve the native API: %w", err)
	}

	// Step 2: enhanced mode
	s.Metrics = metrics.New()
	var engine *recovery.Engine
	if nc.Enhanced {
		c, err := newCache(nc.Cache)
		if err != nil {
			return nil, err
		}
		s.Cache = c
		engine = recovery.NewEngine(countedRemediator{executor: s.Executor, metrics: s.Metrics})
	}

	// Step 3: history
	var observers []orchestrator.Observer
	if nc.History.Enabled && nc.History.Path != "" {
		journal, err := history.Open(nc.History.Path)
		if err != nil {
			logging.Warn("Bootstrap", "Operation history disabled: %v", err)
		} else {
			s.Journal = journal
			observers = append(observers, journal)
		}
	}

	// Step 4: orchestrator
	validatorOpts := []security.Option{security.WithAllowedRoots(nc.Security.AllowedRoots...)}
	if cfg.Privilege != nil {
		validatorOpts = append(validatorOpts, security.WithPrivilegeChecker(cfg.Privilege))
	}
	s.Orchestrator = orchestrator.New(orchestrator.Config{
		Executor:  s.Executor,
		Validator: security.NewValidator(validatorOpts...),
		Cache:     s.Cache,
		Recovery:  engine,
		Metrics:   s.Metrics,
		Observers: observers,
	})

	logging.Debug("Bootstrap", "Services initialized (executor=%s, enhanced=%t, history=%t)",
		s.Executor.Name(), nc.Enhanced, s.Journal != nil)
	return s, nil
}

func nativeFor(h resolver.Handle, runner command.Runner) *nixapi.Native {
	return nixapi.NewNative(nixapi.Config{
		ProfileDir:  h.ProfileDir,
		NixBinDir:   h.NixBinDir,
		ChannelPath: h.ChannelPath,
		Runner:      runner,
	})
}

func newCache(cfg config.CacheConfig) (*cache.Cache, error) {
	opts := []cache.Option{cache.WithTTL(cfg.TTL)}
	for name, ttl := range cfg.KindTTL {
		kind, err := operation.ParseKind(name)
		if err != nil {
			return nil, fmt.Errorf("invalid cache.kindTTL entry: %w", err)
		}
		opts = append(opts, cache.WithKindTTL(kind, ttl))
	}
	if cfg.PersistentDir != "" {
		store, err := cache.OpenBadgerStore(cfg.PersistentDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open persistent cache: %w", err)
		}
		opts = append(opts, cache.WithStore(store))
	}
	return cache.New(opts...), nil
}

// Status describes the running services for the status command and the
// HTTP API.
func (s *Services) Status() server.Status {
	st := server.Status{
		Executor:       s.Executor.Name(),
		Enhanced:       s.Cache != nil,
		ResolverSource: s.Handle.Source,
		ProfileDir:     s.ProfileDir,
		StartedAt:      s.StartedAt,
	}
	if s.Cache != nil {
		st.CacheEntries = s.Cache.Stats().Entries
	}
	return st
}

// Close releases the cache store and the journal.
func (s *Services) Close() error {
	var errs []error
	if s.Cache != nil {
		if err := s.Cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close cache: %w", err))
		}
	}
	if s.Journal != nil {
		if err := s.Journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close history: %w", err))
		}
	}
	return errors.Join(errs...)
}

// countedRemediator records every garbage collection run as an executor
// invocation.
type countedRemediator struct {
	executor executor.Executor
	metrics  *metrics.Collector
}

func (r countedRemediator) CollectGarbage(ctx context.Context) error {
	r.metrics.RecordRemediation(r.executor.Name())
	return r.executor.CollectGarbage(ctx)
}
