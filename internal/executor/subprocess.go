package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"nixmate/internal/command"
	"nixmate/internal/nixapi"
	"nixmate/internal/operation"
	"nixmate/internal/progress"
	"nixmate/pkg/logging"
	pkgstrings "nixmate/pkg/strings"
)

const (
	outputTailLines = 20
	restoreTimeout  = time.Minute
)

// SubprocessConfig configures Subprocess.
type SubprocessConfig struct {
	Runner command.Runner
	// BinDir holds nixos-rebuild and the Nix tools; empty means PATH lookup.
	BinDir     string
	ProfileDir string
	// UserProfile receives package installs; defaults to ProfileDir/default.
	UserProfile string
	ChannelPath string
	Pool        *Pool
	Timeouts    TimeoutFunc
}

// Subprocess runs operations by invoking the command-line tools.
type Subprocess struct {
	runner   command.Runner
	cmds     commands
	pool     *Pool
	timeouts TimeoutFunc
}

// NewSubprocess creates the fallback executor.
func NewSubprocess(cfg SubprocessConfig) *Subprocess {
	if cfg.Runner == nil {
		cfg.Runner = command.ExecRunner{}
	}
	if cfg.ProfileDir == "" {
		cfg.ProfileDir = nixapi.DefaultProfileDir
	}
	if cfg.UserProfile == "" {
		cfg.UserProfile = filepath.Join(cfg.ProfileDir, "default")
	}
	if cfg.Pool == nil {
		cfg.Pool = NewPool(0)
	}
	if cfg.Timeouts == nil {
		cfg.Timeouts = DefaultTimeouts
	}
	return &Subprocess{
		runner: cfg.Runner,
		cmds: commands{
			binDir:      cfg.BinDir,
			profileDir:  cfg.ProfileDir,
			userProfile: cfg.UserProfile,
			channelPath: cfg.ChannelPath,
		},
		pool:     cfg.Pool,
		timeouts: cfg.Timeouts,
	}
}

func (s *Subprocess) Name() string { return NameSubprocess }

// Execute runs op with the kind's timeout. Cancellation and timeouts kill the
// whole process group.
func (s *Subprocess) Execute(ctx context.Context, op operation.Operation, reporter progress.Reporter) (operation.Result, error) {
	if reporter == nil {
		reporter = progress.Discard
	}
	limit := s.timeouts(op.Kind())
	ctx, cancel := withTimeout(ctx, s.timeouts, op.Kind())
	defer cancel()

	var (
		data *operation.Payload
		err  error
	)
	if perr := s.pool.Do(ctx, func() {
		data, err = s.dispatch(ctx, op, newPhaseWatcher(reporter))
	}); perr != nil {
		return operation.Result{}, contextFailure(perr, limit)
	}
	if err != nil {
		if ctx.Err() != nil {
			return operation.Result{}, contextFailure(ctx.Err(), limit)
		}
		return operation.Result{}, operation.AsFailure(err)
	}
	return succeeded(op, data, NameSubprocess), nil
}

func (s *Subprocess) dispatch(ctx context.Context, op operation.Operation, w *phaseWatcher) (*operation.Payload, error) {
	switch op.Kind() {
	case operation.KindListGenerations:
		gens, err := s.listGenerations(ctx)
		if err != nil {
			return nil, err
		}
		limit, _ := op.Int(operation.OptLimit)
		return &operation.Payload{Generations: limitGenerations(gens, limit)}, nil

	case operation.KindSearch:
		query := op.String(operation.OptQuery)
		res, err := s.run(ctx, "search packages", s.cmds.search(query), nil)
		if err != nil {
			return nil, err
		}
		limit, _ := op.Int(operation.OptLimit)
		return &operation.Payload{Packages: parsePackages(res.Stdout, query, limit)}, nil

	case operation.KindUpdate:
		w.Phase(progress.PhaseEvaluating)
		if _, err := s.run(ctx, "switch system", s.cmds.rebuild("switch", op), w); err != nil {
			return nil, err
		}
		path, err := filepath.EvalSymlinks(s.cmds.systemProfile())
		if err != nil {
			logging.Warn("SubprocessExecutor", "Switched but could not resolve %s: %v", s.cmds.systemProfile(), err)
			return nil, nil
		}
		return &operation.Payload{StorePath: path}, nil

	case operation.KindBuild:
		return s.build(ctx, op, w)

	case operation.KindRollback:
		return s.rollback(ctx, op, w)

	case operation.KindInstall:
		pkg := op.String(operation.OptPackageName)
		w.Phase(progress.PhaseEvaluating)
		_, err := s.run(ctx, "install "+pkg, s.cmds.install(pkg), w)
		return nil, err

	case operation.KindRemove:
		pkg := op.String(operation.OptPackageName)
		res, err := s.run(ctx, "remove "+pkg, s.cmds.remove(pkg), w)
		if err != nil {
			return nil, err
		}
		if !strings.Contains(res.Stderr, "uninstalling '") {
			return nil, &operation.ExecutionFailure{
				Category: operation.CategoryUnknown,
				Message:  fmt.Sprintf("%s is not installed in %s", pkg, s.cmds.userProfile),
			}
		}
		return nil, nil

	case operation.KindRepair:
		w.Phase(progress.PhaseBuilding)
		_, err := s.run(ctx, "repair store", s.cmds.repair(op.Bool(operation.OptCheckContents)), w)
		return nil, err

	case operation.KindDryRun:
		w.Phase(progress.PhaseEvaluating)
		res, err := s.run(ctx, "dry run", s.cmds.rebuild("dry-build", op), nil)
		if err != nil {
			return nil, err
		}
		return &operation.Payload{Changes: nixapi.StorePathsIn([]string{res.Stderr})}, nil
	}
	return nil, &operation.ExecutionFailure{
		Category: operation.CategoryUnknown,
		Message:  fmt.Sprintf("unsupported operation kind %q", op.Kind()),
	}
}

// listGenerations prefers the JSON listing and falls back to nix-env on
// releases whose nixos-rebuild lacks it.
func (s *Subprocess) listGenerations(ctx context.Context) ([]operation.Generation, error) {
	res, err := s.run(ctx, "list generations", s.cmds.listGenerationsJSON(), nil)
	if err == nil {
		gens, perr := parseGenerationsJSON(res.Stdout)
		if perr == nil {
			return gens, nil
		}
		logging.Debug("SubprocessExecutor", "Falling back to nix-env generation list: %v", perr)
	} else if ctx.Err() != nil {
		return nil, err
	} else {
		logging.Debug("SubprocessExecutor", "nixos-rebuild list-generations failed, falling back to nix-env: %v", err)
	}

	res, err = s.run(ctx, "list generations", s.cmds.listGenerationsText(), nil)
	if err != nil {
		return nil, err
	}
	return parseGenerationsText(res.Stdout, s.cmds.profileDir), nil
}

// build runs nixos-rebuild build in a scratch directory so the result link
// does not land in the working directory.
func (s *Subprocess) build(ctx context.Context, op operation.Operation, w *phaseWatcher) (*operation.Payload, error) {
	dir, err := os.MkdirTemp("", "nixmate-build-")
	if err != nil {
		return nil, operation.AsFailure(fmt.Errorf("create build directory: %w", err))
	}
	defer os.RemoveAll(dir)

	w.Phase(progress.PhaseEvaluating)
	cmd := s.cmds.rebuild("build", op)
	cmd.Dir = dir
	if _, err := s.run(ctx, "build system", cmd, w); err != nil {
		return nil, err
	}
	path, err := filepath.EvalSymlinks(filepath.Join(dir, "result"))
	if err != nil {
		return nil, &operation.ExecutionFailure{
			Category: operation.CategoryUnknown,
			Message:  "the build produced no result link",
			Err:      err,
		}
	}
	return &operation.Payload{StorePath: path}, nil
}

func (s *Subprocess) rollback(ctx context.Context, op operation.Operation, w *phaseWatcher) (*operation.Payload, error) {
	target, explicit := op.Int(operation.OptGenerationNumber)
	if !explicit {
		res, err := s.run(ctx, "roll back", s.cmds.rollbackPrevious(), w)
		if err != nil {
			return nil, err
		}
		_, to, _ := profileSwitchIn(res.Stderr)
		return rolledBackTo(to), nil
	}

	n := int(target)
	res, err := s.run(ctx, "switch profile", s.cmds.switchGeneration(n), w)
	if err != nil {
		return nil, err
	}
	from, _, ok := profileSwitchIn(res.Stderr)
	if ok && from == n {
		return nil, &operation.ExecutionFailure{
			Category: operation.CategoryUnknown,
			Message:  fmt.Sprintf("generation %d is already current", n),
		}
	}

	w.Phase(progress.PhaseApplying)
	if _, err := s.run(ctx, "activate configuration", s.cmds.activate(n), w); err != nil {
		if ok {
			// ctx may be the reason activation failed.
			rctx, rcancel := context.WithTimeout(context.WithoutCancel(ctx), restoreTimeout)
			_, rerr := s.runner.Run(rctx, s.cmds.switchGeneration(from))
			rcancel()
			if rerr != nil {
				logging.Error("SubprocessExecutor", rerr, "Failed to switch the system profile back to generation %d", from)
			}
		}
		return nil, err
	}
	return rolledBackTo(n), nil
}

// CollectGarbage runs nix-store --gc.
func (s *Subprocess) CollectGarbage(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, gcTimeout)
	defer cancel()
	var err error
	if perr := s.pool.Do(ctx, func() {
		_, err = s.run(ctx, "collect garbage", s.cmds.collectGarbage(), nil)
	}); perr != nil {
		return contextFailure(perr, gcTimeout)
	}
	if err != nil && ctx.Err() != nil {
		return contextFailure(ctx.Err(), gcTimeout)
	}
	return err
}

// run executes one command. Failures are returned as *ExecutionFailure
// carrying the most specific error line and the output tail; context errors
// are returned unchanged.
func (s *Subprocess) run(ctx context.Context, what string, cmd command.Command, w *phaseWatcher) (command.Result, error) {
	if w != nil {
		cmd.OnStderrLine = w.Line
	}
	logging.Debug("SubprocessExecutor", "Running %s", cmd)
	res, err := s.runner.Run(ctx, cmd)
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	logging.Debug("SubprocessExecutor", "%s failed with exit code %d", what, res.ExitCode)
	return res, &operation.ExecutionFailure{
		Category: operation.CategoryUnknown,
		Message:  pkgstrings.Summarize(errorLine(res.Stderr, err), pkgstrings.DefaultSummaryMaxLen),
		Output:   pkgstrings.LastLines(res.Stderr, outputTailLines),
		ExitCode: res.ExitCode,
		Err:      err,
	}
}

// errorLine picks the last "error:" line of stderr, else its last non-blank
// line, else the error itself.
func errorLine(stderr string, err error) string {
	lines := strings.Split(stderr, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); strings.HasPrefix(l, "error:") {
			return strings.TrimSpace(strings.TrimPrefix(l, "error:"))
		}
	}
	if last := pkgstrings.LastLines(stderr, 1); last != "" {
		return last
	}
	return err.Error()
}

var _ Executor = (*Subprocess)(nil)

// phaseWatcher turns recognisable tool output into coarse phases. Phases only
// move forward.
type phaseWatcher struct {
	reporter progress.Reporter
	mu       sync.Mutex
	current  progress.Phase
}

func newPhaseWatcher(r progress.Reporter) *phaseWatcher {
	return &phaseWatcher{reporter: r}
}

var phaseMarkers = []struct {
	marker string
	phase  progress.Phase
}{
	{"building the system configuration", progress.PhaseEvaluating},
	{"evaluating", progress.PhaseEvaluating},
	{"will be built", progress.PhaseBuilding},
	{"will be fetched", progress.PhaseBuilding},
	{"building '/nix/store/", progress.PhaseBuilding},
	{"copying path", progress.PhaseBuilding},
	{"checking path", progress.PhaseBuilding},
	{"switching profile from version", progress.PhaseApplying},
	{"activating the configuration", progress.PhaseApplying},
	{"setting up /etc", progress.PhaseApplying},
	{"installing '", progress.PhaseApplying},
	{"uninstalling '", progress.PhaseApplying},
}

// Line inspects one line of stderr.
func (w *phaseWatcher) Line(line string) {
	for _, m := range phaseMarkers {
		if strings.Contains(line, m.marker) {
			w.Phase(m.phase)
		}
	}
}

// Phase reports p unless a later phase was already reported.
func (w *phaseWatcher) Phase(p progress.Phase) {
	w.mu.Lock()
	if p <= w.current {
		w.mu.Unlock()
		return
	}
	w.current = p
	w.mu.Unlock()
	w.reporter.Phase(p)
}
