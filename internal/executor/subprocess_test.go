package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nixmate/internal/command"
	"nixmate/internal/nixapi"
	"nixmate/internal/operation"
	"nixmate/internal/progress"
)

type step struct {
	stdout, stderr string
	code           int
	// wait blocks until the context ends.
	wait bool
}

// fakeRunner answers commands by "<tool> <first arg>" and records them.
type fakeRunner struct {
	mu     sync.Mutex
	script map[string]step
	calls  []command.Command
}

func commandKey(cmd command.Command) string {
	key := filepath.Base(cmd.Name)
	if len(cmd.Args) > 0 {
		key += " " + cmd.Args[0]
	}
	return key
}

func (r *fakeRunner) Run(ctx context.Context, cmd command.Command) (command.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	s, ok := r.script[commandKey(cmd)]
	r.mu.Unlock()
	if !ok {
		return command.Result{ExitCode: 127, Stderr: "command not found"}, errors.New("exit status 127")
	}
	if s.wait {
		<-ctx.Done()
		return command.Result{ExitCode: -1}, ctx.Err()
	}
	if cmd.OnStderrLine != nil {
		for _, line := range strings.Split(s.stderr, "\n") {
			cmd.OnStderrLine(line)
		}
	}
	res := command.Result{Stdout: s.stdout, Stderr: s.stderr, ExitCode: s.code}
	if s.code != 0 {
		return res, errors.New("exit status 1")
	}
	return res, nil
}

func (r *fakeRunner) keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var keys []string
	for _, c := range r.calls {
		keys = append(keys, commandKey(c))
	}
	return keys
}

func newTestSubprocess(t *testing.T, script map[string]step) (*Subprocess, *fakeRunner, string) {
	t.Helper()
	profiles := t.TempDir()
	runner := &fakeRunner{script: script}
	return NewSubprocess(SubprocessConfig{Runner: runner, ProfileDir: profiles, Pool: NewPool(2)}), runner, profiles
}

const generationsJSON = `[
  {"generation": 40, "date": "2024-01-13 14:30:45", "nixosVersion": "23.11.7", "kernelVersion": "6.1.70", "current": false},
  {"generation": 42, "date": "2024-01-15 14:30:45", "nixosVersion": "24.05.1", "kernelVersion": "6.6.10", "current": true},
  {"generation": 41, "date": "2024-01-14 14:30:45", "nixosVersion": "24.05.0", "kernelVersion": "6.6.10", "current": false}
]`

func TestSubprocess_ListGenerationsJSON(t *testing.T) {
	s, runner, _ := newTestSubprocess(t, map[string]step{
		"nixos-rebuild list-generations": {stdout: generationsJSON},
	})

	res, err := s.Execute(context.Background(), mustOp(t, operation.KindListGenerations, map[string]any{"limit": 2}), nil)
	require.NoError(t, err)
	require.Len(t, res.Data.Generations, 2)
	assert.Equal(t, 42, res.Data.Generations[0].Number)
	assert.True(t, res.Data.Generations[0].IsCurrent)
	assert.Equal(t, "NixOS 24.05.1", res.Data.Generations[0].Description)
	assert.Equal(t, 41, res.Data.Generations[1].Number)
	assert.Equal(t, "2 generations, current is 42", res.Message)
	assert.Equal(t, NameSubprocess, res.Executor)
	assert.Equal(t, []string{"nixos-rebuild list-generations"}, runner.keys())
}

func TestSubprocess_ListGenerationsFallsBackToNixEnv(t *testing.T) {
	s, runner, profiles := newTestSubprocess(t, map[string]step{
		"nix-env --list-generations": {stdout: "  41   2024-01-14 14:30:45   \n  42   2024-01-15 14:30:45   (current)\n"},
	})
	link := filepath.Join(profiles, nixapi.GenerationLinkName(42))
	require.NoError(t, os.MkdirAll(link, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(link, "nixos-version"), []byte("24.05.1\n"), 0o644))

	res, err := s.Execute(context.Background(), mustOp(t, operation.KindListGenerations, nil), nil)
	require.NoError(t, err)
	require.Len(t, res.Data.Generations, 2)
	assert.Equal(t, 42, res.Data.Generations[0].Number)
	assert.True(t, res.Data.Generations[0].IsCurrent)
	assert.Equal(t, "NixOS 24.05.1", res.Data.Generations[0].Description)
	assert.Equal(t, []string{"nixos-rebuild list-generations", "nix-env --list-generations"}, runner.keys())
}

func TestSubprocess_Search(t *testing.T) {
	out := strings.Join([]string{
		"nixos.vim            vim-9.1.0            The most popular clone of the VI editor",
		"nixos.vimPlugins.foo vimplugin-foo-1.0    A plugin",
		"nixos.neovim         neovim-0.9.5         Vim text editor fork focused on extensibility",
		"",
		"garbage",
	}, "\n")
	s, runner, _ := newTestSubprocess(t, map[string]step{"nix-env -qaP": {stdout: out}})

	res, err := s.Execute(context.Background(), mustOp(t, operation.KindSearch, map[string]any{"query": "vim editor", "limit": 5}), nil)
	require.NoError(t, err)
	require.Len(t, res.Data.Packages, 2)
	assert.Equal(t, operation.Package{Attr: "nixos.neovim", Name: "neovim", Version: "0.9.5", Description: "Vim text editor fork focused on extensibility"}, res.Data.Packages[0])
	assert.Equal(t, "nixos.vim", res.Data.Packages[1].Attr)

	args := runner.calls[0].Args
	assert.Equal(t, ".*vim.*", args[len(args)-1])
}

func TestSubprocess_SearchLargeOutput(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 20000; i++ {
		fmt.Fprintf(&b, "nixos.pkg%05d  pkg%05d-1.0  %s\n", i, i, strings.Repeat("d", 70))
	}
	require.Greater(t, b.Len(), 1<<20)
	s, _, _ := newTestSubprocess(t, map[string]step{"nix-env -qaP": {stdout: b.String()}})

	res, err := s.Execute(context.Background(), mustOp(t, operation.KindSearch, map[string]any{"query": "pkg", "limit": 3}), nil)
	require.NoError(t, err)
	var attrs []string
	for _, p := range res.Data.Packages {
		attrs = append(attrs, p.Attr)
	}
	assert.Equal(t, []string{"nixos.pkg00000", "nixos.pkg00001", "nixos.pkg00002"}, attrs)
}

func TestSubprocess_UpdateReportsPhases(t *testing.T) {
	stderr := strings.Join([]string{
		"building Nix...",
		"building the system configuration...",
		"these 2 derivations will be built:",
		"building '/nix/store/abc-etc.drv'...",
		"activating the configuration...",
		"setting up /etc...",
	}, "\n")
	s, runner, profiles := newTestSubprocess(t, map[string]step{"nixos-rebuild switch": {stderr: stderr}})
	store := t.TempDir()
	require.NoError(t, os.Symlink(store, filepath.Join(profiles, "system")))

	rec := &recordingReporter{}
	res, err := s.Execute(context.Background(), mustOp(t, operation.KindUpdate, map[string]any{"upgrade": true, "flake": "/etc/nixos#host"}), rec)
	require.NoError(t, err)

	assert.Equal(t, []progress.Phase{progress.PhaseEvaluating, progress.PhaseBuilding, progress.PhaseApplying}, rec.Phases())
	resolved, _ := filepath.EvalSymlinks(store)
	assert.Equal(t, resolved, res.Data.StorePath)
	assert.Equal(t, []string{"switch", "--upgrade", "--flake", "/etc/nixos#host"}, runner.calls[0].Args)
}

func TestSubprocess_FailureUsesErrorLine(t *testing.T) {
	stderr := "building the system configuration...\nerror: attribute 'fooo' missing\n       at /etc/nixos/configuration.nix:12:3\n"
	s, _, _ := newTestSubprocess(t, map[string]step{"nixos-rebuild build": {stderr: stderr, code: 1}})

	_, err := s.Execute(context.Background(), mustOp(t, operation.KindBuild, nil), nil)
	var f *operation.ExecutionFailure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, "attribute 'fooo' missing", f.Message)
	assert.Contains(t, f.Output, "configuration.nix:12:3")
	assert.Equal(t, 1, f.ExitCode)
	assert.Equal(t, operation.CategoryUnknown, f.Category)
}

func TestSubprocess_RemoveRequiresInstalledPackage(t *testing.T) {
	tests := []struct {
		name    string
		stderr  string
		wantErr string
	}{
		{name: "installed", stderr: "uninstalling 'firefox-121.0'"},
		{name: "not installed", stderr: "", wantErr: "firefox is not installed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, runner, profiles := newTestSubprocess(t, map[string]step{"nix-env -p": {stderr: tt.stderr}})
			res, err := s.Execute(context.Background(), mustOp(t, operation.KindRemove, map[string]any{"package_name": "firefox"}), nil)
			assert.Equal(t, []string{"-p", filepath.Join(profiles, "default"), "-e", "firefox"}, runner.calls[0].Args)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "removed firefox", res.Message)
		})
	}
}

func TestSubprocess_Rollback(t *testing.T) {
	t.Run("previous generation", func(t *testing.T) {
		s, runner, _ := newTestSubprocess(t, map[string]step{
			"nixos-rebuild switch": {stderr: "switching profile from version 42 to 41\nactivating the configuration..."},
		})
		res, err := s.Execute(context.Background(), mustOp(t, operation.KindRollback, nil), nil)
		require.NoError(t, err)
		assert.Equal(t, "rolled back to generation 41", res.Message)
		assert.Equal(t, []string{"switch", "--rollback"}, runner.calls[0].Args)
	})

	t.Run("explicit generation", func(t *testing.T) {
		s, runner, profiles := newTestSubprocess(t, map[string]step{
			"nix-env -p":                     {stderr: "switching profile from version 42 to 40"},
			"switch-to-configuration switch": {},
		})
		res, err := s.Execute(context.Background(), mustOp(t, operation.KindRollback, map[string]any{"generation_number": 40}), nil)
		require.NoError(t, err)
		assert.Equal(t, "rolled back to generation 40", res.Message)
		require.Len(t, runner.calls, 2)
		assert.Equal(t, filepath.Join(profiles, "system-40-link", "bin", "switch-to-configuration"), runner.calls[1].Name)
	})

	t.Run("restores profile when activation fails", func(t *testing.T) {
		s, runner, _ := newTestSubprocess(t, map[string]step{
			"nix-env -p":                     {stderr: "switching profile from version 42 to 40"},
			"switch-to-configuration switch": {stderr: "error: activation script failed", code: 1},
		})
		_, err := s.Execute(context.Background(), mustOp(t, operation.KindRollback, map[string]any{"generation_number": 40}), nil)
		require.Error(t, err)
		require.Len(t, runner.calls, 3)
		assert.Contains(t, runner.calls[2].Args, "42")
	})

	t.Run("already current", func(t *testing.T) {
		s, runner, _ := newTestSubprocess(t, map[string]step{
			"nix-env -p": {stderr: "switching profile from version 42 to 42"},
		})
		_, err := s.Execute(context.Background(), mustOp(t, operation.KindRollback, map[string]any{"generation_number": 42}), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already current")
		assert.Len(t, runner.calls, 1)
	})
}

func TestSubprocess_DryRunAndBuild(t *testing.T) {
	stderr := "these 1 derivations will be built:\n  /nix/store/aaa-system.drv\nthese 2 paths will be fetched (10.0 MiB download):\n  /nix/store/bbb-firefox\n  /nix/store/ccc-glibc\n"
	s, runner, _ := newTestSubprocess(t, map[string]step{"nixos-rebuild dry-build": {stderr: stderr}})

	res, err := s.Execute(context.Background(), mustOp(t, operation.KindDryRun, map[string]any{"config_path": "/etc/nixos/configuration.nix"}), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"/nix/store/aaa-system.drv", "/nix/store/bbb-firefox", "/nix/store/ccc-glibc"}, res.Data.Changes)
	assert.Equal(t, []string{"dry-build", "-I", "nixos-config=/etc/nixos/configuration.nix"}, runner.calls[0].Args)

	// The scripted build succeeds without creating a result link.
	s, _, _ = newTestSubprocess(t, map[string]step{"nixos-rebuild build": {}})
	_, err = s.Execute(context.Background(), mustOp(t, operation.KindBuild, nil), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no result link")
}

func TestSubprocess_Timeout(t *testing.T) {
	runner := &fakeRunner{script: map[string]step{"nix-store --verify": {wait: true}}}
	s := NewSubprocess(SubprocessConfig{
		Runner:     runner,
		ProfileDir: t.TempDir(),
		Pool:       NewPool(1),
		Timeouts:   func(operation.Kind) time.Duration { return 10 * time.Millisecond },
	})

	_, err := s.Execute(context.Background(), mustOp(t, operation.KindRepair, map[string]any{"check_contents": true}), nil)
	var f *operation.ExecutionFailure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, operation.CategoryTimeout, f.Category)
	assert.Equal(t, []string{"--verify", "--repair", "--check-contents"}, runner.calls[0].Args)
}

func TestSubprocess_CollectGarbage(t *testing.T) {
	s, runner, _ := newTestSubprocess(t, map[string]step{"nix-store --gc": {}})
	require.NoError(t, s.CollectGarbage(context.Background()))
	assert.Equal(t, []string{"nix-store --gc"}, runner.keys())
}
