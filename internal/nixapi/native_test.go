package nixapi

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
)

// scriptedRunner answers commands by tool base name.
type scriptedRunner struct {
	mu      sync.Mutex
	calls   []command.Command
	respond func(cmd command.Command) (command.Result, error)
}

func (r *scriptedRunner) Run(_ context.Context, cmd command.Command) (command.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	r.mu.Unlock()
	res, err := r.respond(cmd)
	if cmd.OnStderrLine != nil {
		for _, line := range strings.Split(strings.TrimRight(res.Stderr, "\n"), "\n") {
			if line != "" {
				cmd.OnStderrLine(line)
			}
		}
	}
	return res, err
}

func (r *scriptedRunner) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, c := range r.calls {
		out = append(out, filepath.Base(c.Name))
	}
	return out
}

func ok(stdout, stderr string) (command.Result, error) {
	return command.Result{Stdout: stdout, Stderr: stderr}, nil
}

func failed(stderr string, code int) (command.Result, error) {
	return command.Result{Stderr: stderr, ExitCode: code}, errors.New("exit status")
}

// makeProfile builds a fake profile directory with generations 1..n and the
// system link pointing at current.
func makeProfile(t *testing.T, n, current int) string {
	t.Helper()
	root := t.TempDir()
	profiles := filepath.Join(root, "profiles")
	require.NoError(t, os.MkdirAll(profiles, 0o755))

	for i := 1; i <= n; i++ {
		store := filepath.Join(root, "store", "nixos-system-"+string(rune('0'+i)))
		require.NoError(t, os.MkdirAll(filepath.Join(store, "bin"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(store, "nixos-version"), []byte("24.11.0"+string(rune('0'+i))+"\n"), 0o644))
		link := filepath.Join(profiles, GenerationLinkName(i))
		require.NoError(t, os.Symlink(store, link))
		mtime := time.Date(2026, 1, i, 0, 0, 0, 0, time.UTC)
		require.NoError(t, os.Chtimes(store, mtime, mtime))
	}
	require.NoError(t, os.Symlink(GenerationLinkName(current), filepath.Join(profiles, SystemProfileName)))
	return profiles
}

func TestListGenerations(t *testing.T) {
	profiles := makeProfile(t, 3, 2)
	api := NewNative(Config{ProfileDir: profiles, Runner: &scriptedRunner{}})

	gens, err := api.ListGenerations()
	require.NoError(t, err)
	require.Len(t, gens, 3)

	assert.Equal(t, []int{3, 2, 1}, []int{gens[0].Number, gens[1].Number, gens[2].Number})
	assert.Equal(t, "NixOS 24.11.03", gens[0].Description)

	currents := 0
	for _, g := range gens {
		if g.IsCurrent {
			currents++
			assert.Equal(t, 2, g.Number)
		}
	}
	assert.Equal(t, 1, currents, "exactly one generation is current")
}

func TestListGenerations_MissingProfile(t *testing.T) {
	api := NewNative(Config{ProfileDir: filepath.Join(t.TempDir(), "missing"), Runner: &scriptedRunner{}})
	_, err := api.ListGenerations()
	require.Error(t, err)
	assert.True(t, IsError(err))
}

func TestRollback_Previous(t *testing.T) {
	profiles := makeProfile(t, 3, 3)
	runner := &scriptedRunner{respond: func(command.Command) (command.Result, error) { return ok("", "") }}
	api := NewNative(Config{ProfileDir: profiles, Runner: runner})

	var fractions []float64
	got, err := api.Rollback(0, func(_ string, f float64) { fractions = append(fractions, f) })
	require.NoError(t, err)
	assert.Equal(t, 2, got)

	target, err := os.Readlink(filepath.Join(profiles, SystemProfileName))
	require.NoError(t, err)
	assert.Equal(t, GenerationLinkName(2), target)

	require.Len(t, runner.calls, 1)
	assert.Equal(t, filepath.Join(profiles, GenerationLinkName(2), "bin", "switch-to-configuration"), runner.calls[0].Name)
	assert.Equal(t, []string{"switch"}, runner.calls[0].Args)
	assert.Equal(t, 1.0, fractions[len(fractions)-1])
}

func TestRollback_ExplicitAndErrors(t *testing.T) {
	profiles := makeProfile(t, 3, 3)
	runner := &scriptedRunner{respond: func(command.Command) (command.Result, error) { return ok("", "") }}
	api := NewNative(Config{ProfileDir: profiles, Runner: runner})

	got, err := api.Rollback(1, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, got)

	_, err = api.Rollback(1, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already current")

	_, err = api.Rollback(9, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")

	_, err = api.Rollback(0, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no generation older than 1")
}

func TestRollback_RestoresLinkWhenActivationFails(t *testing.T) {
	profiles := makeProfile(t, 2, 2)
	runner := &scriptedRunner{respond: func(command.Command) (command.Result, error) {
		return failed("error: unit nginx.service failed\n", 4)
	}}
	api := NewNative(Config{ProfileDir: profiles, Runner: runner})

	_, err := api.Rollback(0, nil)
	require.Error(t, err)

	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "unit nginx.service failed", apiErr.Message)
	assert.Equal(t, 4, apiErr.ExitCode)

	target, err := os.Readlink(filepath.Join(profiles, SystemProfileName))
	require.NoError(t, err)
	assert.Equal(t, GenerationLinkName(2), target)
}

func TestSearchPackages(t *testing.T) {
	runner := &scriptedRunner{respond: func(cmd command.Command) (command.Result, error) {
		return ok(`{
			"legacyPackages.x86_64-linux.vim": {"pname": "vim", "version": "9.1.0", "description": "The most popular clone of the VI editor"},
			"legacyPackages.x86_64-linux.neovim": {"pname": "neovim", "version": "0.10.2", "description": "Vim text editor fork"},
			"legacyPackages.x86_64-linux.vimPlugins.foo": {"version": "1", "description": ""}
		}`, "")
	}}
	api := NewNative(Config{ProfileDir: t.TempDir(), Runner: runner})

	pkgs, err := api.SearchPackages("vim editor", 2)
	require.NoError(t, err)
	require.Len(t, pkgs, 2)
	assert.Equal(t, "nixos.neovim", pkgs[0].Attr)
	assert.Equal(t, "nixos.vim", pkgs[1].Attr)
	assert.Equal(t, "neovim", pkgs[0].Name)
	assert.Equal(t, "vim", pkgs[1].Name)

	args := runner.calls[0].Args
	assert.Equal(t, []string{"vim", "editor"}, args[len(args)-2:])
	assert.Contains(t, args, "--json")
	assert.Contains(t, args, "nixpkgs")
}

func TestSearchPackages_NameFromAttr(t *testing.T) {
	runner := &scriptedRunner{respond: func(command.Command) (command.Result, error) {
		return ok(`{"legacyPackages.x86_64-linux.vimPlugins.foo": {"version": "1"}}`, "")
	}}
	api := NewNative(Config{ProfileDir: t.TempDir(), ChannelPath: "/nix/var/nix/profiles/per-user/root/channels/nixos", Runner: runner})

	pkgs, err := api.SearchPackages("c++", 0)
	require.NoError(t, err)
	require.Len(t, pkgs, 1)
	assert.Equal(t, "foo", pkgs[0].Name)
	assert.Equal(t, "vimPlugins.foo", pkgs[0].Attr)

	args := runner.calls[0].Args
	assert.Equal(t, `c\+\+`, args[len(args)-1], "query words are matched literally")
	assert.Contains(t, args, "--file")
}

func TestSearchPackages_LargeOutput(t *testing.T) {
	var b strings.Builder
	b.WriteString("{")
	for i := 0; i < 20000; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, `"legacyPackages.x86_64-linux.pkg%05d": {"pname": "pkg%05d", "version": "1.0", "description": "%s"}`,
			i, i, strings.Repeat("a", 40))
	}
	b.WriteString("}")
	require.Greater(t, b.Len(), 1<<20)

	runner := &scriptedRunner{respond: func(command.Command) (command.Result, error) { return ok(b.String(), "") }}
	api := NewNative(Config{ProfileDir: t.TempDir(), Runner: runner})

	pkgs, err := api.SearchPackages("a", 3)
	require.NoError(t, err)
	require.Len(t, pkgs, 3)
	assert.Equal(t, "nixos.pkg00000", pkgs[0].Attr)
	assert.Equal(t, "nixos.pkg00002", pkgs[2].Attr)
}

func TestChannelAttr(t *testing.T) {
	tests := []struct {
		pkg  string
		want string
	}{
		{pkg: "firefox", want: "nixos.firefox"},
		{pkg: "nixos.firefox", want: "nixos.firefox"},
		{pkg: "python3Packages.requests", want: "nixos.python3Packages.requests"},
	}
	for _, tt := range tests {
		t.Run(tt.pkg, func(t *testing.T) {
			assert.Equal(t, tt.want, ChannelAttr(tt.pkg))
		})
	}
}

func TestBuild(t *testing.T) {
	stderr := strings.Join([]string{
		`@nix {"action":"start","id":1,"level":0,"type":104,"text":""}`,
		`@nix {"action":"start","id":2,"level":3,"type":105,"text":"building '/nix/store/abc-nixos-system.drv'"}`,
		`@nix {"action":"result","id":1,"type":105,"fields":[1,2,1,0]}`,
		`@nix {"action":"result","id":1,"type":105,"fields":[2,2,0,0]}`,
		`@nix {"action":"stop","id":2}`,
	}, "\n")
	runner := &scriptedRunner{respond: func(cmd command.Command) (command.Result, error) {
		return ok("/nix/store/xyz-nixos-system-host-24.11\n", stderr)
	}}
	api := NewNative(Config{ProfileDir: t.TempDir(), Runner: runner})

	var fractions []float64
	path, err := api.Build(BuildRequest{ConfigPath: "/etc/nixos/configuration.nix"}, func(_ string, f float64) {
		fractions = append(fractions, f)
	})
	require.NoError(t, err)
	assert.Equal(t, "/nix/store/xyz-nixos-system-host-24.11", path)

	assert.Equal(t, []string{"nix-build"}, runner.names())
	assert.Contains(t, runner.calls[0].Args, "nixos-config=/etc/nixos/configuration.nix")
	require.NotEmpty(t, fractions)
	assert.InDelta(t, 0.9, fractions[len(fractions)-1], 1e-9)
	for i := 1; i < len(fractions); i++ {
		assert.GreaterOrEqual(t, fractions[i], fractions[i-1])
	}
}

func TestBuild_Flake(t *testing.T) {
	runner := &scriptedRunner{respond: func(command.Command) (command.Result, error) {
		return ok("/nix/store/xyz-nixos-system\n", "")
	}}
	api := NewNative(Config{ProfileDir: t.TempDir(), Runner: runner})

	_, err := api.Build(BuildRequest{Flake: "/etc/nixos#laptop"}, nil)
	require.NoError(t, err)

	args := runner.calls[0].Args
	assert.Equal(t, `/etc/nixos#nixosConfigurations."laptop".config.system.build.toplevel`, args[len(args)-1])
}

func TestBuild_UpgradeUpdatesChannelsFirst(t *testing.T) {
	runner := &scriptedRunner{respond: func(command.Command) (command.Result, error) {
		return ok("/nix/store/xyz\n", "")
	}}
	api := NewNative(Config{ProfileDir: t.TempDir(), NixBinDir: "/run/current-system/sw/bin", Runner: runner})

	_, err := api.Build(BuildRequest{Upgrade: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"nix-channel", "nix-build"}, runner.names())
	assert.Equal(t, "/run/current-system/sw/bin/nix-channel", runner.calls[0].Name)
}

func TestBuild_Failure(t *testing.T) {
	stderr := `@nix {"action":"msg","level":0,"msg":"\u001b[31;1merror:\u001b[0m writing to file: No space left on device"}`
	runner := &scriptedRunner{respond: func(command.Command) (command.Result, error) { return failed(stderr, 1) }}
	api := NewNative(Config{ProfileDir: t.TempDir(), Runner: runner})

	_, err := api.Build(BuildRequest{}, nil)
	require.Error(t, err)

	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "writing to file: No space left on device", apiErr.Message)
	assert.Contains(t, apiErr.Output, "No space left on device")
	assert.NotContains(t, apiErr.Output, "@nix")
}

func TestSwitch(t *testing.T) {
	runner := &scriptedRunner{respond: func(command.Command) (command.Result, error) {
		return ok("/nix/store/new-system\n", "")
	}}
	api := NewNative(Config{ProfileDir: "/nix/var/nix/profiles", Runner: runner})

	path, err := api.Switch(BuildRequest{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "/nix/store/new-system", path)
	assert.Equal(t, []string{"nix-build", "nix-env", "switch-to-configuration"}, runner.names())
	assert.Equal(t, []string{"-p", "/nix/var/nix/profiles/system", "--set", "/nix/store/new-system"}, runner.calls[1].Args)
	assert.Equal(t, "/nix/store/new-system/bin/switch-to-configuration", runner.calls[2].Name)
}

func TestInstallAndRemove(t *testing.T) {
	var removeOutput string
	runner := &scriptedRunner{respond: func(cmd command.Command) (command.Result, error) {
		if containsArg(cmd.Args, "-e") {
			return ok("", removeOutput)
		}
		return ok("", `@nix {"action":"msg","level":1,"msg":"installing 'firefox-131.0'"}`)
	}}
	api := NewNative(Config{ProfileDir: "/nix/var/nix/profiles", Runner: runner})

	require.NoError(t, api.Install("firefox", nil))
	assert.Equal(t, []string{"-p", "/nix/var/nix/profiles/default", "--log-format", "internal-json", "-iA", "nixos.firefox"}, runner.calls[0].Args)
	require.NoError(t, api.Install("nixos.firefox", nil))
	assert.Equal(t, "nixos.firefox", runner.calls[1].Args[len(runner.calls[1].Args)-1])

	removeOutput = `@nix {"action":"msg","level":1,"msg":"uninstalling 'firefox-131.0'"}`
	require.NoError(t, api.Remove("firefox", nil))

	removeOutput = ""
	err := api.Remove("firefox", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not installed")
}

func TestRepairAndGC(t *testing.T) {
	runner := &scriptedRunner{respond: func(command.Command) (command.Result, error) { return ok("", "") }}
	api := NewNative(Config{ProfileDir: "/nix/var/nix/profiles", Runner: runner})

	require.NoError(t, api.Repair(true, nil))
	require.NoError(t, api.CollectGarbage())

	assert.Contains(t, runner.calls[0].Args, "--check-contents")
	assert.Contains(t, runner.calls[0].Args, "--repair")
	assert.Equal(t, []string{"--gc"}, runner.calls[1].Args)
}

func TestDryRun(t *testing.T) {
	stderr := strings.Join([]string{
		`@nix {"action":"msg","level":1,"msg":"these 2 derivations will be built:\n  /nix/store/aaa-foo.drv\n  /nix/store/bbb-bar.drv"}`,
		`@nix {"action":"msg","level":1,"msg":"these 1 paths will be fetched (1.2 MiB download):\n  /nix/store/ccc-baz\n  /nix/store/aaa-foo.drv"}`,
	}, "\n")
	runner := &scriptedRunner{respond: func(command.Command) (command.Result, error) { return ok("", stderr) }}
	api := NewNative(Config{ProfileDir: "/nix/var/nix/profiles", Runner: runner})

	paths, err := api.DryRun(BuildRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"/nix/store/aaa-foo.drv", "/nix/store/bbb-bar.drv", "/nix/store/ccc-baz"}, paths)
	assert.Contains(t, runner.calls[0].Args, "--dry-run")
}

func TestCheck(t *testing.T) {
	bin := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(bin, "nix-store"), []byte("#!/bin/sh\n"), 0o755))

	api := NewNative(Config{ProfileDir: makeProfile(t, 1, 1), NixBinDir: bin, Runner: &scriptedRunner{}})
	assert.NoError(t, api.Check())

	api = NewNative(Config{ProfileDir: makeProfile(t, 1, 1), NixBinDir: t.TempDir(), Runner: &scriptedRunner{}})
	assert.Error(t, api.Check())
}

func containsArg(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}
