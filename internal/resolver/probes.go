package resolver

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"nixmate/internal/command"
)

// DefaultProfileDirs are the conventional system profile locations.
var DefaultProfileDirs = []string{
	"/nix/var/nix/profiles",
	"/nix/var/nix/profiles/per-user/root",
}

// DefaultBinDirs are searched for the Nix tools when a handle names none.
var DefaultBinDirs = []string{
	"/run/current-system/sw/bin",
	"/nix/var/nix/profiles/default/bin",
}

const metadataTimeout = 5 * time.Second

func isProfileDir(dir string) bool {
	info, err := os.Lstat(filepath.Join(dir, "system"))
	return err == nil && info.Mode()&os.ModeSymlink != 0
}

func findBinDir(candidates []string) string {
	for _, dir := range candidates {
		if info, err := os.Stat(filepath.Join(dir, "nix-store")); err == nil && !info.IsDir() {
			return dir
		}
	}
	return ""
}

// EnvProbe proposes an explicitly configured profile directory.
type EnvProbe struct {
	Path    string
	BinDirs []string
}

func (EnvProbe) Name() string { return "override" }

func (p EnvProbe) Probe(context.Context) (Handle, bool) {
	if p.Path == "" {
		return Handle{}, false
	}
	bins := append([]string{filepath.Join(p.Path, "default", "bin")}, p.BinDirs...)
	return Handle{ProfileDir: filepath.Clean(p.Path), NixBinDir: findBinDir(bins)}, true
}

// FixedPathsProbe proposes the first conventional directory holding a system
// profile link.
type FixedPathsProbe struct {
	Dirs    []string
	BinDirs []string
}

func (FixedPathsProbe) Name() string { return "well-known path" }

func (p FixedPathsProbe) Probe(context.Context) (Handle, bool) {
	dirs := p.Dirs
	if len(dirs) == 0 {
		dirs = DefaultProfileDirs
	}
	bins := p.BinDirs
	if len(bins) == 0 {
		bins = DefaultBinDirs
	}
	for _, dir := range dirs {
		if isProfileDir(dir) {
			return Handle{ProfileDir: dir, NixBinDir: findBinDir(bins)}, true
		}
	}
	return Handle{}, false
}

// MetadataProbe asks nix-instantiate where nixpkgs lives and derives the
// profile directory from the channel path.
type MetadataProbe struct {
	Runner  command.Runner
	BinDirs []string
	// FallbackProfileDir is used when the channel path does not reveal one.
	FallbackProfileDir string
}

func (MetadataProbe) Name() string { return "package metadata" }

func (p MetadataProbe) Probe(ctx context.Context) (Handle, bool) {
	runner := p.Runner
	if runner == nil {
		runner = command.ExecRunner{}
	}
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	res, err := runner.Run(ctx, command.Command{Name: "nix-instantiate", Args: []string{"--find-file", "nixpkgs"}})
	if err != nil {
		return Handle{}, false
	}
	channel := strings.TrimSpace(res.Stdout)
	if channel == "" {
		return Handle{}, false
	}

	profileDir := p.FallbackProfileDir
	if i := strings.Index(channel, "/per-user/"); i > 0 {
		profileDir = channel[:i]
	}
	if profileDir == "" {
		profileDir = DefaultProfileDirs[0]
	}

	bins := p.BinDirs
	if len(bins) == 0 {
		bins = DefaultBinDirs
	}
	return Handle{ProfileDir: profileDir, NixBinDir: findBinDir(bins), ChannelPath: channel}, true
}

// DefaultProbes returns the standard chain for an optional override path.
func DefaultProbes(override string, runner command.Runner) []Probe {
	return []Probe{
		EnvProbe{Path: override, BinDirs: DefaultBinDirs},
		FixedPathsProbe{},
		MetadataProbe{Runner: runner},
	}
}
