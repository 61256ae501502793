package nixapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"nixmate/internal/command"
	"nixmate/internal/operation"
	"nixmate/pkg/logging"
	pkgstrings "nixmate/pkg/strings"
)

// DefaultProfileDir is where NixOS keeps system and default user profiles.
const DefaultProfileDir = "/nix/var/nix/profiles"

// ChannelAttrPrefix is the attribute prefix nix-env lists packages of the
// nixos channel under.
const ChannelAttrPrefix = "nixos."

const (
	experimentalFeatures = "nix-command flakes"
	outputTailLines      = 20
)

// Config locates the Nix installation Native operates on.
type Config struct {
	ProfileDir string
	// NixBinDir holds the Nix tools; empty means PATH lookup.
	NixBinDir string
	// ChannelPath is the nixpkgs tree used for channel builds and search.
	// Empty means <nixpkgs> and the nixpkgs flake registry entry.
	ChannelPath string
	// UserProfile receives package installs; defaults to ProfileDir/default.
	UserProfile string
	Runner      command.Runner
}

// Native implements API against a local Nix installation.
type Native struct {
	cfg    Config
	runner command.Runner
}

var _ API = (*Native)(nil)

// NewNative creates a Native API.
func NewNative(cfg Config) *Native {
	if cfg.ProfileDir == "" {
		cfg.ProfileDir = DefaultProfileDir
	}
	if cfg.UserProfile == "" {
		cfg.UserProfile = filepath.Join(cfg.ProfileDir, "default")
	}
	runner := cfg.Runner
	if runner == nil {
		runner = command.ExecRunner{}
	}
	return &Native{cfg: cfg, runner: runner}
}

// Config returns the effective configuration.
func (n *Native) Config() Config { return n.cfg }

// Check is the capability probe: the tools must be present and the profile
// must hold at least one generation.
func (n *Native) Check() error {
	if n.cfg.NixBinDir != "" {
		if _, err := os.Stat(n.tool("nix-store")); err != nil {
			return fmt.Errorf("nix tools not found in %s: %w", n.cfg.NixBinDir, err)
		}
	} else if _, err := command.LookPath("nix-store"); err != nil {
		return fmt.Errorf("nix tools not found in PATH: %w", err)
	}
	gens, err := n.ListGenerations()
	if err != nil {
		return err
	}
	if len(gens) == 0 {
		return fmt.Errorf("no system generations in %s", n.cfg.ProfileDir)
	}
	return nil
}

func (n *Native) tool(name string) string {
	if n.cfg.NixBinDir == "" {
		return name
	}
	return filepath.Join(n.cfg.NixBinDir, name)
}

// run executes a tool to completion. Native calls are not cancellable.
func (n *Native) run(op, path string, args []string, dec *logDecoder) (command.Result, error) {
	res, err := n.runner.Run(context.Background(), command.Command{
		Name:         path,
		Args:         args,
		OnStderrLine: dec.Line,
	})
	if err == nil {
		return res, nil
	}

	output := pkgstrings.LastLines(strings.Join(dec.Messages(), "\n"), outputTailLines)
	if output == "" {
		output = pkgstrings.LastLines(res.Stderr, outputTailLines)
	}
	message := dec.ErrorText()
	if message == "" {
		message = pkgstrings.LastLines(output, 1)
	}
	if message == "" {
		message = err.Error()
	}
	logging.Debug("NixAPI", "%s failed: %v", op, err)
	return res, &Error{
		Op:       op,
		Message:  pkgstrings.Summarize(strings.TrimPrefix(message, "error: "), pkgstrings.DefaultSummaryMaxLen),
		Output:   output,
		ExitCode: res.ExitCode,
		Err:      err,
	}
}

// ListGenerations reads the system profile, newest first.
func (n *Native) ListGenerations() ([]operation.Generation, error) {
	gens, err := readGenerations(n.cfg.ProfileDir)
	if err != nil {
		return nil, &Error{Op: "list generations", Message: err.Error(), Err: err}
	}
	return gens, nil
}

type searchHit struct {
	Pname       string `json:"pname"`
	Version     string `json:"version"`
	Description string `json:"description"`
}

// SearchPackages runs nix search. Each word of query must match.
func (n *Native) SearchPackages(query string, limit int) ([]operation.Package, error) {
	args := []string{"--extra-experimental-features", experimentalFeatures, "search", "--json"}
	if n.cfg.ChannelPath != "" {
		args = append(args, "--file", n.cfg.ChannelPath, "")
	} else {
		args = append(args, "nixpkgs")
	}
	for _, word := range strings.Fields(query) {
		args = append(args, regexp.QuoteMeta(word))
	}

	dec := newLogDecoder(nil, 0, 0)
	res, err := n.run("search packages", n.tool("nix"), args, dec)
	if err != nil {
		return nil, err
	}

	var hits map[string]searchHit
	if err := json.Unmarshal([]byte(res.Stdout), &hits); err != nil {
		return nil, &Error{Op: "search packages", Message: "unreadable search output", Err: err}
	}
	pkgs := make([]operation.Package, 0, len(hits))
	for attr, hit := range hits {
		name := hit.Pname
		if name == "" {
			name = attr[strings.LastIndex(attr, ".")+1:]
		}
		pkgs = append(pkgs, operation.Package{
			Attr:        n.searchAttr(attr),
			Name:        name,
			Version:     hit.Version,
			Description: hit.Description,
		})
	}
	sort.Slice(pkgs, func(i, j int) bool { return pkgs[i].Attr < pkgs[j].Attr })
	if limit > 0 && len(pkgs) > limit {
		pkgs = pkgs[:limit]
	}
	return pkgs, nil
}

// searchAttr maps a nix search attribute onto the name nix-env lists the
// package under, so that it can be passed to Install as is.
func (n *Native) searchAttr(attr string) string {
	if rest, ok := strings.CutPrefix(attr, "legacyPackages."); ok {
		if _, name, found := strings.Cut(rest, "."); found {
			attr = name
		}
	}
	if n.cfg.ChannelPath != "" {
		return attr
	}
	return ChannelAttrPrefix + attr
}

// ChannelAttr returns the nix-env attribute of pkg in the nixos channel. Names
// already carrying the channel prefix are kept.
func ChannelAttr(pkg string) string {
	return ChannelAttrPrefix + strings.TrimPrefix(pkg, ChannelAttrPrefix)
}

// buildCommand returns the tool and arguments that realise the system
// closure for req.
func (n *Native) buildCommand(req BuildRequest) (string, []string, error) {
	if req.Flake != "" {
		path, host, _ := strings.Cut(req.Flake, "#")
		if host == "" {
			h, err := os.Hostname()
			if err != nil {
				return "", nil, fmt.Errorf("flake has no host and the hostname is unknown: %w", err)
			}
			host = h
		}
		installable := fmt.Sprintf("%s#nixosConfigurations.%q.config.system.build.toplevel", path, host)
		return n.tool("nix"), []string{
			"--extra-experimental-features", experimentalFeatures,
			"build", "--log-format", "internal-json", "--no-link", "--print-out-paths", installable,
		}, nil
	}

	nixos := "<nixpkgs/nixos>"
	if n.cfg.ChannelPath != "" {
		nixos = filepath.Join(n.cfg.ChannelPath, "nixos")
	}
	args := []string{nixos, "-A", "system", "--no-out-link", "--log-format", "internal-json"}
	if req.ConfigPath != "" {
		args = append(args, "-I", "nixos-config="+req.ConfigPath)
	}
	return n.tool("nix-build"), args, nil
}

func (n *Native) upgradeChannels(progress ProgressFunc) error {
	report(progress, "updating channels", 0.05)
	_, err := n.run("update channels", n.tool("nix-channel"), []string{"--update"}, newLogDecoder(nil, 0, 0))
	return err
}

// Build realises the system closure.
func (n *Native) Build(req BuildRequest, progress ProgressFunc) (string, error) {
	return n.build(req, progress, 0.1, 0.9)
}

func (n *Native) build(req BuildRequest, progress ProgressFunc, from, to float64) (string, error) {
	if req.Upgrade {
		if err := n.upgradeChannels(progress); err != nil {
			return "", err
		}
	}
	path, args, err := n.buildCommand(req)
	if err != nil {
		return "", &Error{Op: "build system", Message: err.Error(), Err: err}
	}

	report(progress, "evaluating configuration", from)
	dec := newLogDecoder(progress, from, to-from)
	res, err := n.run("build system", path, args, dec)
	if err != nil {
		return "", err
	}
	out := pkgstrings.LastLines(res.Stdout, 1)
	if !strings.HasPrefix(out, "/nix/store/") {
		return "", &Error{Op: "build system", Message: fmt.Sprintf("unexpected build output %q", pkgstrings.Summarize(out, 80))}
	}
	return out, nil
}

// Switch builds the configuration, records it as a new system generation and
// activates it.
func (n *Native) Switch(req BuildRequest, progress ProgressFunc) (string, error) {
	storePath, err := n.build(req, progress, 0.1, 0.7)
	if err != nil {
		return "", err
	}

	report(progress, "adding system generation", 0.75)
	profile := filepath.Join(n.cfg.ProfileDir, SystemProfileName)
	if _, err := n.run("set system profile", n.tool("nix-env"), []string{"-p", profile, "--set", storePath}, newLogDecoder(nil, 0, 0)); err != nil {
		return "", err
	}

	report(progress, "activating configuration", 0.85)
	activate := filepath.Join(storePath, "bin", "switch-to-configuration")
	if _, err := n.run("activate configuration", activate, []string{"switch"}, newLogDecoder(nil, 0, 0)); err != nil {
		return "", err
	}
	report(progress, "switched", 1)
	return storePath, nil
}

// Rollback re-points the system profile and activates the target generation.
// If activation fails the profile link is restored.
func (n *Native) Rollback(generation int, progress ProgressFunc) (int, error) {
	gens, err := readGenerations(n.cfg.ProfileDir)
	if err != nil {
		return 0, &Error{Op: "roll back", Message: err.Error(), Err: err}
	}
	current, err := currentGeneration(n.cfg.ProfileDir)
	if err != nil {
		return 0, &Error{Op: "roll back", Message: err.Error(), Err: err}
	}

	target := generation
	if target == 0 {
		prev, ok := previousGeneration(gens, current)
		if !ok {
			return 0, &Error{Op: "roll back", Message: fmt.Sprintf("no generation older than %d", current)}
		}
		target = prev
	}
	found := false
	for _, g := range gens {
		found = found || g.Number == target
	}
	if !found {
		return 0, &Error{Op: "roll back", Message: fmt.Sprintf("generation %d does not exist", target)}
	}
	if target == current {
		return 0, &Error{Op: "roll back", Message: fmt.Sprintf("generation %d is already current", target)}
	}

	report(progress, fmt.Sprintf("switching profile to generation %d", target), 0.25)
	previous, err := pointSystemAt(n.cfg.ProfileDir, target)
	if err != nil {
		return 0, &Error{Op: "roll back", Message: err.Error(), Err: err}
	}

	report(progress, "activating configuration", 0.5)
	activate := filepath.Join(n.cfg.ProfileDir, GenerationLinkName(target), "bin", "switch-to-configuration")
	if _, err := n.run("activate configuration", activate, []string{"switch"}, newLogDecoder(nil, 0, 0)); err != nil {
		if restoreErr := replaceSymlink(filepath.Join(n.cfg.ProfileDir, SystemProfileName), previous); restoreErr != nil {
			logging.Error("NixAPI", restoreErr, "Failed to restore system link to %s", previous)
		}
		return 0, err
	}
	report(progress, fmt.Sprintf("now on generation %d", target), 1)
	return target, nil
}

func (n *Native) installAttr(pkg string) []string {
	if n.cfg.ChannelPath != "" {
		return []string{"-f", n.cfg.ChannelPath, "-iA", pkg}
	}
	return []string{"-iA", ChannelAttr(pkg)}
}

// Install adds a package to the default user profile.
func (n *Native) Install(pkg string, progress ProgressFunc) error {
	args := append([]string{"-p", n.cfg.UserProfile, "--log-format", "internal-json"}, n.installAttr(pkg)...)
	report(progress, "evaluating "+pkg, 0.1)
	_, err := n.run("install "+pkg, n.tool("nix-env"), args, newLogDecoder(progress, 0.25, 0.7))
	if err != nil {
		return err
	}
	report(progress, "installed "+pkg, 1)
	return nil
}

// Remove uninstalls a package from the default user profile. Removing a
// package that is not installed is an error.
func (n *Native) Remove(pkg string, progress ProgressFunc) error {
	dec := newLogDecoder(progress, 0.25, 0.7)
	report(progress, "removing "+pkg, 0.1)
	if _, err := n.run("remove "+pkg, n.tool("nix-env"), []string{"-p", n.cfg.UserProfile, "--log-format", "internal-json", "-e", pkg}, dec); err != nil {
		return err
	}
	for _, msg := range dec.Messages() {
		if strings.HasPrefix(msg, "uninstalling") {
			report(progress, "removed "+pkg, 1)
			return nil
		}
	}
	return &Error{Op: "remove " + pkg, Message: fmt.Sprintf("%s is not installed in %s", pkg, n.cfg.UserProfile)}
}

// Repair verifies the store and repairs corrupted paths.
func (n *Native) Repair(checkContents bool, progress ProgressFunc) error {
	args := []string{"--verify", "--repair", "--log-format", "internal-json"}
	if checkContents {
		args = append(args, "--check-contents")
	}
	report(progress, "verifying store", 0.05)
	if _, err := n.run("repair store", n.tool("nix-store"), args, newLogDecoder(progress, 0.1, 0.85)); err != nil {
		return err
	}
	report(progress, "store verified", 1)
	return nil
}

// DryRun lists the store paths a build of req would build or fetch.
func (n *Native) DryRun(req BuildRequest) ([]string, error) {
	path, args, err := n.buildCommand(req)
	if err != nil {
		return nil, &Error{Op: "dry run", Message: err.Error(), Err: err}
	}
	args = append(args, "--dry-run")

	dec := newLogDecoder(nil, 0, 0)
	if _, err := n.run("dry run", path, args, dec); err != nil {
		return nil, err
	}
	return StorePathsIn(dec.Messages()), nil
}

// CollectGarbage deletes unreachable store paths. Old generations are kept.
func (n *Native) CollectGarbage() error {
	_, err := n.run("collect garbage", n.tool("nix-store"), []string{"--gc"}, newLogDecoder(nil, 0, 0))
	return err
}

// StorePathsIn extracts distinct /nix/store paths, one per line, from
// dry-run output.
func StorePathsIn(messages []string) []string {
	seen := make(map[string]bool)
	var paths []string
	for _, msg := range messages {
		for _, line := range strings.Split(msg, "\n") {
			p := strings.TrimSpace(line)
			if !strings.HasPrefix(p, "/nix/store/") || seen[p] {
				continue
			}
			seen[p] = true
			paths = append(paths, p)
		}
	}
	return paths
}

func report(progress ProgressFunc, message string, fraction float64) {
	if progress != nil {
		progress(message, fraction)
	}
}

// IsError reports whether err came from Native.
func IsError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}
