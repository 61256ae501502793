package executor

import (
	"path/filepath"
	"strconv"

	"nixmate/internal/command"
	"nixmate/internal/nixapi"
	"nixmate/internal/operation"
)

// commands builds the subprocess invocations for each kind.
type commands struct {
	binDir      string
	profileDir  string
	userProfile string
	channelPath string
}

func (c commands) tool(name string) string {
	if c.binDir == "" {
		return name
	}
	return filepath.Join(c.binDir, name)
}

func (c commands) systemProfile() string {
	return filepath.Join(c.profileDir, nixapi.SystemProfileName)
}

// rebuild returns `nixos-rebuild <action>` with the configuration options of op.
func (c commands) rebuild(action string, op operation.Operation) command.Command {
	args := []string{action}
	if op.Bool(operation.OptUpgrade) {
		args = append(args, "--upgrade")
	}
	if flake := op.String(operation.OptFlake); flake != "" {
		args = append(args, "--flake", flake)
	}
	if cfg := op.String(operation.OptConfigPath); cfg != "" {
		args = append(args, "-I", "nixos-config="+cfg)
	}
	return command.Command{Name: c.tool("nixos-rebuild"), Args: args}
}

func (c commands) listGenerationsJSON() command.Command {
	return command.Command{Name: c.tool("nixos-rebuild"), Args: []string{"list-generations", "--json"}}
}

func (c commands) listGenerationsText() command.Command {
	return command.Command{Name: c.tool("nix-env"), Args: []string{"--list-generations", "-p", c.systemProfile()}}
}

func (c commands) rollbackPrevious() command.Command {
	return command.Command{Name: c.tool("nixos-rebuild"), Args: []string{"switch", "--rollback"}}
}

func (c commands) switchGeneration(n int) command.Command {
	return command.Command{
		Name: c.tool("nix-env"),
		Args: []string{"-p", c.systemProfile(), "--switch-generation", strconv.Itoa(n)},
	}
}

func (c commands) activate(n int) command.Command {
	return command.Command{
		Name: filepath.Join(c.profileDir, nixapi.GenerationLinkName(n), "bin", "switch-to-configuration"),
		Args: []string{"switch"},
	}
}

func (c commands) install(pkg string) command.Command {
	args := []string{"-p", c.userProfile}
	if c.channelPath != "" {
		args = append(args, "-f", c.channelPath, "-iA", pkg)
	} else {
		args = append(args, "-iA", nixapi.ChannelAttr(pkg))
	}
	return command.Command{Name: c.tool("nix-env"), Args: args}
}

func (c commands) remove(pkg string) command.Command {
	return command.Command{Name: c.tool("nix-env"), Args: []string{"-p", c.userProfile, "-e", pkg}}
}

func (c commands) search(query string) command.Command {
	args := []string{"-qaP", "--description"}
	if c.channelPath != "" {
		args = append(args, "-f", c.channelPath)
	}
	args = append(args, searchPattern(query))
	return command.Command{Name: c.tool("nix-env"), Args: args}
}

func (c commands) repair(checkContents bool) command.Command {
	args := []string{"--verify", "--repair"}
	if checkContents {
		args = append(args, "--check-contents")
	}
	return command.Command{Name: c.tool("nix-store"), Args: args}
}

func (c commands) collectGarbage() command.Command {
	return command.Command{Name: c.tool("nix-store"), Args: []string{"--gc"}}
}
