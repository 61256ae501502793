package nixapi

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"nixmate/internal/operation"
)

// SystemProfileName is the profile link that points at the current system.
const SystemProfileName = "system"

var generationLink = regexp.MustCompile(`^` + SystemProfileName + `-(\d+)-link$`)

// GenerationLinkName returns the profile entry of generation n.
func GenerationLinkName(n int) string {
	return fmt.Sprintf("%s-%d-link", SystemProfileName, n)
}

// readGenerations lists the generations of the system profile in dir, newest
// first.
func readGenerations(dir string) ([]operation.Generation, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read profile directory %s: %w", dir, err)
	}

	current, err := currentGeneration(dir)
	if err != nil {
		return nil, err
	}

	var gens []operation.Generation
	for _, entry := range entries {
		m := generationLink.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		link := filepath.Join(dir, entry.Name())
		info, err := os.Lstat(link)
		if err != nil {
			continue
		}
		gens = append(gens, operation.Generation{
			Number:      n,
			CreatedAt:   info.ModTime().UTC(),
			Description: DescribeGeneration(link),
			IsCurrent:   n == current,
		})
	}

	sort.Slice(gens, func(i, j int) bool { return gens[i].Number > gens[j].Number })
	return gens, nil
}

// currentGeneration resolves the system link to a generation number.
func currentGeneration(dir string) (int, error) {
	target, err := os.Readlink(filepath.Join(dir, SystemProfileName))
	if err != nil {
		return 0, fmt.Errorf("read current system link: %w", err)
	}
	m := generationLink.FindStringSubmatch(filepath.Base(target))
	if m == nil {
		return 0, fmt.Errorf("system link points at %q, not a generation", target)
	}
	return strconv.Atoi(m[1])
}

// DescribeGeneration reads the NixOS version of a generation, falling back to
// its store path name.
func DescribeGeneration(link string) string {
	if data, err := os.ReadFile(filepath.Join(link, "nixos-version")); err == nil {
		if v := strings.TrimSpace(string(data)); v != "" {
			return "NixOS " + v
		}
	}
	if target, err := os.Readlink(link); err == nil {
		return filepath.Base(target)
	}
	return ""
}

// previousGeneration returns the highest generation below current.
func previousGeneration(gens []operation.Generation, current int) (int, bool) {
	best := 0
	for _, g := range gens {
		if g.Number < current && g.Number > best {
			best = g.Number
		}
	}
	return best, best > 0
}

// pointSystemAt atomically re-points the system link at generation n and
// returns the previous link target.
func pointSystemAt(dir string, n int) (string, error) {
	systemLink := filepath.Join(dir, SystemProfileName)
	previous, err := os.Readlink(systemLink)
	if err != nil {
		return "", fmt.Errorf("read current system link: %w", err)
	}
	if err := replaceSymlink(systemLink, GenerationLinkName(n)); err != nil {
		return "", err
	}
	return previous, nil
}

// replaceSymlink makes link point at target via rename, so readers never see
// a missing link.
func replaceSymlink(link, target string) error {
	tmp := fmt.Sprintf("%s.tmp-%d", link, os.Getpid())
	if err := os.Remove(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale temporary link: %w", err)
	}
	if err := os.Symlink(target, tmp); err != nil {
		return fmt.Errorf("create temporary link: %w", err)
	}
	if err := os.Rename(tmp, link); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", link, err)
	}
	return nil
}
