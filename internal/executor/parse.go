package executor

import (
	"bufio"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"nixmate/internal/nixapi"
	"nixmate/internal/operation"
)

const generationDateLayout = "2006-01-02 15:04:05"

// listedGeneration is one entry of `nixos-rebuild list-generations --json`.
type listedGeneration struct {
	Generation    int    `json:"generation"`
	Date          string `json:"date"`
	NixosVersion  string `json:"nixosVersion"`
	KernelVersion string `json:"kernelVersion"`
	Current       bool   `json:"current"`
}

// parseGenerationsJSON parses list-generations JSON output. Dates are local
// time and are returned in UTC.
func parseGenerationsJSON(out string) ([]operation.Generation, error) {
	var listed []listedGeneration
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &listed); err != nil {
		return nil, fmt.Errorf("unreadable generation list: %w", err)
	}
	gens := make([]operation.Generation, 0, len(listed))
	for _, l := range listed {
		if l.Generation <= 0 {
			continue
		}
		g := operation.Generation{Number: l.Generation, IsCurrent: l.Current}
		if t, err := time.ParseInLocation(generationDateLayout, l.Date, time.Local); err == nil {
			g.CreatedAt = t.UTC()
		}
		if l.NixosVersion != "" {
			g.Description = "NixOS " + l.NixosVersion
		}
		gens = append(gens, g)
	}
	sortNewestFirst(gens)
	return gens, nil
}

var generationLine = regexp.MustCompile(`^\s*(\d+)\s+(\d{4}-\d{2}-\d{2}\s+\d{2}:\d{2}:\d{2})\s*(\(current\))?\s*$`)

// parseGenerationsText parses `nix-env --list-generations` output. Lines that
// do not look like generations are skipped. Descriptions are read from the
// generation links in profileDir when they exist.
func parseGenerationsText(out, profileDir string) []operation.Generation {
	var gens []operation.Generation
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		m := generationLine.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			continue
		}
		g := operation.Generation{Number: n, IsCurrent: m[3] != ""}
		date := strings.Join(strings.Fields(m[2]), " ")
		if t, err := time.ParseInLocation(generationDateLayout, date, time.Local); err == nil {
			g.CreatedAt = t.UTC()
		}
		if profileDir != "" {
			g.Description = nixapi.DescribeGeneration(filepath.Join(profileDir, nixapi.GenerationLinkName(n)))
		}
		gens = append(gens, g)
	}
	sortNewestFirst(gens)
	return gens
}

func sortNewestFirst(gens []operation.Generation) {
	sort.Slice(gens, func(i, j int) bool { return gens[i].Number > gens[j].Number })
}

var packageLine = regexp.MustCompile(`^(\S+)\s+(\S+)(?:\s+(.*))?$`)

// parsePackages parses `nix-env -qaP --description` output, keeps entries
// matching every word of query and returns them sorted by attribute.
func parsePackages(out, query string, limit int64) []operation.Package {
	words := strings.Fields(strings.ToLower(query))
	pkgs := []operation.Package{}
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(strings.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		m := packageLine.FindStringSubmatch(strings.TrimSpace(scanner.Text()))
		if m == nil || seen[m[1]] {
			continue
		}
		name, version := splitNameVersion(m[2])
		pkg := operation.Package{
			Attr:        m[1],
			Name:        name,
			Version:     version,
			Description: strings.TrimSpace(m[3]),
		}
		if !matchesAll(pkg, words) {
			continue
		}
		seen[pkg.Attr] = true
		pkgs = append(pkgs, pkg)
	}
	sort.Slice(pkgs, func(i, j int) bool { return pkgs[i].Attr < pkgs[j].Attr })
	if limit > 0 && int64(len(pkgs)) > limit {
		pkgs = pkgs[:limit]
	}
	return pkgs
}

func matchesAll(pkg operation.Package, words []string) bool {
	haystack := strings.ToLower(pkg.Attr + " " + pkg.Name + " " + pkg.Description)
	for _, w := range words {
		if !strings.Contains(haystack, w) {
			return false
		}
	}
	return true
}

// splitNameVersion splits a derivation name at the first dash that is not
// followed by a letter: "gnome-shell-45.2" is ("gnome-shell", "45.2").
func splitNameVersion(s string) (string, string) {
	for i := 0; i+1 < len(s); i++ {
		if s[i] == '-' && !unicode.IsLetter(rune(s[i+1])) {
			return s[:i], s[i+1:]
		}
	}
	return s, ""
}

var profileSwitch = regexp.MustCompile(`switching profile from version (\d+) to (\d+)`)

// profileSwitchIn finds nix-env's "switching profile from version X to Y"
// line and returns X and Y.
func profileSwitchIn(out string) (from, to int, ok bool) {
	m := profileSwitch.FindAllStringSubmatch(out, -1)
	if len(m) == 0 {
		return 0, 0, false
	}
	last := m[len(m)-1]
	from, _ = strconv.Atoi(last[1])
	to, _ = strconv.Atoi(last[2])
	return from, to, true
}

// searchPattern turns the first word of query into the regular expression
// nix-env matches package names against.
func searchPattern(query string) string {
	words := strings.Fields(query)
	if len(words) == 0 {
		return ".*"
	}
	return ".*" + regexp.QuoteMeta(strings.ToLower(words[0])) + ".*"
}
