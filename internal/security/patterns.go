package security

import (
	"regexp"
	"strings"
)

// shellMetacharacters must never appear in option values. Executors pass
// arguments as argv, but the subprocess fallback must not receive them either.
const shellMetacharacters = ";|&$`<>\\\n\r\x00"

// deniedSubstrings are rejected case-insensitively in any string option.
var deniedSubstrings = []string{
	"$(",
	"${",
	"rm -rf",
	"sudo ",
	"chmod 777",
	"mkfs",
	"/etc/shadow",
	"/etc/passwd",
	"file://",
	"--option",
	"__proto__",
}

var (
	packageNamePattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9._+-]{0,127}$`)
	queryPattern       = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9._+ -]{0,255}$`)
	flakeAttrPattern   = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)
)

func findDenied(value string) (string, bool) {
	if i := strings.IndexAny(value, shellMetacharacters); i >= 0 {
		return describeChar(value[i]), true
	}
	lower := strings.ToLower(value)
	for _, s := range deniedSubstrings {
		if strings.Contains(lower, s) {
			return "\"" + strings.TrimSpace(s) + "\"", true
		}
	}
	return "", false
}

func describeChar(c byte) string {
	switch c {
	case '\n':
		return "newline"
	case '\r':
		return "carriage return"
	case 0:
		return "NUL byte"
	default:
		return "'" + string(c) + "'"
	}
}
