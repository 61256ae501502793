package strings

import (
	"strings"
)

// DefaultSummaryMaxLen bounds single-line summaries of command output embedded
// in user-facing messages.
const DefaultSummaryMaxLen = 160

// MinTruncateLen is the minimum maxLen value for Summarize.
const MinTruncateLen = 4

// Summarize collapses s onto a single line and truncates it to maxLen runes,
// appending "..." when truncated. Whitespace runs become single spaces.
func Summarize(s string, maxLen int) string {
	if maxLen < MinTruncateLen {
		maxLen = MinTruncateLen
	}

	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}

// LastLines returns the last n non-blank lines of s, joined with newlines.
// Nix prints the actionable error at the end of long build logs, so callers use
// this to keep the relevant tail of stderr.
func LastLines(s string, n int) string {
	if n <= 0 {
		return ""
	}
	var kept []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimRight(line, " \t\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		kept = append(kept, line)
	}
	if len(kept) > n {
		kept = kept[len(kept)-n:]
	}
	return strings.Join(kept, "\n")
}
