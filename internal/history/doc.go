// Package history keeps a journal of orchestrated operations in SQLite, so
// the history command can show what was run, when, and how it ended.
package history
