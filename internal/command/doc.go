// Package command runs external programs with captured output.
//
// Runner is the seam both the native API and the subprocess fallback use to
// start Nix tools. ExecRunner starts each command in its own process group so
// that cancelling the context terminates the command and anything it spawned.
// Standard error is streamed line by line to an optional callback while it is
// captured, which lets callers turn tool logs into progress events.
package command
