// Package cli renders operation results for the terminal.
//
// Printer writes results as go-pretty tables (generations, packages, metrics,
// history) or as JSON or YAML for scripting. ProgressRenderer shows progress
// events with a spinner on terminals and as plain lines otherwise. ExitCodeFor
// maps a result to the process exit code:
//
//	0  success
//	1  execution failure
//	2  request rejected by validation
//	3  insufficient privilege
//	4  timeout
package cli
