// Package executor runs validated operations against the system.
//
// Two executors share one contract. Adapter wraps the blocking native API
// (nixapi.API) and dispatches each call onto a bounded worker pool; when the
// caller's context ends first it returns at once and the abandoned call's
// result is discarded. Subprocess shells out to nixos-rebuild, nix-env and
// nix-store, enforces a per-kind timeout, kills the process group on
// cancellation, tolerates unexpected text output and synthesizes coarse
// progress phases from recognisable log lines.
//
// Both return results built by the same message helpers, so a caller cannot
// tell which executor ran except through Result.Executor. Every error they
// return is an *operation.ExecutionFailure.
package executor
