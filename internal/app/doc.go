// Package app bootstraps nixmate and owns the lifetime of its components.
//
// # Architecture Overview
//
// The app package is the composition root, with four parts:
//
//  1. **Configuration (`config.go`)**: runtime settings from command-line flags
//     plus the loaded config.Config, and the injection points tests use.
//  2. **Bootstrap (`bootstrap.go`)**: logging setup, configuration loading and
//     the Application type the commands talk to.
//  3. **Services (`services.go`)**: builds the component graph.
//  4. **Modes (`modes.go`)**: the long-running serve mode.
//
// # Component Graph
//
// InitializeServices wires the components in dependency order:
//
//  1. The PathResolver runs its probe chain. The first handle whose native
//     API passes the capability check selects the native executor (the
//     nixapi adapter behind a worker pool). When no probe succeeds the
//     subprocess executor is used instead; this is the normal path on a
//     machine where the Nix state is not where the probes look.
//  2. In enhanced mode (the default) the operation cache and the error
//     recovery engine are created. The cache is backed by badger when
//     cache.persistentDir is set, so separate CLI invocations share results.
//  3. The history journal is opened when history is enabled. A journal that
//     cannot be opened is logged and skipped, never fatal.
//  4. The orchestrator is assembled from the executor, the security
//     validator, the cache, recovery, metrics and the journal as observer.
//
// # Serve Mode
//
// Serve starts the HTTP API and, when caching is enabled and a profile
// directory is known, the profile watcher. It notifies systemd with
// READY=1 once listening and STOPPING=1 on SIGINT or SIGTERM, then shuts the
// server down gracefully.
//
// # Logging
//
// One-shot commands log warnings and errors to stderr unless --debug is set,
// so results on stdout stay readable. Serve mode uses the configured level
// and format, typically JSON for a log shipper.
package app
