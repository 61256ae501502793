// Package logging provides subsystem-tagged, leveled logging for nixmate on top
// of Go's standard slog package.
//
// # Log Levels
//   - **Debug**: state transitions, cache decisions, raw command lines
//   - **Info**: executor selection, operation outcomes
//   - **Warn**: recoverable problems such as dropped progress events
//   - **Error**: failed operations and infrastructure errors
//
// # Usage
//
//	logging.Init(logging.Options{
//	    Level:  logging.LevelInfo,
//	    Format: logging.FormatText,
//	    Output: os.Stderr,
//	})
//
//	logging.Info("Resolver", "Native API found via %s", handle.Source)
//	logging.Error("Executor", err, "Command %s failed", argv[0])
//
// Every entry carries a "subsystem" attribute; errors passed to Error are
// attached as an "error" attribute rather than being formatted into the message.
//
// # Formats
//
// FormatText is used by the interactive CLI. FormatJSON is used by the serve
// command so that journald and log shippers can parse entries.
//
// # Thread Safety
//
// The active logger is swapped atomically, so Init may race with logging calls
// from other goroutines without data races.
package logging
