package executor

import (
	"context"
	"time"

	"nixmate/internal/operation"
	"nixmate/internal/progress"
)

// Executor names.
const (
	NameNative     = "native"
	NameSubprocess = "subprocess"
)

// Executor runs one operation. A non-nil error is always an
// *operation.ExecutionFailure and the Result is then zero.
type Executor interface {
	Name() string
	Execute(ctx context.Context, op operation.Operation, reporter progress.Reporter) (operation.Result, error)
	// CollectGarbage is the disk-space remediation used by recovery.
	CollectGarbage(ctx context.Context) error
}

// TimeoutFunc returns the execution timeout for a kind.
type TimeoutFunc func(kind operation.Kind) time.Duration

// DefaultTimeouts gives reads 30 seconds, closure builds two hours and
// everything else thirty minutes.
func DefaultTimeouts(kind operation.Kind) time.Duration {
	switch {
	case kind.IsIdempotentRead() && kind != operation.KindDryRun:
		return 30 * time.Second
	case kind.IsLongRunning():
		return 2 * time.Hour
	default:
		return 30 * time.Minute
	}
}

// gcTimeout bounds the remediation garbage collection.
const gcTimeout = 30 * time.Minute

func withTimeout(ctx context.Context, timeouts TimeoutFunc, kind operation.Kind) (context.Context, context.CancelFunc) {
	if timeouts == nil {
		timeouts = DefaultTimeouts
	}
	d := timeouts(kind)
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// contextFailure converts a context error, annotating timeouts with the
// limit that was hit.
func contextFailure(err error, limit time.Duration) *operation.ExecutionFailure {
	f := operation.AsFailure(err)
	if f.Category == operation.CategoryTimeout && limit > 0 {
		f.Message = "the operation timed out after " + limit.String()
	}
	return f
}
