package recovery

import (
	"context"
	"fmt"

	"nixmate/internal/operation"
	"nixmate/pkg/logging"
	pkgstrings "nixmate/pkg/strings"
)

// Remediator frees disk space. Executors implement it.
type Remediator interface {
	CollectGarbage(ctx context.Context) error
}

// Attempt re-executes the failed operation. A non-nil error is an
// *operation.ExecutionFailure.
type Attempt func(ctx context.Context) (operation.Result, error)

// Engine decides what happens after an execution failed.
type Engine struct {
	remediator Remediator
}

// NewEngine creates an Engine that cleans up through r.
func NewEngine(r Remediator) *Engine {
	return &Engine{remediator: r}
}

// MaybeRecover classifies failure and returns the final result for op. retry
// is called at most once, and only after a disk-space failure was remediated.
// A recovered result carries RecoveredVia.
func (e *Engine) MaybeRecover(ctx context.Context, op operation.Operation, failure *operation.ExecutionFailure, retry Attempt) operation.Result {
	if failure == nil {
		failure = &operation.ExecutionFailure{Category: operation.CategoryUnknown}
	}
	classified := *failure
	classified.Category = Classify(failure)

	switch classified.Category {
	case operation.CategoryDiskSpace:
		return e.recoverDiskSpace(ctx, op, &classified, retry)
	case operation.CategoryNetwork, operation.CategoryPermission:
		logging.Info("Recovery", "%s failed with %s, not retrying", op.Kind(), classified.Category)
	default:
		logging.Debug("Recovery", "%s failed with %s, no remediation available", op.Kind(), classified.Category)
	}
	return operation.Failed(op, &classified)
}

func (e *Engine) recoverDiskSpace(ctx context.Context, op operation.Operation, failure *operation.ExecutionFailure, retry Attempt) operation.Result {
	if e.remediator == nil || retry == nil {
		return operation.Failed(op, failure)
	}

	logging.Info("Recovery", "%s ran out of disk space, collecting garbage before one retry", op.Kind())
	if err := e.remediator.CollectGarbage(ctx); err != nil {
		logging.Warn("Recovery", "Garbage collection failed: %v", err)
		res := operation.Failed(op, failure)
		res.Suggestion = withHint(res.Suggestion, fmt.Sprintf(
			"automatic garbage collection failed (%s)", pkgstrings.Summarize(err.Error(), 80)))
		return res
	}

	res, err := retry(ctx)
	if err == nil {
		logging.Info("Recovery", "%s succeeded after garbage collection", op.Kind())
		res.RecoveredVia = operation.CategoryDiskSpace
		return res
	}

	retryFailure := operation.AsFailure(err)
	logging.Warn("Recovery", "%s failed again after garbage collection: %s", op.Kind(), retryFailure.Error())
	out := operation.Failed(op, failure)
	out.Suggestion = withHint(out.Suggestion,
		"garbage collection did not free enough space; delete old generations with 'nix-collect-garbage -d' and retry")
	return out
}

func withHint(suggestion, hint string) string {
	if suggestion == "" {
		return hint
	}
	return suggestion + "; " + hint
}
