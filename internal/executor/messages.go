package executor

import (
	"fmt"

	"nixmate/internal/operation"
)

// succeeded builds the success result both executors return, so their
// messages and payload shapes match.
func succeeded(op operation.Operation, data *operation.Payload, executor string) operation.Result {
	res := operation.Succeeded(op, successMessage(op, data), data)
	res.Executor = executor
	return res
}

func successMessage(op operation.Operation, data *operation.Payload) string {
	switch op.Kind() {
	case operation.KindListGenerations:
		n := len(data.Generations)
		for _, g := range data.Generations {
			if g.IsCurrent {
				return fmt.Sprintf("%d generations, current is %d", n, g.Number)
			}
		}
		return fmt.Sprintf("%d generations", n)
	case operation.KindSearch:
		if len(data.Packages) == 0 {
			return fmt.Sprintf("no packages match %q", op.String(operation.OptQuery))
		}
		return fmt.Sprintf("%d packages match %q", len(data.Packages), op.String(operation.OptQuery))
	case operation.KindUpdate:
		if data != nil && data.StorePath != "" {
			return "system switched to " + data.StorePath
		}
		return "system updated"
	case operation.KindRollback:
		if data != nil && len(data.Generations) == 1 {
			return fmt.Sprintf("rolled back to generation %d", data.Generations[0].Number)
		}
		return "rolled back to the previous generation"
	case operation.KindBuild:
		return "built " + data.StorePath
	case operation.KindInstall:
		return "installed " + op.String(operation.OptPackageName)
	case operation.KindRemove:
		return "removed " + op.String(operation.OptPackageName)
	case operation.KindRepair:
		return "store verified and repaired"
	case operation.KindDryRun:
		if len(data.Changes) == 0 {
			return "nothing to build, the system is up to date"
		}
		return fmt.Sprintf("%d store paths would be built or fetched", len(data.Changes))
	}
	return "done"
}

// limitGenerations keeps the newest limit generations; limit <= 0 keeps all.
// gens must be sorted newest first.
func limitGenerations(gens []operation.Generation, limit int64) []operation.Generation {
	if limit > 0 && int64(len(gens)) > limit {
		return gens[:limit]
	}
	return gens
}

// rolledBackTo is the payload of a rollback whose target is known.
func rolledBackTo(n int) *operation.Payload {
	if n <= 0 {
		return nil
	}
	return &operation.Payload{Generations: []operation.Generation{{Number: n, IsCurrent: true}}}
}
