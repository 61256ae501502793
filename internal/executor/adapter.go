package executor

import (
	"context"
	"errors"
	"fmt"

	"nixmate/internal/nixapi"
	"nixmate/internal/operation"
	"nixmate/internal/progress"
	"nixmate/pkg/logging"
)

// Adapter exposes the blocking native API as an Executor. Each call runs on a
// pool goroutine; the caller waits for it or for its context, whichever ends
// first.
type Adapter struct {
	api      nixapi.API
	pool     *Pool
	timeouts TimeoutFunc
}

// NewAdapter wraps api. A nil pool gets a GOMAXPROCS-sized one and nil
// timeouts mean DefaultTimeouts.
func NewAdapter(api nixapi.API, pool *Pool, timeouts TimeoutFunc) *Adapter {
	if pool == nil {
		pool = NewPool(0)
	}
	if timeouts == nil {
		timeouts = DefaultTimeouts
	}
	return &Adapter{api: api, pool: pool, timeouts: timeouts}
}

func (a *Adapter) Name() string { return NameNative }

type outcome struct {
	res operation.Result
	err error
}

// Execute dispatches op to the native API. When ctx ends before the call
// returns, Execute returns a timeout or cancelled failure at once and the
// late result is dropped.
func (a *Adapter) Execute(ctx context.Context, op operation.Operation, reporter progress.Reporter) (operation.Result, error) {
	if reporter == nil {
		reporter = progress.Discard
	}
	limit := a.timeouts(op.Kind())
	ctx, cancel := withTimeout(ctx, a.timeouts, op.Kind())
	defer cancel()

	done := make(chan outcome, 1)
	err := a.pool.Go(ctx, func() {
		res, err := a.call(op, reporter)
		done <- outcome{res: res, err: err}
	})
	if err != nil {
		return operation.Result{}, contextFailure(err, limit)
	}

	select {
	case o := <-done:
		return o.res, o.err
	case <-ctx.Done():
		logging.Warn("NativeExecutor", "Abandoning %s after %v, its result will be discarded", op.Kind(), context.Cause(ctx))
		return operation.Result{}, contextFailure(ctx.Err(), limit)
	}
}

// call runs on a pool goroutine. A panic inside the native API is contained
// and reported as an unknown failure.
func (a *Adapter) call(op operation.Operation, reporter progress.Reporter) (res operation.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("NativeExecutor", fmt.Errorf("panic: %v", r), "Native %s panicked", op.Kind())
			res, err = operation.Result{}, &operation.ExecutionFailure{
				Category: operation.CategoryUnknown,
				Message:  fmt.Sprintf("native API panicked: %v", r),
			}
		}
	}()

	forward := func(message string, fraction float64) {
		reporter.Report(message, fraction)
	}
	data, err := a.dispatch(op, forward)
	if err != nil {
		return operation.Result{}, nativeFailure(err)
	}
	return succeeded(op, data, NameNative), nil
}

func (a *Adapter) dispatch(op operation.Operation, forward nixapi.ProgressFunc) (*operation.Payload, error) {
	switch op.Kind() {
	case operation.KindListGenerations:
		gens, err := a.api.ListGenerations()
		if err != nil {
			return nil, err
		}
		limit, _ := op.Int(operation.OptLimit)
		return &operation.Payload{Generations: limitGenerations(gens, limit)}, nil

	case operation.KindSearch:
		limit, _ := op.Int(operation.OptLimit)
		pkgs, err := a.api.SearchPackages(op.String(operation.OptQuery), int(limit))
		if err != nil {
			return nil, err
		}
		return &operation.Payload{Packages: pkgs}, nil

	case operation.KindUpdate:
		path, err := a.api.Switch(buildRequest(op), forward)
		if err != nil {
			return nil, err
		}
		return &operation.Payload{StorePath: path}, nil

	case operation.KindBuild:
		path, err := a.api.Build(buildRequest(op), forward)
		if err != nil {
			return nil, err
		}
		return &operation.Payload{StorePath: path}, nil

	case operation.KindRollback:
		target, _ := op.Int(operation.OptGenerationNumber)
		n, err := a.api.Rollback(int(target), forward)
		if err != nil {
			return nil, err
		}
		return rolledBackTo(n), nil

	case operation.KindInstall:
		return nil, a.api.Install(op.String(operation.OptPackageName), forward)

	case operation.KindRemove:
		return nil, a.api.Remove(op.String(operation.OptPackageName), forward)

	case operation.KindRepair:
		return nil, a.api.Repair(op.Bool(operation.OptCheckContents), forward)

	case operation.KindDryRun:
		paths, err := a.api.DryRun(buildRequest(op))
		if err != nil {
			return nil, err
		}
		return &operation.Payload{Changes: paths}, nil
	}
	return nil, fmt.Errorf("unsupported operation kind %q", op.Kind())
}

// CollectGarbage runs the native garbage collector on the pool.
func (a *Adapter) CollectGarbage(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, gcTimeout)
	defer cancel()

	done := make(chan error, 1)
	if err := a.pool.Go(ctx, func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("garbage collection panicked: %v", r)
			}
		}()
		done <- a.api.CollectGarbage()
	}); err != nil {
		return contextFailure(err, gcTimeout)
	}
	select {
	case err := <-done:
		if err != nil {
			return nativeFailure(err)
		}
		return nil
	case <-ctx.Done():
		return contextFailure(ctx.Err(), gcTimeout)
	}
}

func buildRequest(op operation.Operation) nixapi.BuildRequest {
	return nixapi.BuildRequest{
		ConfigPath: op.String(operation.OptConfigPath),
		Flake:      op.String(operation.OptFlake),
		Upgrade:    op.Bool(operation.OptUpgrade),
	}
}

// nativeFailure converts a native API error into the executor failure type.
// Classification is left to recovery.
func nativeFailure(err error) *operation.ExecutionFailure {
	var nerr *nixapi.Error
	if errors.As(err, &nerr) {
		return &operation.ExecutionFailure{
			Category: operation.CategoryUnknown,
			Message:  nerr.Message,
			Output:   nerr.Output,
			ExitCode: nerr.ExitCode,
			Err:      err,
		}
	}
	return operation.AsFailure(err)
}

var _ Executor = (*Adapter)(nil)
