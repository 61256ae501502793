// Package executortest provides a counting executor for tests of code that
// sits above the executors.
package executortest

import (
	"context"
	"sync"

	"nixmate/internal/operation"
	"nixmate/internal/progress"
)

// Executor is a scriptable executor that counts executions per kind. A nil
// ExecuteFunc succeeds with a message naming the kind.
type Executor struct {
	ExecutorName string
	ExecuteFunc  func(ctx context.Context, op operation.Operation, reporter progress.Reporter) (operation.Result, error)
	GCFunc       func(ctx context.Context) error

	mu         sync.Mutex
	executions map[operation.Kind]int
	gcCalls    int
}

func (e *Executor) Name() string {
	if e.ExecutorName == "" {
		return "mock"
	}
	return e.ExecutorName
}

func (e *Executor) Execute(ctx context.Context, op operation.Operation, reporter progress.Reporter) (operation.Result, error) {
	e.mu.Lock()
	if e.executions == nil {
		e.executions = make(map[operation.Kind]int)
	}
	e.executions[op.Kind()]++
	e.mu.Unlock()

	if e.ExecuteFunc != nil {
		return e.ExecuteFunc(ctx, op, reporter)
	}
	res := operation.Succeeded(op, string(op.Kind())+" done", nil)
	res.Executor = e.Name()
	return res, nil
}

func (e *Executor) CollectGarbage(ctx context.Context) error {
	e.mu.Lock()
	e.gcCalls++
	e.mu.Unlock()
	if e.GCFunc != nil {
		return e.GCFunc(ctx)
	}
	return nil
}

// Executions returns how often kind was executed.
func (e *Executor) Executions(kind operation.Kind) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.executions[kind]
}

// TotalExecutions returns the number of Execute calls.
func (e *Executor) TotalExecutions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.executions {
		n += c
	}
	return n
}

// GCCalls returns how often CollectGarbage ran.
func (e *Executor) GCCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gcCalls
}
