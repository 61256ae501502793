package recovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nixmate/internal/executor/executortest"
	"nixmate/internal/operation"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		failure *operation.ExecutionFailure
		want    operation.Category
	}{
		{
			name:    "disk space in message",
			failure: &operation.ExecutionFailure{Message: "writing to file: No space left on device"},
			want:    operation.CategoryDiskSpace,
		},
		{
			name:    "disk space in output tail",
			failure: &operation.ExecutionFailure{Message: "build failed", Output: "error: disk quota exceeded"},
			want:    operation.CategoryDiskSpace,
		},
		{
			name:    "network",
			failure: &operation.ExecutionFailure{Message: "unable to download 'https://cache.nixos.org/abc.narinfo': Could not resolve host: cache.nixos.org"},
			want:    operation.CategoryNetwork,
		},
		{
			name:    "connection refused",
			failure: &operation.ExecutionFailure{Output: "curl: (7) Connection refused"},
			want:    operation.CategoryNetwork,
		},
		{
			name:    "permission",
			failure: &operation.ExecutionFailure{Message: "opening lock file '/nix/var/nix/profiles/system.lock': Permission denied"},
			want:    operation.CategoryPermission,
		},
		{
			name:    "permission in wrapped error",
			failure: &operation.ExecutionFailure{Message: "activation failed", Err: errors.New("operation not permitted")},
			want:    operation.CategoryPermission,
		},
		{
			name:    "timeout is kept",
			failure: &operation.ExecutionFailure{Category: operation.CategoryTimeout, Message: "the operation timed out, no space left on device"},
			want:    operation.CategoryTimeout,
		},
		{
			name:    "cancelled is kept",
			failure: &operation.ExecutionFailure{Category: operation.CategoryCancelled},
			want:    operation.CategoryCancelled,
		},
		{
			name:    "unknown",
			failure: &operation.ExecutionFailure{Message: "attribute 'fooo' missing"},
			want:    operation.CategoryUnknown,
		},
		{
			name: "nil",
			want: operation.CategoryUnknown,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.failure))
		})
	}
}

func updateOp(t *testing.T) operation.Operation {
	t.Helper()
	op, err := operation.New(operation.KindUpdate, nil).Canonical()
	require.NoError(t, err)
	return op
}

var diskFull = &operation.ExecutionFailure{Message: "writing to file: No space left on device"}

func TestMaybeRecover_DiskSpaceRetriesOnce(t *testing.T) {
	ex := &executortest.Executor{}
	engine := NewEngine(ex)
	op := updateOp(t)

	retries := 0
	res := engine.MaybeRecover(context.Background(), op, diskFull, func(ctx context.Context) (operation.Result, error) {
		retries++
		return operation.Succeeded(op, "system updated", nil), nil
	})

	assert.True(t, res.Success)
	assert.Equal(t, operation.CategoryDiskSpace, res.RecoveredVia)
	assert.Equal(t, 1, retries)
	assert.Equal(t, 1, ex.GCCalls())
}

func TestMaybeRecover_DiskSpaceRetryFails(t *testing.T) {
	ex := &executortest.Executor{}
	engine := NewEngine(ex)
	op := updateOp(t)

	retries := 0
	res := engine.MaybeRecover(context.Background(), op, diskFull, func(ctx context.Context) (operation.Result, error) {
		retries++
		return operation.Result{}, &operation.ExecutionFailure{Message: "still no space left on device"}
	})

	assert.False(t, res.Success)
	assert.Equal(t, 1, retries, "never more than one retry")
	assert.Equal(t, 1, ex.GCCalls())
	assert.Equal(t, operation.CategoryDiskSpace, res.FailureCategory)
	assert.Contains(t, res.Message, "writing to file: No space left on device")
	assert.Contains(t, res.Suggestion, "nix-collect-garbage -d")
	assert.Empty(t, res.RecoveredVia)
}

func TestMaybeRecover_GarbageCollectionFails(t *testing.T) {
	ex := &executortest.Executor{GCFunc: func(context.Context) error { return errors.New("lock held") }}
	engine := NewEngine(ex)
	op := updateOp(t)

	retries := 0
	res := engine.MaybeRecover(context.Background(), op, diskFull, func(ctx context.Context) (operation.Result, error) {
		retries++
		return operation.Succeeded(op, "ok", nil), nil
	})

	assert.False(t, res.Success)
	assert.Zero(t, retries)
	assert.Contains(t, res.Suggestion, "automatic garbage collection failed (lock held)")
}

func TestMaybeRecover_NoRetryCategories(t *testing.T) {
	tests := []struct {
		name       string
		failure    *operation.ExecutionFailure
		category   operation.Category
		suggestion string
	}{
		{
			name:       "network",
			failure:    &operation.ExecutionFailure{Message: "unable to download 'https://cache.nixos.org/x'"},
			category:   operation.CategoryNetwork,
			suggestion: "offline mode",
		},
		{
			name:       "permission",
			failure:    &operation.ExecutionFailure{Message: "Permission denied"},
			category:   operation.CategoryPermission,
			suggestion: "elevated privileges",
		},
		{
			name:     "unknown",
			failure:  &operation.ExecutionFailure{Message: "attribute 'fooo' missing"},
			category: operation.CategoryUnknown,
		},
		{
			name:       "timeout",
			failure:    &operation.ExecutionFailure{Category: operation.CategoryTimeout, Message: "the operation timed out after 30s"},
			category:   operation.CategoryTimeout,
			suggestion: "executor.timeouts",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := &executortest.Executor{}
			engine := NewEngine(ex)
			op := updateOp(t)

			res := engine.MaybeRecover(context.Background(), op, tt.failure, func(ctx context.Context) (operation.Result, error) {
				t.Fatal("must not retry")
				return operation.Result{}, nil
			})

			assert.False(t, res.Success)
			assert.Equal(t, tt.category, res.FailureCategory)
			assert.Equal(t, "could not update the system configuration: "+tt.failure.Message, res.Message)
			assert.Zero(t, ex.GCCalls())
			if tt.suggestion == "" {
				assert.Empty(t, res.Suggestion)
			} else {
				assert.Contains(t, res.Suggestion, tt.suggestion)
			}
		})
	}
}

func TestMaybeRecover_DoesNotMutateFailure(t *testing.T) {
	engine := NewEngine(&executortest.Executor{})
	f := &operation.ExecutionFailure{Category: operation.CategoryUnknown, Message: "Permission denied"}
	engine.MaybeRecover(context.Background(), updateOp(t), f, nil)
	assert.Equal(t, operation.CategoryUnknown, f.Category)
}
