package cli

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"nixmate/internal/operation"
)

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		res  operation.Result
		want int
	}{
		{name: "success", res: operation.Result{Success: true}, want: ExitSuccess},
		{name: "validation", res: operation.Result{FailureCategory: operation.CategoryValidation}, want: ExitValidation},
		{name: "privilege", res: operation.Result{FailureCategory: operation.CategoryPermission}, want: ExitPrivilege},
		{name: "timeout", res: operation.Result{FailureCategory: operation.CategoryTimeout}, want: ExitTimeout},
		{name: "disk space", res: operation.Result{FailureCategory: operation.CategoryDiskSpace}, want: ExitFailure},
		{name: "cancelled", res: operation.Result{FailureCategory: operation.CategoryCancelled}, want: ExitFailure},
		{name: "unknown", res: operation.Result{FailureCategory: operation.CategoryUnknown}, want: ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCodeFor(tt.res))
		})
	}
}

func TestResultError(t *testing.T) {
	assert.NoError(t, ResultError(operation.Result{Success: true}))

	err := ResultError(operation.Result{Message: "refused to update: insufficient privilege", FailureCategory: operation.CategoryPermission})
	assert.EqualError(t, err, "refused to update: insufficient privilege")
	assert.Equal(t, ExitPrivilege, ExitCode(err))
	assert.True(t, Reported(err))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, ExitCode(nil))
	assert.Equal(t, ExitFailure, ExitCode(errors.New("config broken")))
	assert.False(t, Reported(errors.New("config broken")))

	wrapped := fmt.Errorf("run: %w", &ExitError{Code: ExitTimeout})
	assert.Equal(t, ExitTimeout, ExitCode(wrapped))
	assert.Equal(t, "exit status 4", (&ExitError{Code: ExitTimeout}).Error())
}
