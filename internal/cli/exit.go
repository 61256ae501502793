package cli

import (
	"errors"
	"fmt"

	"nixmate/internal/operation"
)

// Process exit codes.
const (
	ExitSuccess    = 0
	ExitFailure    = 1
	ExitValidation = 2
	ExitPrivilege  = 3
	ExitTimeout    = 4
)

// ExitCodeFor maps a result to the process exit code.
func ExitCodeFor(res operation.Result) int {
	if res.Success {
		return ExitSuccess
	}
	switch res.FailureCategory {
	case operation.CategoryValidation:
		return ExitValidation
	case operation.CategoryPermission:
		return ExitPrivilege
	case operation.CategoryTimeout:
		return ExitTimeout
	default:
		return ExitFailure
	}
}

// ExitError carries an exit code for a failure that has already been shown
// to the user, so the command root exits without printing it again.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// ResultError returns nil for a successful result and an *ExitError otherwise.
func ResultError(res operation.Result) error {
	if res.Success {
		return nil
	}
	return &ExitError{Code: ExitCodeFor(res), Err: errors.New(res.Message)}
}

// ExitCode returns the exit code for an error returned by a command.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Reported reports whether err has already been shown to the user.
func Reported(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr)
}
