package operation

import (
	"context"
	"errors"
	"fmt"
)

// ErrInsufficientPrivilege is wrapped by ValidationErrors raised when a
// privileged operation is requested from an unelevated context.
var ErrInsufficientPrivilege = errors.New("insufficient privilege")

// ValidationError reports a request rejected before execution.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Category classifies execution failures for recovery decisions.
type Category string

const (
	CategoryDiskSpace  Category = "disk_space_exhausted"
	CategoryNetwork    Category = "network_unavailable"
	CategoryPermission Category = "permission_denied"
	CategoryTimeout    Category = "timeout"
	CategoryCancelled  Category = "cancelled"
	CategoryUnknown    Category = "unknown"
	// CategoryValidation tags results rejected before execution. It is never
	// produced by recovery classification.
	CategoryValidation Category = "validation"
)

// Suggestion returns the next step shown to users for the category.
func (c Category) Suggestion() string {
	switch c {
	case CategoryDiskSpace:
		return "free disk space (for example with 'nix-store --gc') and retry"
	case CategoryNetwork:
		return "check your network connection, or retry in offline mode with '--option substitute false'"
	case CategoryPermission:
		return "re-run with elevated privileges (for example with sudo)"
	case CategoryTimeout:
		return "retry later or raise executor.timeouts for this operation kind"
	default:
		return ""
	}
}

// ExecutionFailure is the typed error produced at the executor boundary. No
// raw error from the native API or a subprocess crosses that boundary.
type ExecutionFailure struct {
	Category Category
	// Message is a plain-language reason.
	Message string
	// Output keeps the tail of the underlying tool output for classification.
	Output   string
	ExitCode int
	Err      error
}

func (f *ExecutionFailure) Error() string {
	if f.Err != nil && f.Message == "" {
		return f.Err.Error()
	}
	return f.Message
}

func (f *ExecutionFailure) Unwrap() error { return f.Err }

// Text returns everything known about the failure for pattern matching.
func (f *ExecutionFailure) Text() string {
	text := f.Message
	if f.Output != "" {
		text += "\n" + f.Output
	}
	if f.Err != nil {
		text += "\n" + f.Err.Error()
	}
	return text
}

// AsFailure converts any error into an *ExecutionFailure. Context errors map
// to the timeout and cancelled categories.
func AsFailure(err error) *ExecutionFailure {
	if err == nil {
		return nil
	}
	var f *ExecutionFailure
	if errors.As(err, &f) {
		return f
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &ExecutionFailure{Category: CategoryTimeout, Message: "the operation timed out", Err: err}
	case errors.Is(err, context.Canceled):
		return &ExecutionFailure{Category: CategoryCancelled, Message: "the operation was cancelled", Err: err}
	}
	return &ExecutionFailure{Category: CategoryUnknown, Message: err.Error(), Err: err}
}
