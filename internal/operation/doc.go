// Package operation defines the request and response types that flow through
// nixmate's execution layer.
//
// An Operation is an immutable request for one system-management action
// (update, rollback, list generations, ...). Its options are validated against
// a per-kind schema: unknown keys are rejected and values are canonicalised so
// that equivalent requests produce the same cache key.
//
// A Result is the outcome of executing an Operation. Failed results always
// carry a non-empty message describing what was attempted, why it failed and,
// when known, what to do next.
//
// The error taxonomy shared by every layer also lives here: ValidationError for
// requests rejected before execution and ExecutionFailure, tagged with a
// recovery Category, for failures at the executor boundary.
package operation
