package operation

import (
	"errors"
	"fmt"
	"time"
)

// Generation is a read-only projection of one system profile generation.
type Generation struct {
	Number      int       `json:"number"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description"`
	IsCurrent   bool      `json:"is_current"`
}

// Package is a search hit.
type Package struct {
	Attr        string `json:"attr"`
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
}

// Payload is the kind-specific part of a Result.
type Payload struct {
	Generations []Generation `json:"generations,omitempty"`
	Packages    []Package    `json:"packages,omitempty"`
	// StorePath is the realised system closure for update, build and rollback.
	StorePath string `json:"store_path,omitempty"`
	// Changes lists store paths a dry run would build or fetch.
	Changes []string `json:"changes,omitempty"`
}

// Clone returns a deep copy.
func (p *Payload) Clone() *Payload {
	if p == nil {
		return nil
	}
	c := &Payload{StorePath: p.StorePath}
	if p.Generations != nil {
		c.Generations = append([]Generation(nil), p.Generations...)
	}
	if p.Packages != nil {
		c.Packages = append([]Package(nil), p.Packages...)
	}
	if p.Changes != nil {
		c.Changes = append([]string(nil), p.Changes...)
	}
	return c
}

// Result is the outcome of executing an Operation.
type Result struct {
	OperationID string   `json:"operation_id,omitempty"`
	Kind        Kind     `json:"kind"`
	Success     bool     `json:"success"`
	Message     string   `json:"message"`
	Suggestion  string   `json:"suggestion,omitempty"`
	Data        *Payload `json:"data,omitempty"`
	// DurationMS is the wall time of this call. For cache hits it is the
	// lookup cost, not the cost of the original execution.
	DurationMS   float64  `json:"duration_ms"`
	CacheHit     bool     `json:"cache_hit"`
	Deduplicated bool     `json:"deduplicated,omitempty"`
	RecoveredVia Category `json:"recovered_via,omitempty"`
	// FailureCategory is set on failed results.
	FailureCategory Category `json:"failure_category,omitempty"`
	Executor        string   `json:"executor,omitempty"`
}

// Clone returns a deep copy so callers never share cached payloads.
func (r Result) Clone() Result {
	r.Data = r.Data.Clone()
	return r
}

// SetDuration records d as milliseconds.
func (r *Result) SetDuration(d time.Duration) {
	r.DurationMS = float64(d) / float64(time.Millisecond)
}

// Succeeded builds a successful result.
func Succeeded(op Operation, message string, data *Payload) Result {
	return Result{Kind: op.Kind(), Success: true, Message: message, Data: data}
}

// Failed builds a failed result whose message states what was attempted and
// why it failed. The suggestion comes from the failure category.
func Failed(op Operation, f *ExecutionFailure) Result {
	reason := "unknown error"
	category := CategoryUnknown
	if f != nil {
		if msg := f.Error(); msg != "" {
			reason = msg
		}
		category = f.Category
	}
	return Result{
		Kind:            op.Kind(),
		Success:         false,
		Message:         fmt.Sprintf("could not %s: %s", op.Describe(), reason),
		Suggestion:      category.Suggestion(),
		FailureCategory: category,
	}
}

// Rejected builds a failed result for a request that never reached an executor.
// Privilege rejections are tagged CategoryPermission, all others
// CategoryValidation.
func Rejected(op Operation, err error) Result {
	res := Result{
		Kind:            op.Kind(),
		Success:         false,
		Message:         fmt.Sprintf("refused to %s: %v", op.Describe(), err),
		FailureCategory: CategoryValidation,
	}
	if errors.Is(err, ErrInsufficientPrivilege) {
		res.FailureCategory = CategoryPermission
		res.Suggestion = CategoryPermission.Suggestion()
	} else {
		res.Suggestion = "correct the request and try again"
	}
	return res
}
