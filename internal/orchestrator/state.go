package orchestrator

import (
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"nixmate/internal/operation"
	"nixmate/pkg/logging"
)

// State is a stage of one orchestrated operation.
type State string

const (
	StateValidating State = "VALIDATING"
	StateCacheCheck State = "CACHE_CHECK"
	StateExecuting  State = "EXECUTING"
	StateRecovering State = "RECOVERING"
	StateCaching    State = "CACHING"
	StateDone       State = "DONE"
	StateFailed     State = "FAILED"
)

// Terminal reports whether no transition can follow s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// StateChangedEvent is published on every transition.
type StateChangedEvent struct {
	OperationID string
	Kind        operation.Kind
	OldState    State
	NewState    State
	Timestamp   int64
}

// run tracks the state of one operation. The shared computation of a cached
// read may still be transitioning after its caller gave up, so access is
// locked and transitions after a terminal state are ignored.
type run struct {
	o    *Orchestrator
	id   string
	kind operation.Kind
	span trace.Span

	mu    sync.Mutex
	state State
}

func (r *run) transition(next State) {
	r.mu.Lock()
	prev := r.state
	if prev.Terminal() {
		r.mu.Unlock()
		return
	}
	r.state = next
	r.mu.Unlock()

	r.span.AddEvent(string(next), trace.WithAttributes(attribute.String("nixmate.previous_state", string(prev))))
	logging.Debug("Orchestrator", "Operation %s (%s): %s -> %s", r.id, r.kind, prev, next)
	r.o.publishStateChange(StateChangedEvent{
		OperationID: r.id,
		Kind:        r.kind,
		OldState:    prev,
		NewState:    next,
		Timestamp:   time.Now().Unix(),
	})
}

