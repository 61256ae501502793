// Package orchestrator composes validation, caching, execution, progress,
// recovery and metrics into the single entry point frontends call.
//
// Every operation walks a small state machine:
//
//	VALIDATING -> CACHE_CHECK -> EXECUTING -> (RECOVERING) -> CACHING -> DONE
//
// with FAILED reachable from any state. A cache hit or a joined in-flight
// computation goes from CACHE_CHECK straight to DONE. The orchestrator is the
// only place a failure is finally reported as fatal.
//
// State transitions are published to subscribers (see SubscribeToStateChanges)
// and recorded as events on one OpenTelemetry span per operation. Finished
// operations are handed to Observers, which is how the history journal sees
// them.
package orchestrator
