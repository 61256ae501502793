package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"nixmate/internal/cache"
	"nixmate/internal/executor"
	"nixmate/internal/metrics"
	"nixmate/internal/operation"
	"nixmate/internal/progress"
	"nixmate/internal/recovery"
	"nixmate/pkg/logging"
)

const tracerName = "nixmate/orchestrator"

// Validator rejects unsafe or malformed operations.
type Validator interface {
	Validate(op operation.Operation) error
}

// Observer is told about every finished operation.
type Observer interface {
	Observe(ctx context.Context, op operation.Operation, res operation.Result, startedAt time.Time)
}

// Config holds the collaborators of an Orchestrator. Executor and Validator
// are required. A nil Cache disables caching and a nil Recovery disables
// automatic remediation; together they are the "enhanced" mode.
type Config struct {
	Executor  executor.Executor
	Validator Validator
	Cache     *cache.Cache
	Recovery  *recovery.Engine
	// Metrics defaults to a collector on a private registry.
	Metrics   *metrics.Collector
	Tracer    trace.Tracer
	Observers []Observer
	// ProgressOptions apply to the tracker of every execution.
	ProgressOptions []progress.Option
}

// Orchestrator runs operations through the pipeline.
type Orchestrator struct {
	executor  executor.Executor
	validator Validator
	cache     *cache.Cache
	recovery  *recovery.Engine
	metrics   *metrics.Collector
	tracer    trace.Tracer
	observers []Observer
	progress  []progress.Option

	stateChangeSubscribers []chan<- StateChangedEvent
	mu                     sync.RWMutex
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer(tracerName)
	}
	return &Orchestrator{
		executor:  cfg.Executor,
		validator: cfg.Validator,
		cache:     cfg.Cache,
		recovery:  cfg.Recovery,
		metrics:   cfg.Metrics,
		tracer:    cfg.Tracer,
		observers: cfg.Observers,
		progress:  cfg.ProgressOptions,
	}
}

// Execute runs op and returns its result. cb, if not nil, receives progress
// events of the execution; it never receives events for cache hits or joined
// computations. Execute never returns a partial success: either Success is
// true or the result explains what failed and what to do next.
func (o *Orchestrator) Execute(ctx context.Context, op operation.Operation, cb progress.Callback) operation.Result {
	start := time.Now()
	id := uuid.NewString()

	ctx, span := o.tracer.Start(ctx, "orchestrator.Execute", trace.WithAttributes(
		attribute.String("nixmate.operation_id", id),
		attribute.String("nixmate.kind", string(op.Kind())),
	))
	defer span.End()

	r := &run{o: o, id: id, kind: op.Kind(), span: span}
	r.transition(StateValidating)

	canonical, err := op.Canonical()
	if err == nil {
		err = o.validator.Validate(canonical)
	}
	if err != nil {
		logging.Info("Orchestrator", "Rejected %s: %v", op.Kind(), err)
		return o.finish(ctx, r, op, operation.Rejected(op, err), start)
	}
	op = canonical

	r.transition(StateCacheCheck)
	compute := func(cctx context.Context) operation.Result {
		return o.executeTracked(cctx, r, op, cb)
	}

	var res operation.Result
	if o.cache != nil {
		res = o.cache.GetOrCompute(ctx, op, compute)
	} else {
		res = compute(ctx)
	}

	if res.Success && o.cache != nil && op.Kind().IsMutation() {
		r.transition(StateCaching)
		if kinds := o.cache.InvalidateAfter(op.Kind()); len(kinds) > 0 {
			logging.Debug("Orchestrator", "%s invalidated cached %v", op.Kind(), kinds)
		}
	}
	return o.finish(ctx, r, op, res, start)
}

// executeTracked is the EXECUTING (and RECOVERING) part of the pipeline.
func (o *Orchestrator) executeTracked(ctx context.Context, r *run, op operation.Operation, cb progress.Callback) operation.Result {
	r.transition(StateExecuting)
	name := o.executor.Name()
	tracker := progress.NewTracker(r.id, cb, o.progress...)

	return tracker.Track(func(reporter progress.Reporter) operation.Result {
		o.metrics.RecordExecution(op.Kind(), name)
		res, err := o.executor.Execute(ctx, op, reporter)
		if err == nil {
			o.enterCaching(r, op)
			return res
		}

		failure := operation.AsFailure(err)
		if o.recovery == nil {
			classified := *failure
			classified.Category = recovery.Classify(failure)
			res = operation.Failed(op, &classified)
			res.Executor = name
			return res
		}

		r.transition(StateRecovering)
		res = o.recovery.MaybeRecover(ctx, op, failure, func(rctx context.Context) (operation.Result, error) {
			o.metrics.RecordExecution(op.Kind(), name)
			return o.executor.Execute(rctx, op, reporter)
		})
		res.Executor = name
		if res.Success {
			o.enterCaching(r, op)
		}
		return res
	})
}

func (o *Orchestrator) enterCaching(r *run, op operation.Operation) {
	if o.cache != nil && op.IsIdempotentRead() {
		r.transition(StateCaching)
	}
}

func (o *Orchestrator) finish(ctx context.Context, r *run, op operation.Operation, res operation.Result, start time.Time) operation.Result {
	res.OperationID = r.id
	res.Kind = op.Kind()
	if !res.CacheHit {
		res.SetDuration(time.Since(start))
	}

	r.span.SetAttributes(
		attribute.Bool("nixmate.success", res.Success),
		attribute.Bool("nixmate.cache_hit", res.CacheHit),
		attribute.Bool("nixmate.deduplicated", res.Deduplicated),
	)
	if res.Success {
		r.transition(StateDone)
		logging.Info("Orchestrator", "%s %s succeeded in %.0fms (cache hit: %t)", op.Kind(), r.id, res.DurationMS, res.CacheHit)
	} else {
		r.span.SetStatus(codes.Error, res.Message)
		if res.FailureCategory != "" {
			r.span.SetAttributes(attribute.String("nixmate.failure_category", string(res.FailureCategory)))
		}
		r.transition(StateFailed)
		logging.Warn("Orchestrator", "%s %s failed: %s", op.Kind(), r.id, res.Message)
	}

	o.metrics.Record(op.Kind(), res, res.CacheHit, res.DurationMS)
	for _, obs := range o.observers {
		obs.Observe(ctx, op, res.Clone(), start)
	}
	return res
}

// Metrics returns the collector observing this orchestrator.
func (o *Orchestrator) Metrics() *metrics.Collector {
	return o.metrics
}

// Cache returns the operation cache, or nil when caching is disabled.
func (o *Orchestrator) Cache() *cache.Cache {
	return o.cache
}

// ExecutorName returns the name of the selected executor.
func (o *Orchestrator) ExecutorName() string {
	return o.executor.Name()
}

// Enhanced reports whether caching and recovery are active.
func (o *Orchestrator) Enhanced() bool {
	return o.cache != nil || o.recovery != nil
}

// SubscribeToStateChanges returns a channel for state change events. Events
// are dropped for subscribers that do not keep up.
func (o *Orchestrator) SubscribeToStateChanges() <-chan StateChangedEvent {
	eventChan := make(chan StateChangedEvent, 100)
	o.mu.Lock()
	o.stateChangeSubscribers = append(o.stateChangeSubscribers, eventChan)
	o.mu.Unlock()
	return eventChan
}

func (o *Orchestrator) publishStateChange(event StateChangedEvent) {
	o.mu.RLock()
	subscribers := make([]chan<- StateChangedEvent, len(o.stateChangeSubscribers))
	copy(subscribers, o.stateChangeSubscribers)
	o.mu.RUnlock()

	for _, subscriber := range subscribers {
		select {
		case subscriber <- event:
		default:
			logging.Debug("Orchestrator", "Subscriber blocked, skipping event for operation %s", event.OperationID)
		}
	}
}
