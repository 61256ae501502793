package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nixmate/internal/operation"
)

const (
	namespace = "nixmate"
	// durationWindow is how many recent durations the per-kind average spans.
	durationWindow = 64
)

// Snapshot is a point-in-time copy of the collector state.
type Snapshot struct {
	Total        uint64 `json:"total"`
	Successes    uint64 `json:"successes"`
	Failures     uint64 `json:"failures"`
	CacheHits    uint64 `json:"cache_hits"`
	CacheMisses  uint64 `json:"cache_misses"`
	Deduplicated uint64 `json:"deduplicated"`
	// Executions counts underlying executor invocations, including
	// recovery retries and remediation.
	Executions         uint64                        `json:"executions"`
	Recovered          uint64                        `json:"recovered"`
	FailuresByCategory map[operation.Category]uint64 `json:"failures_by_category"`
	AvgDurationMS      map[operation.Kind]float64    `json:"avg_duration_ms"`
	CountByKind        map[operation.Kind]uint64     `json:"count_by_kind"`
}

// SuccessRate returns successes/total, or 0 with no operations.
func (s Snapshot) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Total)
}

// CacheHitRate returns hits/(hits+misses), or 0 with no lookups.
func (s Snapshot) CacheHitRate() float64 {
	lookups := s.CacheHits + s.CacheMisses
	if lookups == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(lookups)
}

type durations struct {
	samples []float64
	next    int
	count   uint64
}

func (d *durations) add(ms float64) {
	if len(d.samples) < durationWindow {
		d.samples = append(d.samples, ms)
	} else {
		d.samples[d.next] = ms
		d.next = (d.next + 1) % durationWindow
	}
	d.count++
}

func (d *durations) mean() float64 {
	if len(d.samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range d.samples {
		sum += v
	}
	return sum / float64(len(d.samples))
}

// Collector records operation outcomes. It is safe for concurrent use.
type Collector struct {
	mu           sync.Mutex
	total        uint64
	successes    uint64
	failures     uint64
	cacheHits    uint64
	cacheMisses  uint64
	deduplicated uint64
	executions   uint64
	recovered    uint64
	byCategory   map[operation.Category]uint64
	byKind       map[operation.Kind]*durations

	registry       *prometheus.Registry
	operations     *prometheus.CounterVec
	failuresVec    *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	executionsVec  *prometheus.CounterVec
	recoveries     *prometheus.CounterVec
	durationsHisto *prometheus.HistogramVec
}

// Option configures a Collector.
type Option func(*Collector)

// WithRegistry registers the Prometheus collectors on reg instead of a
// private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(c *Collector) { c.registry = reg }
}

// New creates a Collector.
func New(opts ...Option) *Collector {
	c := &Collector{
		byCategory: make(map[operation.Category]uint64),
		byKind:     make(map[operation.Kind]*durations),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.registry == nil {
		c.registry = prometheus.NewRegistry()
	}

	factory := promauto.With(c.registry)
	c.operations = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operations_total",
		Help:      "Orchestrated operations by kind and outcome.",
	}, []string{"kind", "outcome"})
	c.failuresVec = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operation_failures_total",
		Help:      "Failed operations by kind and failure category.",
	}, []string{"kind", "category"})
	c.cacheLookups = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Cache lookups for idempotent reads by result (hit, miss, joined).",
	}, []string{"kind", "result"})
	c.executionsVec = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "executor",
		Name:      "invocations_total",
		Help:      "Underlying executor invocations by kind and executor.",
	}, []string{"kind", "executor"})
	c.recoveries = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "recovery",
		Name:      "recovered_total",
		Help:      "Operations that succeeded after automatic recovery, by category.",
	}, []string{"category"})
	c.durationsHisto = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "operation_duration_seconds",
		Help:      "Wall time of orchestrated operations.",
		Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30, 120, 600, 1800, 7200},
	}, []string{"kind"})
	return c
}

// Record observes one orchestrated operation.
func (c *Collector) Record(kind operation.Kind, res operation.Result, cacheHit bool, durationMS float64) {
	outcome := "success"
	if !res.Success {
		outcome = "failure"
	}
	rejected := res.FailureCategory == operation.CategoryValidation

	c.mu.Lock()
	c.total++
	if res.Success {
		c.successes++
	} else {
		c.failures++
		c.byCategory[res.FailureCategory]++
	}
	if res.RecoveredVia != "" {
		c.recovered++
	}
	if kind.IsIdempotentRead() && !rejected {
		switch {
		case cacheHit:
			c.cacheHits++
		case res.Deduplicated:
			c.deduplicated++
		default:
			c.cacheMisses++
		}
	}
	d, ok := c.byKind[kind]
	if !ok {
		d = &durations{}
		c.byKind[kind] = d
	}
	d.add(durationMS)
	c.mu.Unlock()

	c.operations.WithLabelValues(string(kind), outcome).Inc()
	if !res.Success {
		c.failuresVec.WithLabelValues(string(kind), string(res.FailureCategory)).Inc()
	}
	if res.RecoveredVia != "" {
		c.recoveries.WithLabelValues(string(res.RecoveredVia)).Inc()
	}
	if kind.IsIdempotentRead() && !rejected {
		result := "miss"
		if cacheHit {
			result = "hit"
		} else if res.Deduplicated {
			result = "joined"
		}
		c.cacheLookups.WithLabelValues(string(kind), result).Inc()
	}
	c.durationsHisto.WithLabelValues(string(kind)).Observe(durationMS / 1000)
}

// RecordExecution counts one underlying executor invocation.
func (c *Collector) RecordExecution(kind operation.Kind, executor string) {
	c.mu.Lock()
	c.executions++
	c.mu.Unlock()
	c.executionsVec.WithLabelValues(string(kind), executor).Inc()
}

// RemediationKind labels garbage collection runs in the invocation counter.
const RemediationKind = "collect_garbage"

// RecordRemediation counts one garbage collection run started by recovery.
func (c *Collector) RecordRemediation(executor string) {
	c.mu.Lock()
	c.executions++
	c.mu.Unlock()
	c.executionsVec.WithLabelValues(RemediationKind, executor).Inc()
}

// Snapshot returns a consistent copy of the current state.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		Total:              c.total,
		Successes:          c.successes,
		Failures:           c.failures,
		CacheHits:          c.cacheHits,
		CacheMisses:        c.cacheMisses,
		Deduplicated:       c.deduplicated,
		Executions:         c.executions,
		Recovered:          c.recovered,
		FailuresByCategory: make(map[operation.Category]uint64, len(c.byCategory)),
		AvgDurationMS:      make(map[operation.Kind]float64, len(c.byKind)),
		CountByKind:        make(map[operation.Kind]uint64, len(c.byKind)),
	}
	for cat, n := range c.byCategory {
		s.FailuresByCategory[cat] = n
	}
	for kind, d := range c.byKind {
		s.AvgDurationMS[kind] = d.mean()
		s.CountByKind[kind] = d.count
	}
	return s
}

// Registry returns the Prometheus registry the collector writes to.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
