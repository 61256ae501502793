package progress

import (
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"nixmate/internal/operation"
	"nixmate/pkg/logging"
)

const (
	// eventBuffer bounds queued, undelivered events per tracker.
	eventBuffer = 64
	// rateWindow is how many samples the ETA moving average spans.
	rateWindow = 5
	// drainTimeout bounds how long Close waits for the callback to catch up.
	drainTimeout = 250 * time.Millisecond
	// DefaultReportInterval throttles native Report events.
	DefaultReportInterval = 100 * time.Millisecond
)

// Event is one progress notification.
type Event struct {
	OperationID string        `json:"operation_id"`
	Message     string        `json:"message"`
	Fraction    float64       `json:"fraction"`
	Elapsed     time.Duration `json:"elapsed"`
	// ETA is zero until enough samples exist to estimate a rate.
	ETA time.Duration `json:"eta"`
}

// Callback receives events. It runs on the tracker's delivery goroutine.
type Callback func(Event)

// Simple adapts a (message, fraction) function to a Callback.
func Simple(fn func(message string, fraction float64)) Callback {
	if fn == nil {
		return nil
	}
	return func(ev Event) { fn(ev.Message, ev.Fraction) }
}

// Reporter is what executors report progress through.
type Reporter interface {
	// Report forwards a native progress event. Events may be throttled.
	Report(message string, fraction float64)
	// Phase marks a phase boundary. Phase events are never throttled.
	Phase(p Phase)
}

// Discard is a Reporter that ignores everything.
var Discard Reporter = discard{}

type discard struct{}

func (discard) Report(string, float64) {}
func (discard) Phase(Phase)            {}

type sample struct {
	at       time.Time
	fraction float64
}

// Tracker implements Reporter for one operation.
type Tracker struct {
	operationID string
	now         func() time.Time
	limiter     *rate.Limiter

	mu       sync.Mutex
	start    time.Time
	last     float64
	samples  []sample
	closed   bool
	dropped  int
	events   chan Event
	done     chan struct{}
	callback Callback
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithReportInterval sets the minimum spacing between forwarded Report events.
// Zero disables throttling.
func WithReportInterval(d time.Duration) Option {
	return func(t *Tracker) {
		if d <= 0 {
			t.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		t.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// NewTracker starts a tracker. A nil callback still tracks fractions but
// delivers nothing.
func NewTracker(operationID string, cb Callback, opts ...Option) *Tracker {
	t := &Tracker{
		operationID: operationID,
		now:         time.Now,
		limiter:     rate.NewLimiter(rate.Every(DefaultReportInterval), 1),
		callback:    cb,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.start = t.now()

	if cb != nil {
		t.events = make(chan Event, eventBuffer)
		t.done = make(chan struct{})
		go t.deliver()
	}
	return t
}

// Report implements Reporter.
func (t *Tracker) Report(message string, fraction float64) {
	if fraction < 1 && !t.limiter.Allow() {
		return
	}
	t.emit(message, fraction)
}

// Phase implements Reporter.
func (t *Tracker) Phase(p Phase) {
	t.emit(p.String(), p.Fraction())
}

// Fraction returns the highest fraction reported so far.
func (t *Tracker) Fraction() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Dropped returns how many events were discarded because the callback fell
// behind.
func (t *Tracker) Dropped() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}

func (t *Tracker) emit(message string, fraction float64) {
	if math.IsNaN(fraction) {
		fraction = 0
	}
	fraction = math.Max(0, math.Min(1, fraction))

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	now := t.now()
	if fraction < t.last {
		fraction = t.last
	}
	t.last = fraction
	t.samples = append(t.samples, sample{at: now, fraction: fraction})
	if len(t.samples) > rateWindow {
		t.samples = t.samples[len(t.samples)-rateWindow:]
	}
	ev := Event{
		OperationID: t.operationID,
		Message:     message,
		Fraction:    fraction,
		Elapsed:     now.Sub(t.start),
		ETA:         t.estimate(),
	}

	if t.events != nil {
		select {
		case t.events <- ev:
		default:
			t.dropped++
		}
	}
	t.mu.Unlock()

	logging.Debug("Progress", "%s %.0f%% %s", t.operationID, fraction*100, message)
}

// estimate returns the remaining time at the average rate over the sample
// window. Callers hold t.mu.
func (t *Tracker) estimate() time.Duration {
	if len(t.samples) < 2 {
		return 0
	}
	first, last := t.samples[0], t.samples[len(t.samples)-1]
	if last.fraction >= 1 {
		return 0
	}
	span := last.at.Sub(first.at)
	progressed := last.fraction - first.fraction
	if span <= 0 || progressed <= 0 {
		return 0
	}
	perUnit := float64(span) / progressed
	return time.Duration(perUnit * (1 - last.fraction))
}

func (t *Tracker) deliver() {
	defer close(t.done)
	for ev := range t.events {
		t.invoke(ev)
	}
}

func (t *Tracker) invoke(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Progress", fmt.Errorf("%v", r), "Progress callback for %s panicked", t.operationID)
		}
	}()
	t.callback(ev)
}

// Close stops accepting events and waits briefly for queued events to be
// delivered. It is safe to call more than once.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	if t.events != nil {
		close(t.events)
	}
	t.mu.Unlock()

	if t.done == nil {
		return
	}
	select {
	case <-t.done:
	case <-time.After(drainTimeout):
		logging.Warn("Progress", "Progress callback for %s is still running after close", t.operationID)
	}
}

// Track runs call with t as its Reporter. It emits the starting phase first
// and the done phase after a successful call, then closes t.
func (t *Tracker) Track(call func(Reporter) operation.Result) operation.Result {
	defer t.Close()
	t.Phase(PhaseStarting)
	res := call(t)
	if res.Success {
		t.Phase(PhaseDone)
	} else {
		t.emit("failed", t.Fraction())
	}
	return res
}
