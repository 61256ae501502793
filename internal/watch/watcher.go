package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fsnotify/fsnotify"

	"nixmate/internal/cache"
	"nixmate/internal/dependency"
	"nixmate/internal/operation"
	"nixmate/pkg/logging"
)

// DefaultDebounce is how long the watcher waits for a burst of events to end.
const DefaultDebounce = 500 * time.Millisecond

// Invalidator drops cached results derived from state resources.
// *cache.Cache implements it.
type Invalidator interface {
	InvalidateResources(resources ...dependency.NodeID) []operation.Kind
}

// Watcher watches one profile directory.
type Watcher struct {
	dir        string
	target     Invalidator
	debounce   time.Duration
	newBackOff func() backoff.BackOff

	mu      sync.Mutex
	pending map[dependency.NodeID]struct{}
	timer   *time.Timer

	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the debounce interval.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithBackOff sets the policy used to re-arm a broken watch.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(w *Watcher) { w.newBackOff = fn }
}

// New creates a Watcher for dir. It does nothing until Start.
func New(dir string, target Invalidator, opts ...Option) *Watcher {
	w := &Watcher{
		dir:      filepath.Clean(dir),
		target:   target,
		debounce: DefaultDebounce,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxInterval = time.Minute
			b.MaxElapsedTime = 0
			return b
		},
		pending: make(map[dependency.NodeID]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start arms the watch and processes events until ctx is cancelled or Stop
// is called. It fails only when the first watch cannot be established.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := w.arm()
	if err != nil {
		return err
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go w.loop(ctx, fw)

	logging.Info("Watcher", "Watching %s for profile changes", w.dir)
	return nil
}

// Stop ends the watch and waits for the event loop to exit.
func (w *Watcher) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
}

func (w *Watcher) arm() (*fsnotify.Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(w.dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	return fw, nil
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher) {
	defer close(w.done)
	defer w.dropPending()

	for {
		err := w.consume(ctx, fw)
		fw.Close()
		if err == nil {
			return
		}
		logging.Warn("Watcher", "Watch on %s broke: %v", w.dir, err)

		if fw, err = w.rearm(ctx); err != nil {
			return
		}
		logging.Info("Watcher", "Re-armed watch on %s", w.dir)
		w.invalidate(cache.ResourceSystemProfile, cache.ResourceUserProfile)
	}
}

// consume returns nil when ctx ends and an error when the watch is unusable.
func (w *Watcher) consume(ctx context.Context, fw *fsnotify.Watcher) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return errors.New("event stream closed")
			}
			if event.Name == w.dir && event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				return errors.New("profile directory removed")
			}
			w.handle(event)

		case err, ok := <-fw.Errors:
			if !ok {
				return errors.New("error stream closed")
			}
			return err
		}
	}
}

func (w *Watcher) rearm(ctx context.Context) (*fsnotify.Watcher, error) {
	var fw *fsnotify.Watcher
	err := backoff.RetryNotify(func() error {
		var err error
		fw, err = w.arm()
		return err
	}, backoff.WithContext(w.newBackOff(), ctx), func(err error, next time.Duration) {
		logging.Debug("Watcher", "Re-arming failed, retrying in %s: %v", next, err)
	})
	return fw, err
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}
	resource, ok := resourceFor(event.Name)
	if !ok {
		return
	}
	logging.Debug("Watcher", "%s %s", event.Op, event.Name)
	w.schedule(resource)
}

// resourceFor maps a profile directory entry to the state it belongs to.
func resourceFor(name string) (dependency.NodeID, bool) {
	base := filepath.Base(name)
	switch {
	case base == "system" || strings.HasPrefix(base, "system-"):
		return cache.ResourceSystemProfile, true
	case base == "default" || strings.HasPrefix(base, "default-"):
		return cache.ResourceUserProfile, true
	}
	return "", false
}

func (w *Watcher) schedule(resource dependency.NodeID) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[resource] = struct{}{}
	if w.timer == nil {
		w.timer = time.AfterFunc(w.debounce, w.flush)
		return
	}
	w.timer.Reset(w.debounce)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	resources := make([]dependency.NodeID, 0, len(w.pending))
	for r := range w.pending {
		resources = append(resources, r)
	}
	w.pending = make(map[dependency.NodeID]struct{})
	w.timer = nil
	w.mu.Unlock()

	if len(resources) > 0 {
		w.invalidate(resources...)
	}
}

func (w *Watcher) dropPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.pending = make(map[dependency.NodeID]struct{})
}

func (w *Watcher) invalidate(resources ...dependency.NodeID) {
	sort.Slice(resources, func(i, j int) bool { return resources[i] < resources[j] })
	kinds := w.target.InvalidateResources(resources...)
	logging.Info("Watcher", "Profile changed outside nixmate, invalidated %v", kinds)
}
