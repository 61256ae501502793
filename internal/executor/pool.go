package executor

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Pool bounds how many blocking calls run at once. Callers beyond the bound
// wait for a slot instead of spawning more work.
type Pool struct {
	sem    *semaphore.Weighted
	size   int
	active atomic.Int64
	wg     sync.WaitGroup
}

// NewPool creates a pool of size slots; size <= 0 means GOMAXPROCS.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: size}
}

// Size returns the number of slots.
func (p *Pool) Size() int { return p.size }

// Active returns the number of occupied slots.
func (p *Pool) Active() int { return int(p.active.Load()) }

// Go waits for a slot and runs fn on a new goroutine holding it. If ctx ends
// while waiting, fn never runs and ctx.Err() is returned. Once started fn
// runs to completion regardless of ctx.
func (p *Pool) Go(ctx context.Context, fn func()) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	p.active.Add(1)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		defer p.active.Add(-1)
		fn()
	}()
	return nil
}

// Do waits for a slot and runs fn on the calling goroutine.
func (p *Pool) Do(ctx context.Context, fn func()) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	p.active.Add(1)
	defer p.sem.Release(1)
	defer p.active.Add(-1)
	fn()
	return nil
}

// Wait blocks until every goroutine started by Go has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}
