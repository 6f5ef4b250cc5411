// Package worker runs blocking work (storage I/O) off the coordinating loop
// and hands results back to it.
package worker

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// Poster schedules fn on the coordinating loop. It reports false when the
// loop no longer accepts work.
type Poster interface {
	Post(fn func()) bool
}

// PosterFunc adapts a function to Poster.
type PosterFunc func(fn func()) bool

func (f PosterFunc) Post(fn func()) bool { return f(fn) }

// Pool runs at most size tasks at once. Submit never blocks the caller.
type Pool struct {
	sem     *semaphore.Weighted
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a pool of size concurrent workers. Each task gets a context
// that expires after timeout (no limit when timeout is zero).
func NewPool(size int64, timeout time.Duration) *Pool {
	if size <= 0 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		sem:     semaphore.NewWeighted(size),
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Submit runs fn on a worker and returns a future for its result. When the
// pool is closed before fn gets a slot, the future resolves to T's zero value.
func Submit[T any](p *Pool, fn func(ctx context.Context) T) *Future[T] {
	f := newFuture[T]()
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		var zero T
		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			log.Warnf("worker pool closed, task dropped: %s", err)
			f.complete(zero)
			return
		}
		defer p.sem.Release(1)

		ctx := p.ctx
		if p.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, p.timeout)
			defer cancel()
		}
		f.complete(run(ctx, fn))
	}()
	return f
}

// Go runs fn on a worker with no result.
func (p *Pool) Go(fn func(ctx context.Context)) *Future[struct{}] {
	return Submit(p, func(ctx context.Context) struct{} {
		fn(ctx)
		return struct{}{}
	})
}

func run[T any](ctx context.Context, fn func(ctx context.Context) T) (out T) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("worker task panicked: %v", r)
		}
	}()
	return fn(ctx)
}

// Wait blocks until every submitted task, including tasks submitted by
// callbacks of earlier tasks, has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Close waits up to grace for in-flight tasks, then cancels the rest.
func (p *Pool) Close(grace time.Duration) {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		log.Warn("worker pool did not drain in time, cancelling outstanding tasks")
	}
	p.cancel()
	<-done
}
