package worker

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Future is the pending result of a task submitted to a Pool.
type Future[T any] struct {
	mu        sync.Mutex
	done      chan struct{}
	value     T
	resolved  bool
	callbacks []func(T)
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a future that already holds v.
func Resolved[T any](v T) *Future[T] {
	f := newFuture[T]()
	f.complete(v)
	return f
}

func (f *Future[T]) complete(v T) {
	f.mu.Lock()
	f.value = v
	f.resolved = true
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, cb := range callbacks {
		cb(v)
	}
}

// Then schedules fn on p once the result is available. fn always runs on the
// poster, never on the worker that produced the value. The returned future
// resolves after fn has run, or right away when p refuses the work.
func (f *Future[T]) Then(p Poster, fn func(T)) *Future[struct{}] {
	next := newFuture[struct{}]()
	post := func(v T) {
		ok := p.Post(func() {
			defer next.complete(struct{}{})
			fn(v)
		})
		if !ok {
			log.Warn("coordinating loop stopped, result discarded")
			next.complete(struct{}{})
		}
	}

	f.mu.Lock()
	if !f.resolved {
		f.callbacks = append(f.callbacks, post)
		f.mu.Unlock()
		return next
	}
	v := f.value
	f.mu.Unlock()
	post(v)
	return next
}

// Await blocks until the result is ready or ctx ends.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
