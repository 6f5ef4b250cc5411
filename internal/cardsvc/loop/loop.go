// Package loop provides the single coordinating goroutine of the card
// service. Anything that touches live session state runs here.
package loop

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Loop runs posted tasks one at a time on the goroutine that called Run.
// Post never blocks, so tasks running on the loop may post more work.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	stopped bool

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
}

// New creates a loop whose queue starts with room for buffer tasks.
func New(buffer int) *Loop {
	if buffer <= 0 {
		buffer = 1
	}
	return &Loop{
		queue: make([]func(), 0, buffer),
		wake:  make(chan struct{}, 1),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Post queues fn for execution on the loop. It returns false once the loop
// has stopped; a task accepted before that always runs.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Run executes queued tasks on the calling goroutine until ctx ends or Stop
// is called. Tasks still queued at that point are run before Run returns.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-l.wake:
			l.runQueued()
		case <-ctx.Done():
			l.Stop()
			l.drain()
			return
		case <-l.quit:
			l.drain()
			return
		}
	}
}

// Stop makes Post refuse new work and ends Run.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	l.stopped = true
	close(l.quit)
}

// Done is closed when Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// runQueued runs the tasks queued so far and reports whether there were any.
func (l *Loop) runQueued() bool {
	l.mu.Lock()
	batch := l.queue
	l.queue = nil
	l.mu.Unlock()

	for _, fn := range batch {
		l.exec(fn)
	}
	return len(batch) > 0
}

// drain runs after stopped is set, so the queue can only shrink.
func (l *Loop) drain() {
	for l.runQueued() {
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("loop task panicked: %v", r)
		}
	}()
	fn()
}
