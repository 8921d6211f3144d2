package loop

import (
	"context"
	"errors"
	"sync"
)

// ErrStopped is returned by Call once the loop has exited.
var ErrStopped = errors.New("event loop stopped")

// Executor runs callbacks on the event loop (Post) and blocking work off it (Go).
// Everything posted runs on a single goroutine, one callback at a time, in order.
type Executor interface {
	Post(fn func())
	Go(fn func())
}

// Loop is the single goroutine that owns all engine state.
type Loop struct {
	tasks    chan func()
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func New(buffer int) *Loop {
	if buffer <= 0 {
		buffer = 256
	}
	return &Loop{
		tasks:    make(chan func(), buffer),
		stopChan: make(chan struct{}),
	}
}

// Run processes posted callbacks until ctx is done or Stop is called.
func (l *Loop) Run(ctx context.Context) {
	defer l.stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopChan:
			return
		case fn := <-l.tasks:
			fn()
		}
	}
}

// Post queues fn for the loop. Posting after the loop stopped drops fn.
func (l *Loop) Post(fn func()) {
	select {
	case l.tasks <- fn:
	case <-l.stopChan:
	}
}

// Go runs blocking work on its own goroutine.
func (l *Loop) Go(fn func()) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		fn()
	}()
}

// Call runs fn on the loop and waits for it to finish.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case l.tasks <- func() { fn(); close(done) }:
	case <-l.stopChan:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-l.stopChan:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop ends Run. Safe to call more than once.
func (l *Loop) Stop() {
	l.stop()
}

// Wait blocks until background work started with Go has returned.
func (l *Loop) Wait() {
	l.wg.Wait()
}

// Done is closed once the loop has stopped.
func (l *Loop) Done() <-chan struct{} {
	return l.stopChan
}

func (l *Loop) stop() {
	l.stopOnce.Do(func() { close(l.stopChan) })
}
