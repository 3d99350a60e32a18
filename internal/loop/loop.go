// Package loop provides a single-threaded cooperative event loop with
// one-shot and periodic timers. Every callback runs on the loop goroutine,
// so state touched only from callbacks needs no locking.
package loop

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrStopped is returned when work is submitted to a loop that has exited.
var ErrStopped = errors.New("event loop stopped")

// Timer is a cancellable pending callback.
type Timer interface {
	// Stop prevents the callback from running if it has not been
	// dispatched yet. It reports whether the timer was still pending.
	Stop() bool
}

// Scheduler arms one-shot timers whose callbacks run on the loop.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Loop runs posted functions one at a time, in posting order.
type Loop struct {
	tasks chan func()
	done  chan struct{}
	once  sync.Once
}

// New returns a loop whose queue holds up to buffer pending tasks before
// Post blocks.
func New(buffer int) *Loop {
	if buffer <= 0 {
		buffer = 256
	}
	return &Loop{
		tasks: make(chan func(), buffer),
		done:  make(chan struct{}),
	}
}

// Run executes tasks until ctx is cancelled. It returns ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	defer l.once.Do(func() { close(l.done) })
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-l.tasks:
			f()
		}
	}
}

// Post queues f. It reports false if the loop has already stopped.
func (l *Loop) Post(f func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.tasks <- f:
		return true
	case <-l.done:
		return false
	}
}

// Call runs f on the loop and waits for its result. It must not be called
// from the loop goroutine.
func (l *Loop) Call(ctx context.Context, f func() error) error {
	res := make(chan error, 1)
	if !l.Post(func() { res <- f() }) {
		return ErrStopped
	}
	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrStopped
	}
}

type loopTimer struct {
	mu      sync.Mutex
	stopped bool
	fired   bool
	t       *time.Timer
	ticker  *time.Ticker
	quit    chan struct{}
}

func (t *loopTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	if t.t != nil {
		t.t.Stop()
	}
	if t.ticker != nil {
		t.ticker.Stop()
		close(t.quit)
		return true
	}
	return !t.fired
}

// claim marks a one-shot timer as dispatched. It fails if Stop won.
func (t *loopTimer) claim() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.fired = true
	return true
}

func (t *loopTimer) active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.stopped
}

// AfterFunc runs f on the loop once d has elapsed. A Stop issued from
// the loop before f is dispatched always wins.
func (l *Loop) AfterFunc(d time.Duration, f func()) Timer {
	lt := &loopTimer{}
	lt.mu.Lock()
	lt.t = time.AfterFunc(d, func() {
		l.Post(func() {
			if lt.claim() {
				f()
			}
		})
	})
	lt.mu.Unlock()
	return lt
}

// Every runs f on the loop every d until the returned timer is stopped.
// Ticks are dropped while the previous one is still queued.
func (l *Loop) Every(d time.Duration, f func()) Timer {
	lt := &loopTimer{ticker: time.NewTicker(d), quit: make(chan struct{})}
	go func() {
		var queued sync.Mutex
		for {
			select {
			case <-lt.quit:
				return
			case <-l.done:
				return
			case <-lt.ticker.C:
				if !queued.TryLock() {
					continue
				}
				if !l.Post(func() {
					defer queued.Unlock()
					if lt.active() {
						f()
					}
				}) {
					return
				}
			}
		}
	}()
	return lt
}
