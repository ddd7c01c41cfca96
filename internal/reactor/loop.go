// Package reactor provides the single-threaded event loop a host process owns.
// The gateway binds to a Loop instead of running its own: every session
// mutation, handler callback and timer callback executes on the goroutine that
// runs Loop.Run.
package reactor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// ErrStopped is returned by Do when the loop is no longer running tasks.
var ErrStopped = errors.New("reactor: loop stopped")

// Timer is a pending loop callback. Stop reports whether it prevented the
// callback from running.
type Timer interface {
	Stop() bool
}

// Option configures a Loop.
type Option func(*Loop)

// WithClock sets the clock driving AfterFunc. Tests pass clock.NewMock().
func WithClock(c clock.Clock) Option {
	return func(l *Loop) { l.clock = c }
}

// Loop is a FIFO task queue drained by a single goroutine.
type Loop struct {
	clock clock.Clock

	mu      sync.Mutex
	queue   []func()
	stopped bool
	wake    chan struct{}
	done    chan struct{}
}

// New creates a Loop. It does nothing until Run is called.
func New(opts ...Option) *Loop {
	l := &Loop{
		clock: clock.New(),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Post queues fn to run on the loop goroutine. It is safe to call from any
// goroutine, including from inside a running task. It returns false if the
// loop has stopped and fn will never run.
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

// AfterFunc runs fn on the loop goroutine once d has elapsed on the loop's
// clock. A stopped timer never runs fn, even if it already fired and fn is
// sitting in the queue.
func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	t := &loopTimer{}
	t.inner = l.clock.AfterFunc(d, func() {
		l.Post(func() {
			if t.fire() {
				fn()
			}
		})
	})
	return t
}

// Do runs fn on the loop and waits for it to return. Host goroutines use it
// to enter the loop, e.g. to adopt an accepted socket.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	if !l.Post(func() {
		defer close(ran)
		fn()
	}) {
		return ErrStopped
	}
	select {
	case <-ran:
		return nil
	case <-l.done:
		// The task may have been dropped with the rest of the queue.
		select {
		case <-ran:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains the queue until ctx is cancelled. Tasks still queued when ctx is
// cancelled are discarded. Run must be called at most once.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	for {
		l.drain()

		select {
		case <-ctx.Done():
			l.mu.Lock()
			l.stopped = true
			l.queue = nil
			l.mu.Unlock()
			return nil
		case <-l.wake:
		}
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.done }

func (l *Loop) drain() {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		for _, fn := range batch {
			fn()
		}
	}
}

type loopTimer struct {
	inner *clock.Timer

	mu      sync.Mutex
	stopped bool
	fired   bool
}

func (t *loopTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	t.inner.Stop()
	return true
}

func (t *loopTimer) fire() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return false
	}
	t.fired = true
	return true
}
