// Package gatewaytest provides test doubles for the gateway package: a
// hand-driven loop and self-signed key pairs.
package gatewaytest

import (
	"sync"
	"time"

	"github.com/aelexs/websocket-gateway/internal/reactor"
)

// ManualLoop queues posted tasks until the test runs them. Timers never fire
// on their own.
type ManualLoop struct {
	mu      sync.Mutex
	tasks   []func()
	posted  int
	timers  []*ManualTimer
	stopped bool
}

// NewManualLoop creates an empty ManualLoop.
func NewManualLoop() *ManualLoop {
	return &ManualLoop{}
}

// Post queues fn. It is safe from any goroutine.
func (l *ManualLoop) Post(fn func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return false
	}
	l.tasks = append(l.tasks, fn)
	l.posted++
	return true
}

// AfterFunc records a timer the test fires with ManualTimer.Fire.
func (l *ManualLoop) AfterFunc(d time.Duration, fn func()) reactor.Timer {
	t := &ManualTimer{Duration: d, fn: fn}
	l.mu.Lock()
	l.timers = append(l.timers, t)
	l.mu.Unlock()
	return t
}

// Posted is the number of tasks ever accepted by Post.
func (l *ManualLoop) Posted() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.posted
}

// Pending is the number of queued tasks.
func (l *ManualLoop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks)
}

// RunPending runs queued tasks, including ones they post, until the queue is
// empty. It returns how many ran.
func (l *ManualLoop) RunPending() int {
	n := 0
	for {
		l.mu.Lock()
		if len(l.tasks) == 0 {
			l.mu.Unlock()
			return n
		}
		fn := l.tasks[0]
		l.tasks = l.tasks[1:]
		l.mu.Unlock()
		fn()
		n++
	}
}

// Timers returns every timer created so far, stopped ones included.
func (l *ManualLoop) Timers() []*ManualTimer {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*ManualTimer(nil), l.timers...)
}

// ActiveTimers returns the timers that are neither stopped nor fired.
func (l *ManualLoop) ActiveTimers() []*ManualTimer {
	var out []*ManualTimer
	for _, t := range l.Timers() {
		if t.Active() {
			out = append(out, t)
		}
	}
	return out
}

// Stop makes every later Post fail.
func (l *ManualLoop) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.tasks = nil
	l.mu.Unlock()
}

// ManualTimer is a timer created by ManualLoop.
type ManualTimer struct {
	Duration time.Duration

	mu      sync.Mutex
	fn      func()
	stopped bool
	fired   bool
}

// Stop implements reactor.Timer.
func (t *ManualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Active reports whether the timer can still fire.
func (t *ManualTimer) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.stopped && !t.fired
}

// Fire runs the callback on the calling goroutine unless the timer was
// stopped. It reports whether the callback ran.
func (t *ManualTimer) Fire() bool {
	t.mu.Lock()
	if t.stopped || t.fired {
		t.mu.Unlock()
		return false
	}
	t.fired = true
	fn := t.fn
	t.mu.Unlock()
	fn()
	return true
}
