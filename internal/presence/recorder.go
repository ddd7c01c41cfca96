package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel/metric"

	"github.com/aelexs/websocket-gateway/internal/domain"
	"github.com/aelexs/websocket-gateway/internal/gateway"
	"github.com/aelexs/websocket-gateway/internal/observability"
)

const defaultQueueSize = 1024

var droppedTotal metric.Int64Counter

func init() {
	m := observability.Meter("gateway/presence")
	droppedTotal, _ = m.Int64Counter("gateway_presence_dropped_total",
		metric.WithDescription("Presence updates dropped because the queue was full"))
}

type opKind int

const (
	opPut opKind = iota
	opDelete
)

type op struct {
	kind opKind
	info gateway.Info
}

// Recorder is a gateway.Observer that mirrors session lifecycle into a Store.
// Observer callbacks run on the gateway's loop and only enqueue; Redis I/O
// happens on the goroutine running Run.
//
// Puts may be dropped when the queue is full. Deletes never are: an overflowed
// close lands in closed and Run applies it before the next refresh.
type Recorder struct {
	store   *Store
	logger  *slog.Logger
	clock   clock.Clock
	refresh time.Duration
	ops     chan op
	wake    chan struct{}

	mu     sync.Mutex
	closed map[domain.SessionID]gateway.Info
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithLogger sets the logger for Redis failures.
func WithLogger(l *slog.Logger) RecorderOption { return func(r *Recorder) { r.logger = l } }

// WithClock sets the clock driving TTL refresh.
func WithClock(c clock.Clock) RecorderOption { return func(r *Recorder) { r.clock = c } }

// WithRefreshInterval sets how often live sessions have their TTL extended.
func WithRefreshInterval(d time.Duration) RecorderOption {
	return func(r *Recorder) { r.refresh = d }
}

// WithQueueSize bounds the number of pending updates.
func WithQueueSize(n int) RecorderOption { return func(r *Recorder) { r.ops = make(chan op, n) } }

// NewRecorder creates a Recorder writing to store.
func NewRecorder(store *Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store:   store,
		logger:  slog.Default(),
		clock:   clock.New(),
		refresh: domain.ConnectionTTL / 2,
		ops:     make(chan op, defaultQueueSize),
		wake:    make(chan struct{}, 1),
		closed:  make(map[domain.SessionID]gateway.Info),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ gateway.Observer = (*Recorder)(nil)

// SessionEstablished implements gateway.Observer.
func (r *Recorder) SessionEstablished(info gateway.Info) { r.enqueue(op{kind: opPut, info: info}) }

// SessionClosed implements gateway.Observer.
func (r *Recorder) SessionClosed(info gateway.Info) { r.enqueue(op{kind: opDelete, info: info}) }

// enqueue never blocks the loop. A full queue drops a put, leaving the TTL to
// clean up after it, and parks a delete in closed.
func (r *Recorder) enqueue(o op) {
	r.mu.Lock()
	defer r.mu.Unlock()

	select {
	case r.ops <- o:
		return
	default:
	}
	if o.kind == opDelete {
		r.closed[o.info.ID] = o.info
		select {
		case r.wake <- struct{}{}:
		default:
		}
		return
	}
	droppedTotal.Add(context.Background(), 1)
	r.logger.Warn("presence queue full, dropping update",
		slog.String("session_id", o.info.ID.String()),
	)
}

// Run applies queued updates and refreshes TTLs until ctx is cancelled, then
// applies whatever is still queued.
func (r *Recorder) Run(ctx context.Context) error {
	live := make(map[domain.SessionID]struct{})
	ticker := r.clock.Ticker(r.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.drain(live)
			r.reap(live)
			return nil
		case o := <-r.ops:
			r.apply(live, o)
		case <-r.wake:
			r.reap(live)
		case <-ticker.C:
			r.reap(live)
			r.touchAll(live)
		}
	}
}

func (r *Recorder) drain(live map[domain.SessionID]struct{}) {
	for {
		select {
		case o := <-r.ops:
			r.apply(live, o)
		default:
			return
		}
	}
}

// reap applies overflowed deletes. Everything queued ahead of them is taken
// under the same lock so a session's put can never land after its delete.
func (r *Recorder) reap(live map[domain.SessionID]struct{}) {
	r.mu.Lock()
	if len(r.closed) == 0 {
		r.mu.Unlock()
		return
	}
	var ahead []op
	for len(r.ops) > 0 {
		ahead = append(ahead, <-r.ops)
	}
	closed := r.closed
	r.closed = make(map[domain.SessionID]gateway.Info)
	r.mu.Unlock()

	for _, o := range ahead {
		r.apply(live, o)
	}
	for _, info := range closed {
		r.apply(live, op{kind: opDelete, info: info})
	}
}

func (r *Recorder) apply(live map[domain.SessionID]struct{}, o op) {
	ctx, cancel := context.WithTimeout(context.Background(), domain.RedisTimeout)
	defer cancel()

	switch o.kind {
	case opPut:
		live[o.info.ID] = struct{}{}
		if err := r.store.Put(ctx, o.info); err != nil {
			r.logger.Warn("presence put failed", slog.String("error", err.Error()))
		}
	case opDelete:
		delete(live, o.info.ID)
		if err := r.store.Delete(ctx, o.info.ID); err != nil {
			r.logger.Warn("presence delete failed", slog.String("error", err.Error()))
		}
	}
}

func (r *Recorder) touchAll(live map[domain.SessionID]struct{}) {
	for id := range live {
		ctx, cancel := context.WithTimeout(context.Background(), domain.RedisTimeout)
		ok, err := r.store.Touch(ctx, id)
		cancel()
		if err != nil {
			r.logger.Warn("presence refresh failed", slog.String("error", err.Error()))
			continue
		}
		if !ok {
			r.logger.Debug("presence entry expired", slog.String("session_id", id.String()))
			delete(live, id)
		}
	}
}
