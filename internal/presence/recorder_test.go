package presence_test

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aelexs/websocket-gateway/internal/domain"
	"github.com/aelexs/websocket-gateway/internal/presence"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

func startRecorder(t *testing.T, r *presence.Recorder) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	return cancel
}

func TestRecorder_Lifecycle(t *testing.T) {
	store, mr := newTestStore(t)
	rec := presence.NewRecorder(store)
	startRecorder(t, rec)
	info := testInfo()
	key := "ws_session:" + info.ID.String()

	rec.SessionEstablished(info)
	assert.Eventually(t, func() bool { return mr.Exists(key) }, waitFor, tick)

	rec.SessionClosed(info)
	assert.Eventually(t, func() bool { return !mr.Exists(key) }, waitFor, tick)
}

func TestRecorder_RefreshesLiveSessions(t *testing.T) {
	store, mr := newTestStore(t)
	mock := clock.NewMock()
	rec := presence.NewRecorder(store, presence.WithClock(mock), presence.WithRefreshInterval(30*time.Second))
	startRecorder(t, rec)
	info := testInfo()
	key := "ws_session:" + info.ID.String()

	rec.SessionEstablished(info)
	require.Eventually(t, func() bool { return mr.Exists(key) }, waitFor, tick)

	mr.FastForward(40 * time.Second)
	require.Equal(t, domain.ConnectionTTL-40*time.Second, mr.TTL(key))

	mock.Add(30 * time.Second)
	assert.Eventually(t, func() bool { return mr.TTL(key) == domain.ConnectionTTL }, waitFor, tick)
}

func TestRecorder_DrainsOnShutdown(t *testing.T) {
	store, mr := newTestStore(t)
	rec := presence.NewRecorder(store)
	info := testInfo()

	// Queued before Run starts; applied by the final drain.
	rec.SessionEstablished(info)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, rec.Run(ctx))

	assert.True(t, mr.Exists("ws_session:"+info.ID.String()))
}

func TestRecorder_FullQueueDrops(t *testing.T) {
	store, mr := newTestStore(t)
	rec := presence.NewRecorder(store, presence.WithQueueSize(1))
	first, second := testInfo(), testInfo()

	rec.SessionEstablished(first)
	assert.NotPanics(t, func() { rec.SessionEstablished(second) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, rec.Run(ctx))

	assert.True(t, mr.Exists("ws_session:"+first.ID.String()))
	assert.False(t, mr.Exists("ws_session:"+second.ID.String()))
}

func TestRecorder_FullQueueKeepsCloses(t *testing.T) {
	store, mr := newTestStore(t)
	rec := presence.NewRecorder(store, presence.WithQueueSize(1))
	info := testInfo()

	rec.SessionEstablished(info)
	rec.SessionClosed(info)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, rec.Run(ctx))

	assert.False(t, mr.Exists("ws_session:"+info.ID.String()))
}

func TestRecorder_OverflowedCloseStopsRefresh(t *testing.T) {
	store, mr := newTestStore(t)
	mock := clock.NewMock()
	rec := presence.NewRecorder(store,
		presence.WithQueueSize(1),
		presence.WithClock(mock),
		presence.WithRefreshInterval(30*time.Second),
	)
	info := testInfo()
	key := "ws_session:" + info.ID.String()

	rec.SessionEstablished(info)
	rec.SessionClosed(info)
	startRecorder(t, rec)

	require.Eventually(t, func() bool { return !mr.Exists(key) }, waitFor, tick)
	for range 4 {
		mr.FastForward(domain.ConnectionTTL - time.Second)
		mock.Add(30 * time.Second)
		time.Sleep(5 * tick)
		assert.False(t, mr.Exists(key))
	}
}
