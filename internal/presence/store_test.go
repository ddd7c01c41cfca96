package presence_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aelexs/websocket-gateway/internal/config"
	"github.com/aelexs/websocket-gateway/internal/domain"
	"github.com/aelexs/websocket-gateway/internal/domain/domaintest"
	"github.com/aelexs/websocket-gateway/internal/gateway"
	"github.com/aelexs/websocket-gateway/internal/presence"
	redisclient "github.com/aelexs/websocket-gateway/internal/redis"
)

var connectedAt = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*presence.Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redisclient.New(config.RedisConfig{Addr: mr.Addr(), Timeout: 5 * time.Second})
	t.Cleanup(func() {
		require.NoError(t, client.Close())
	})

	return presence.NewStore(client.RDB, domaintest.NewFakeClock(connectedAt)), mr
}

func testInfo() gateway.Info {
	return gateway.Info{
		ID:          domain.NewSessionID(),
		Port:        "ws",
		Protocol:    "telnet",
		Subprotocol: "binary",
		RemoteAddr:  "10.0.0.7:51000",
		Encrypted:   true,
	}
}

func TestStore_Put(t *testing.T) {
	t.Run("writes the session hash", func(t *testing.T) {
		store, mr := newTestStore(t)
		info := testInfo()

		require.NoError(t, store.Put(context.Background(), info))

		key := "ws_session:" + info.ID.String()
		assert.Equal(t, "ws", mr.HGet(key, "port"))
		assert.Equal(t, "telnet", mr.HGet(key, "protocol"))
		assert.Equal(t, "binary", mr.HGet(key, "subprotocol"))
		assert.Equal(t, "10.0.0.7:51000", mr.HGet(key, "remote_addr"))
		assert.Equal(t, "true", mr.HGet(key, "encrypted"))
	})

	t.Run("sets connection TTL", func(t *testing.T) {
		store, mr := newTestStore(t)
		info := testInfo()

		require.NoError(t, store.Put(context.Background(), info))

		assert.Equal(t, domain.ConnectionTTL, mr.TTL("ws_session:"+info.ID.String()))
	})
}

func TestStore_Get(t *testing.T) {
	t.Run("round trips an entry", func(t *testing.T) {
		store, _ := newTestStore(t)
		info := testInfo()
		require.NoError(t, store.Put(context.Background(), info))

		got, err := store.Get(context.Background(), info.ID)

		require.NoError(t, err)
		assert.Equal(t, presence.Entry{
			ID:          info.ID,
			Port:        info.Port,
			Protocol:    info.Protocol,
			Subprotocol: info.Subprotocol,
			RemoteAddr:  info.RemoteAddr,
			Encrypted:   true,
			ConnectedAt: connectedAt,
		}, got)
	})

	t.Run("missing session", func(t *testing.T) {
		store, _ := newTestStore(t)

		_, err := store.Get(context.Background(), domain.NewSessionID())

		assert.ErrorIs(t, err, domain.ErrSessionClosed)
	})

	t.Run("corrupt timestamp", func(t *testing.T) {
		store, mr := newTestStore(t)
		id := domain.NewSessionID()
		mr.HSet("ws_session:"+id.String(), "connected_at", "yesterday")

		_, err := store.Get(context.Background(), id)

		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestStore_Touch(t *testing.T) {
	t.Run("extends a live entry", func(t *testing.T) {
		store, mr := newTestStore(t)
		info := testInfo()
		require.NoError(t, store.Put(context.Background(), info))
		mr.FastForward(40 * time.Second)

		ok, err := store.Touch(context.Background(), info.ID)

		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, domain.ConnectionTTL, mr.TTL("ws_session:"+info.ID.String()))
	})

	t.Run("reports an expired entry", func(t *testing.T) {
		store, mr := newTestStore(t)
		info := testInfo()
		require.NoError(t, store.Put(context.Background(), info))
		mr.FastForward(domain.ConnectionTTL + time.Second)

		ok, err := store.Touch(context.Background(), info.ID)

		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestStore_Delete(t *testing.T) {
	store, mr := newTestStore(t)
	info := testInfo()
	require.NoError(t, store.Put(context.Background(), info))

	require.NoError(t, store.Delete(context.Background(), info.ID))
	assert.False(t, mr.Exists("ws_session:"+info.ID.String()))

	// Deleting again is fine.
	require.NoError(t, store.Delete(context.Background(), info.ID))
}

func TestStore_RedisDown(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Close()

	err := store.Put(context.Background(), testInfo())
	assert.Error(t, err)
}
