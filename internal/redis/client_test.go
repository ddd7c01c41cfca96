package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aelexs/websocket-gateway/internal/config"
	iredis "github.com/aelexs/websocket-gateway/internal/redis"
)

func TestDial(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := iredis.Dial(context.Background(), config.RedisConfig{
		Addr:    mr.Addr(),
		Timeout: time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, client.Close()) })

	assert.Equal(t, mr.Addr(), client.Addr())
	assert.Equal(t, time.Second, client.RDB.Options().ReadTimeout)
	assert.Equal(t, time.Second, client.RDB.Options().WriteTimeout)

	var cmd iredis.Cmdable = client.RDB
	require.NoError(t, cmd.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestDial_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := iredis.Dial(context.Background(), config.RedisConfig{Addr: addr, Timeout: 100 * time.Millisecond})

	require.Error(t, err)
	assert.ErrorContains(t, err, "redis ping "+addr)
}

func TestNew_DoesNotConnect(t *testing.T) {
	client := iredis.New(config.RedisConfig{Addr: "127.0.0.1:1", Timeout: 50 * time.Millisecond})
	t.Cleanup(func() { _ = client.Close() })

	assert.Error(t, client.Ping(context.Background()))
}
