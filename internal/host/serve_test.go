package host_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/aelexs/websocket-gateway/internal/domain"
	"github.com/aelexs/websocket-gateway/internal/gateway"
	"github.com/aelexs/websocket-gateway/internal/host"
	"github.com/aelexs/websocket-gateway/internal/reactor"
)

const (
	timeout = 2 * time.Second
	tick    = 10 * time.Millisecond
)

// fakeAdopter records adopted sockets, refusing them while err is set.
type fakeAdopter struct {
	mu      sync.Mutex
	err     error
	adopted []net.Conn
}

func (f *fakeAdopter) Adopt(conn net.Conn) (*gateway.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.adopted = append(f.adopted, conn)
	return nil, nil
}

func (f *fakeAdopter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.adopted)
}

func (f *fakeAdopter) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.adopted {
		_ = c.Close()
	}
}

func runLoop(t *testing.T) *reactor.Loop {
	t.Helper()
	loop := reactor.New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return loop
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return ln
}

func TestServe_AdoptsOnLoop(t *testing.T) {
	ignore := goleak.IgnoreCurrent()
	t.Cleanup(func() { goleak.VerifyNone(t, ignore) })

	loop := runLoop(t)
	ln := listen(t)
	adopter := &fakeAdopter{}
	defer adopter.closeAll()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- host.Serve(ctx, ln, loop, adopter) }()

	for range 3 {
		c, err := net.Dial("tcp", ln.Addr().String())
		require.NoError(t, err)
		defer c.Close()
	}
	assert.Eventually(t, func() bool { return adopter.count() == 3 }, timeout, tick)

	cancel()
	require.NoError(t, <-errCh)
}

func TestServe_ClosesRefusedConnections(t *testing.T) {
	loop := runLoop(t)
	ln := listen(t)
	adopter := &fakeAdopter{err: gateway.ErrAdopt}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = host.Serve(ctx, ln, loop, adopter) }()

	c, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.SetReadDeadline(time.Now().Add(timeout)))
	_, err = c.Read(make([]byte, 1))
	assert.Error(t, err, "server side closed")
	var ne net.Error
	if errors.As(err, &ne) {
		assert.False(t, ne.Timeout())
	}
}

func TestServe_BacklogFullAnswers503(t *testing.T) {
	loop := runLoop(t)
	ln := listen(t)
	adopter := &fakeAdopter{err: fmt.Errorf("%w: %w", gateway.ErrAdopt, domain.ErrBacklogFull)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = host.Serve(ctx, ln, loop, adopter) }()

	resp := readRefusal(t, ln.Addr().String())

	assert.Contains(t, resp, "HTTP/1.1 503 Service Unavailable\r\n")
	assert.Contains(t, resp, "Retry-After: 1\r\n")
	assert.Contains(t, resp, `"code":"BACKLOG_FULL"`)
}

// readRefusal dials addr and reads until the server closes the connection.
func readRefusal(t *testing.T, addr string) string {
	t.Helper()
	c, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(timeout)))
	b, err := io.ReadAll(c)
	require.NoError(t, err)
	return string(b)
}

func TestServe_ClosesListenerOnCancel(t *testing.T) {
	loop := runLoop(t)
	ln := listen(t)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- host.Serve(ctx, ln, loop, &fakeAdopter{}) }()
	cancel()

	require.NoError(t, <-errCh)
	_, err := ln.Accept()
	assert.ErrorIs(t, err, net.ErrClosed)
}

func TestServe_StoppedLoop(t *testing.T) {
	loop := reactor.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, loop.Run(ctx))

	ln := listen(t)
	errCh := make(chan error, 1)
	go func() { errCh <- host.Serve(context.Background(), ln, loop, &fakeAdopter{}) }()

	c, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer c.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, reactor.ErrStopped)
	case <-time.After(timeout):
		t.Fatal("Serve did not return")
	}
}

type stubAdmitter struct {
	ok  bool
	err error
}

func (s stubAdmitter) Admit(context.Context, net.Addr) (bool, error) { return s.ok, s.err }

func TestServe_Admission(t *testing.T) {
	tests := []struct {
		name      string
		admitter  stubAdmitter
		wantAdopt bool
	}{
		{"admitted", stubAdmitter{ok: true}, true},
		{"refused", stubAdmitter{ok: false}, false},
		{"check failed", stubAdmitter{ok: true, err: errors.New("redis down")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loop := runLoop(t)
			ln := listen(t)
			adopter := &fakeAdopter{}
			defer adopter.closeAll()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go func() { _ = host.Serve(ctx, ln, loop, adopter, host.WithAdmitter(tt.admitter)) }()

			if !tt.wantAdopt {
				resp := readRefusal(t, ln.Addr().String())
				assert.Contains(t, resp, "HTTP/1.1 429 Too Many Requests\r\n")
				assert.Contains(t, resp, `"code":"RATE_LIMITED"`)
				assert.Zero(t, adopter.count())
				return
			}

			c, err := net.Dial("tcp", ln.Addr().String())
			require.NoError(t, err)
			defer c.Close()
			assert.Eventually(t, func() bool { return adopter.count() == 1 }, timeout, tick)
		})
	}
}
