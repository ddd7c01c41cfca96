// Package sessiontest runs the built-in protocol table on a real reactor
// behind a loopback listener, for handler tests that need a live session.
package sessiontest

import (
	"bytes"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/aelexs/websocket-gateway/internal/gateway"
	"github.com/aelexs/websocket-gateway/internal/gateway/builtin"
	"github.com/aelexs/websocket-gateway/internal/gateway/gatewaytest"
	"github.com/aelexs/websocket-gateway/internal/reactor"
)

// Timeout bounds every wait in this package.
const Timeout = 2 * time.Second

// Owner records the input of one session.
type Owner struct {
	session *gateway.Session

	mu    sync.Mutex
	input bytes.Buffer
}

func (o *Owner) Input(data []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.input.Write(data)
}

func (*Owner) Disconnected() {}

// Received returns everything handed to Input so far.
func (o *Owner) Received() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.input.String()
}

// Session is the session the owner is bound to. Loop only.
func (o *Owner) Session() *gateway.Session { return o.session }

// Server is a running gateway.
type Server struct {
	Addr string

	loop   *reactor.Loop
	owners chan *Owner
}

// Start runs a plaintext gateway until the test ends.
func Start(t *testing.T) *Server {
	t.Helper()
	srv := &Server{loop: reactor.New(), owners: make(chan *Owner, 8)}
	port := &gateway.PortDef{
		Name:    "ws",
		HTTPDir: gatewaytest.WriteIndex(t, t.TempDir(), "<h1>gateway</h1>"),
		Attach: func(s *gateway.Session) gateway.Owner {
			o := &Owner{session: s}
			srv.owners <- o
			return o
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = srv.loop.Run(ctx)
	}()

	var gw *gateway.Gateway
	var err error
	require.NoError(t, srv.loop.Do(ctx, func() {
		gw, err = gateway.New(srv.loop, port, builtin.MustRegistry())
	}))
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv.Addr = ln.Addr().String()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			_ = srv.loop.Do(ctx, func() {
				if _, err := gw.Adopt(c); err != nil {
					_ = c.Close()
				}
			})
		}
	}()

	t.Cleanup(func() {
		_ = ln.Close()
		_ = srv.loop.Do(context.Background(), gw.Destroy)
		cancel()
		<-stopped
	})
	return srv
}

// Dial opens a client speaking subprotocol and returns it with the owner
// attached to the server side.
func (srv *Server) Dial(t *testing.T, subprotocol string) (*websocket.Conn, *Owner) {
	t.Helper()
	d := websocket.Dialer{Subprotocols: []string{subprotocol}}
	c, _, err := d.Dial("ws://"+srv.Addr+"/", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	select {
	case o := <-srv.owners:
		return c, o
	case <-time.After(Timeout):
		t.Fatal("session was not established")
		return nil, nil
	}
}

// Do runs fn on the loop and waits for it.
func (srv *Server) Do(t *testing.T, fn func()) {
	t.Helper()
	require.NoError(t, srv.loop.Do(context.Background(), fn))
}

// Frame is one message read by the client.
type Frame struct {
	Kind int
	Data []byte
}

// ReadFrames reads messages until n payload bytes have arrived.
func ReadFrames(t *testing.T, c *websocket.Conn, n int) []Frame {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(Timeout)))
	var frames []Frame
	for got := 0; got < n; {
		kind, data, err := c.ReadMessage()
		require.NoError(t, err)
		frames = append(frames, Frame{Kind: kind, Data: data})
		got += len(data)
	}
	return frames
}

// Join concatenates frame payloads.
func Join(frames []Frame) []byte {
	var b bytes.Buffer
	for _, f := range frames {
		b.Write(f.Data)
	}
	return b.Bytes()
}
