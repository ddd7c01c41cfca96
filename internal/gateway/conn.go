package gateway

import (
	"bufio"
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"github.com/aelexs/websocket-gateway/internal/domain"
)

// tlsRecordHandshake is the first byte of every TLS ClientHello.
const tlsRecordHandshake = 0x16

var errPlaintextRefused = errors.New("plaintext connection on TLS-only port")

// adoptListener feeds adopted sockets to the engine's http.Server. It owns no
// socket; Accept only returns what Adopt pushed.
type adoptListener struct {
	conns chan net.Conn
	done  chan struct{}
	once  sync.Once
}

func newAdoptListener(backlog int) *adoptListener {
	return &adoptListener{
		conns: make(chan net.Conn, backlog),
		done:  make(chan struct{}),
	}
}

func (l *adoptListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

func (l *adoptListener) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}

func (l *adoptListener) Addr() net.Addr { return adoptAddr{} }

// push never blocks: the loop must not wait on the engine.
func (l *adoptListener) push(c net.Conn) error {
	select {
	case <-l.done:
		return net.ErrClosed
	default:
	}
	select {
	case l.conns <- c:
		return nil
	default:
		return domain.ErrBacklogFull
	}
}

type adoptAddr struct{}

func (adoptAddr) Network() string { return "adopted" }
func (adoptAddr) String() string  { return "adopted" }

// sessionConn is the net.Conn the engine sees for an adopted socket. On a TLS
// port it decides on first use whether the peer speaks TLS or plaintext.
type sessionConn struct {
	net.Conn
	session   *Session
	tls       *tls.Config
	plaintext bool

	once      sync.Once
	active    net.Conn
	sniffErr  error
	encrypted atomic.Bool
}

func newSessionConn(raw net.Conn, s *Session, cfg *tls.Config, plaintext bool) *sessionConn {
	return &sessionConn{Conn: raw, session: s, tls: cfg, plaintext: plaintext}
}

func (c *sessionConn) sniff() {
	if c.tls == nil {
		c.active = c.Conn
		return
	}
	br := bufio.NewReader(c.Conn)
	head, err := br.Peek(1)
	if err != nil {
		c.sniffErr = err
		return
	}
	buffered := &bufferedConn{Conn: c.Conn, r: br}
	if head[0] == tlsRecordHandshake {
		c.active = tls.Server(buffered, c.tls)
		c.encrypted.Store(true)
		return
	}
	if !c.plaintext {
		c.sniffErr = errPlaintextRefused
		return
	}
	c.active = buffered
}

func (c *sessionConn) Read(p []byte) (int, error) {
	c.once.Do(c.sniff)
	if c.sniffErr != nil {
		return 0, c.sniffErr
	}
	return c.active.Read(p)
}

func (c *sessionConn) Write(p []byte) (int, error) {
	c.once.Do(c.sniff)
	if c.sniffErr != nil {
		return 0, c.sniffErr
	}
	return c.active.Write(p)
}

// Close closes the raw socket; a TLS layer on top is abandoned with it.
func (c *sessionConn) Close() error {
	return c.Conn.Close()
}

// Encrypted reports whether the peer negotiated TLS. It is only meaningful
// after the first read.
func (c *sessionConn) Encrypted() bool { return c.encrypted.Load() }

// bufferedConn replays bytes consumed while sniffing.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) { return c.r.Read(p) }
