package gateway

import (
	"errors"
	"net"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aelexs/websocket-gateway/internal/domain"
	"github.com/aelexs/websocket-gateway/internal/errmap"
	"github.com/aelexs/websocket-gateway/internal/reactor"
)

// closeFrameTimeout bounds the close frame written when a session is killed.
const closeFrameTimeout = 100 * time.Millisecond

type phase int

const (
	phaseAdopted phase = iota
	phaseEstablished
	phaseClosing
	phaseClosed
)

// frameConn is the part of *websocket.Conn a session writes through.
type frameConn interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type outFrame struct {
	kind  MessageKind
	data  []byte
	close *errmap.WebSocketClose
}

// Session is one adopted socket. It starts on the fallback protocol and moves
// to a sub-protocol when the upgrade succeeds. All methods must be called on
// the loop.
type Session struct {
	id     domain.SessionID
	gw     *Gateway
	conn   *sessionConn
	remote string

	proto       Protocol
	subprotocol string
	state       State
	phase       phase

	ws   frameConn
	out  chan outFrame
	kill reactor.Timer

	writePending bool // a writable cycle is queued
	writeBusy    bool // the writer goroutine holds a frame
	writeWanted  bool // a cycle was requested while busy
}

func newSession(g *Gateway, raw net.Conn) *Session {
	s := &Session{
		id:    domain.NewSessionID(),
		gw:    g,
		proto: g.registry.Fallback(),
	}
	if addr := raw.RemoteAddr(); addr != nil {
		s.remote = addr.String()
	}
	s.conn = newSessionConn(raw, s, g.tlsConfig, g.policy == nil || g.policy.AllowPlaintext)
	return s
}

func (s *Session) ID() domain.SessionID { return s.id }

// Gateway returns the context the session was adopted into.
func (s *Session) Gateway() *Gateway { return s.gw }

// Protocol returns the negotiated descriptor. Before the upgrade, and for
// static requests, it is the fallback entry.
func (s *Session) Protocol() Protocol { return s.proto }

// Subprotocol is the name the client negotiated, which may be an alias.
func (s *Session) Subprotocol() string { return s.subprotocol }

func (s *Session) RemoteAddr() string { return s.remote }

// Encrypted reports whether the peer connected over TLS.
func (s *Session) Encrypted() bool { return s.conn != nil && s.conn.Encrypted() }

// Established reports whether the upgrade completed and Close has not been called.
func (s *Session) Established() bool { return s.phase == phaseEstablished }

// Closed reports whether the session has been torn down.
func (s *Session) Closed() bool { return s.phase == phaseClosed }

// State returns the handler's state block, or nil before the upgrade, on
// the fallback protocol, and after teardown.
func (s *Session) State() State { return s.state }

func (s *Session) base() *SessionState {
	if s.state == nil {
		return nil
	}
	return s.state.Base()
}

// PendingLen is the number of bytes waiting in the pending-output buffer.
func (s *Session) PendingLen() int {
	if st := s.base(); st != nil {
		return st.Pending.Len()
	}
	return 0
}

// BindOwner records a non-owning reference to the host object that receives
// this session's input. It fails once Close has been called or when the
// protocol keeps no state.
func (s *Session) BindOwner(o Owner) bool {
	st := s.base()
	if st == nil || s.phase >= phaseClosing {
		return false
	}
	st.owner.Bind(o)
	return true
}

// Owner returns the bound owner while the reference is live.
func (s *Session) Owner() (Owner, bool) {
	st := s.base()
	if st == nil {
		return nil, false
	}
	return st.owner.Get()
}

// Send hands data to the sender of the negotiated protocol.
//
// On the fallback protocol, on any id the registry cannot dispatch, and after
// teardown, Send silently does nothing: no error, no buffer is touched.
// Callers cannot tell a dropped send from a delivered one through this call.
func (s *Session) Send(data []byte) {
	if s.state == nil || !s.gw.registry.Dispatchable(s.proto.ID) {
		return
	}
	s.proto.Handler.Send(s, data)
}

// Close starts teardown without closing anything synchronously. It arms the
// kill timeout, gives a non-empty pending buffer one more writable cycle,
// and clears the owner reference at once. Close never fails; calling it again
// re-arms the timeout.
func (s *Session) Close() {
	if s.phase == phaseClosed {
		return
	}
	s.armKill()
	if st := s.base(); st != nil {
		if st.Pending.Len() > 0 {
			s.RequestWritable()
			closeFlushScheduledTotal.Add(bg, 1, protocolAttr(s.proto.Name))
		}
		st.owner.Clear()
	}
	s.phase = phaseClosing
}

func (s *Session) armKill() {
	if s.kill != nil {
		s.kill.Stop()
	}
	s.kill = s.gw.loop.AfterFunc(s.gw.killTimeout, s.killNow)
}

// RequestWritable schedules one Writable callback. Requests coalesce: while
// a cycle is queued nothing more is scheduled, and while a frame is being
// written the request is deferred until the write completes.
func (s *Session) RequestWritable() {
	if s.ws == nil || s.phase == phaseClosed {
		return
	}
	if s.writeBusy {
		s.writeWanted = true
		return
	}
	if s.writePending {
		return
	}
	s.writePending = true
	s.gw.loop.Post(s.writable)
}

// Write queues one frame for the peer. Handlers call it from Writable; a
// second call before the frame is on the wire returns domain.ErrWriteInFlight.
// Write takes ownership of data.
func (s *Session) Write(kind MessageKind, data []byte) error {
	if s.phase == phaseClosed || s.out == nil {
		return domain.ErrSessionClosed
	}
	if s.writeBusy {
		return domain.ErrWriteInFlight
	}
	s.writeBusy = true
	s.out <- outFrame{kind: kind, data: data}
	return nil
}

// Info snapshots the session for observers and logs.
func (s *Session) Info() Info {
	return Info{
		ID:          s.id,
		Port:        s.gw.port.Name,
		Protocol:    s.proto.Name,
		Subprotocol: s.subprotocol,
		RemoteAddr:  s.remote,
		Encrypted:   s.Encrypted(),
	}
}

func (s *Session) establish(ws frameConn, p Protocol, name string) {
	if s.phase != phaseAdopted {
		// Closed or killed during the handshake.
		_ = ws.Close()
		return
	}
	s.ws = ws
	s.proto = p
	s.subprotocol = name
	s.state = p.Handler.NewState()
	s.out = make(chan outFrame, 1)
	s.phase = phaseEstablished
	go s.writeLoop(ws, s.out)

	if attach := s.gw.port.Attach; attach != nil {
		if owner := attach(s); owner != nil {
			s.BindOwner(owner)
		}
	}

	sessionsEstablishedTotal.Add(bg, 1, protocolAttr(p.Name))
	s.gw.bridge.logf(SeverityInfo, "session %s established: %s as %s", s.id, s.remote, name)
	s.gw.observer.SessionEstablished(s.Info())

	if s.phase == phaseEstablished {
		p.Handler.Established(s)
	}
}

func (s *Session) receive(data []byte) {
	if s.phase != phaseEstablished {
		return
	}
	bytesReceivedTotal.Add(bg, int64(len(data)), protocolAttr(s.proto.Name))
	s.proto.Handler.Receive(s, data)
}

func (s *Session) writable() {
	s.writePending = false
	if s.phase == phaseClosed || s.state == nil {
		return
	}
	s.proto.Handler.Writable(s)
}

// writeLoop performs the blocking socket writes so the loop never waits on a
// peer. It only touches the frames it is handed.
func (s *Session) writeLoop(ws frameConn, out <-chan outFrame) {
	defer ws.Close()
	loop, timeout := s.gw.loop, s.gw.writeTimeout
	for f := range out {
		if f.close != nil {
			msg := f.close.Frame()
			_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeFrameTimeout))
			return
		}
		_ = ws.SetWriteDeadline(time.Now().Add(timeout))
		err := ws.WriteMessage(int(f.kind), f.data)
		n := len(f.data)
		if !loop.Post(func() { s.written(n, err) }) {
			return
		}
	}
}

func (s *Session) written(n int, err error) {
	s.writeBusy = false
	if s.phase == phaseClosed {
		return
	}
	if err != nil {
		s.gw.bridge.logf(SeverityInfo, "session %s write failed: %v", s.id, err)
		s.destroy(err)
		return
	}
	bytesWrittenTotal.Add(bg, int64(n), protocolAttr(s.proto.Name))
	if s.writeWanted {
		s.writeWanted = false
		s.RequestWritable()
	}
}

func (s *Session) killNow() {
	s.kill = nil
	if s.phase == phaseClosed {
		return
	}
	s.gw.bridge.logf(SeverityDebug, "session %s kill timeout", s.id)
	s.destroy(nil)
}

// destroy is the final teardown. It runs once; later calls are ignored.
func (s *Session) destroy(cause error) {
	if s.phase == phaseClosed {
		return
	}
	established := s.ws != nil
	s.phase = phaseClosed
	if s.kill != nil {
		s.kill.Stop()
		s.kill = nil
	}

	if s.state != nil {
		s.proto.Handler.Closed(s)
	}
	if st := s.base(); st != nil {
		if owner, ok := st.owner.Get(); ok {
			owner.Disconnected()
		}
		st.owner.Clear()
	}
	info := s.Info()
	s.state = nil
	s.release(cause)
	s.gw.bridge.logf(closeSeverity(cause), "session %s closed: %v", s.id, closeReason(cause))

	delete(s.gw.sessions, s.id)
	sessionsActive.Add(bg, -1)
	sessionsClosedTotal.Add(bg, 1, protocolAttr(info.Protocol))
	if established {
		s.gw.observer.SessionClosed(info)
	}
}

// release gives the socket back. An upgraded socket is closed by its writer,
// after a close frame when the peer is still expected to read one.
func (s *Session) release(cause error) {
	if s.out == nil {
		if s.conn != nil {
			_ = s.conn.Close()
		}
		return
	}
	if s.writeBusy {
		// Unblock a write stuck on an unresponsive peer.
		_ = s.ws.Close()
	} else if cause == nil || errors.Is(cause, domain.ErrShuttingDown) {
		wc := errmap.ToWebSocketClose(cause)
		s.out <- outFrame{close: &wc}
	}
	close(s.out)
	s.out = nil
}

func closeSeverity(cause error) Severity {
	switch {
	case cause == nil, domain.IsSessionGone(cause), errors.Is(cause, net.ErrClosed),
		websocket.IsCloseError(cause, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		return SeverityInfo
	case domain.IsClientError(cause):
		return SeverityNotice
	default:
		return SeverityWarn
	}
}

func closeReason(cause error) string {
	if cause == nil {
		return "kill timeout"
	}
	return cause.Error()
}
