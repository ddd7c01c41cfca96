package gateway

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aelexs/websocket-gateway/internal/domain"
	"github.com/aelexs/websocket-gateway/internal/errmap"
	"github.com/aelexs/websocket-gateway/internal/reactor"
	"github.com/aelexs/websocket-gateway/pkg/protocol"
)

// Loop is the host-owned event loop a Gateway binds to. *reactor.Loop
// implements it.
type Loop interface {
	Post(fn func()) bool
	AfterFunc(d time.Duration, fn func()) reactor.Timer
}

// PortDef is the host's definition of one listening port. The gateway keeps
// a pointer to it as the context's user payload.
type PortDef struct {
	Name    string
	Port    int
	TLSCert string
	TLSKey  string
	// HTTPDir is the static-file origin served on "/". Required.
	HTTPDir string
	// Attach, if set, is called on the loop when a session is established and
	// returns the owner the session delivers input to.
	Attach func(s *Session) Owner
}

// Mount maps a URL prefix to a static-file directory.
type Mount struct {
	Prefix  string
	Origin  string
	Default string
}

// Option configures New.
type Option func(*options)

type options struct {
	logger       *slog.Logger
	debug        bool
	killTimeout  time.Duration
	writeTimeout time.Duration
	backlog      int
	observer     Observer
}

// WithLogger sets the host logger the log bridge writes to.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithDebug widens the engine's diagnostic severities.
func WithDebug(debug bool) Option { return func(o *options) { o.debug = debug } }

// WithKillTimeout bounds how long a closed session may linger.
func WithKillTimeout(d time.Duration) Option { return func(o *options) { o.killTimeout = d } }

// WithWriteTimeout bounds a single frame write.
func WithWriteTimeout(d time.Duration) Option { return func(o *options) { o.writeTimeout = d } }

// WithAdoptBacklog sets how many adopted sockets may wait for the engine.
func WithAdoptBacklog(n int) Option { return func(o *options) { o.backlog = n } }

// WithObserver registers a session lifecycle observer.
func WithObserver(obs Observer) Option { return func(o *options) { o.observer = obs } }

// Gateway is the context bound to one listening port and one host loop.
type Gateway struct {
	loop     Loop
	port     *PortDef
	registry *Registry
	policy   *TLSPolicy
	mount    Mount
	bridge   *LogBridge
	observer Observer

	killTimeout  time.Duration
	writeTimeout time.Duration

	tlsConfig *tls.Config
	upgrader  websocket.Upgrader
	static    http.Handler
	server    *http.Server
	listener  *adoptListener

	// sessions is owned by the loop.
	sessions map[domain.SessionID]*Session
}

type sessionKey struct{}

// New creates the context for port. It either returns a fully initialised
// Gateway or an error wrapping ErrContextCreation; the failure is also logged
// at error severity and nothing is left running. The Gateway binds to loop
// and never opens a socket: the host accepts and calls Adopt.
func New(loop Loop, port *PortDef, registry *Registry, opts ...Option) (*Gateway, error) {
	o := options{
		killTimeout:  domain.DefaultKillTimeout,
		writeTimeout: domain.DefaultWriteTimeout,
		backlog:      domain.DefaultAdoptBacklog,
		observer:     nopObserver{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	bridge := NewLogBridge(o.logger, o.debug)

	g, err := newGateway(loop, port, registry, bridge, o)
	if err != nil {
		bridge.Log(SeverityErr, fmt.Sprintf("gateway init failed: %v", err))
		return nil, fmt.Errorf("%w: %w", ErrContextCreation, err)
	}

	go func() {
		if err := g.server.Serve(g.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			bridge.Log(SeverityErr, fmt.Sprintf("engine stopped: %v", err))
		}
	}()

	bridge.logf(SeverityUser, "WS protocols supported: %s", strings.Join(registry.Names(), " "))
	return g, nil
}

func newGateway(loop Loop, port *PortDef, registry *Registry, bridge *LogBridge, o options) (*Gateway, error) {
	switch {
	case loop == nil:
		return nil, fmt.Errorf("%w: nil loop", domain.ErrInvalidInput)
	case port == nil:
		return nil, fmt.Errorf("%w: nil port definition", domain.ErrInvalidInput)
	case registry == nil:
		return nil, fmt.Errorf("%w: nil registry", domain.ErrInvalidInput)
	case port.HTTPDir == "":
		return nil, fmt.Errorf("port %q: %w", port.Name, ErrMissingOrigin)
	case o.killTimeout <= 0 || o.writeTimeout <= 0 || o.backlog <= 0:
		return nil, fmt.Errorf("%w: timeouts and backlog must be positive", domain.ErrInvalidInput)
	}
	if o.observer == nil {
		o.observer = nopObserver{}
	}

	g := &Gateway{
		loop:         loop,
		port:         port,
		registry:     registry,
		policy:       NewTLSPolicy(port.TLSCert, port.TLSKey),
		bridge:       bridge,
		observer:     o.observer,
		killTimeout:  o.killTimeout,
		writeTimeout: o.writeTimeout,
		listener:     newAdoptListener(o.backlog),
		sessions:     make(map[domain.SessionID]*Session),
		mount: Mount{
			Prefix:  "/",
			Origin:  port.HTTPDir,
			Default: "index.html",
		},
	}

	if g.policy != nil {
		cfg, err := g.policy.ServerConfig()
		if err != nil {
			return nil, err
		}
		if _, skipped := g.policy.CipherSuites(); len(skipped) > 0 {
			bridge.logf(SeverityNotice, "ciphers not implemented by crypto/tls skipped: %s", strings.Join(skipped, ":"))
		}
		g.tlsConfig = cfg
	}

	g.upgrader = websocket.Upgrader{
		HandshakeTimeout:  domain.HandshakeTimeout,
		ReadBufferSize:    domain.DefaultRxBufferSize,
		WriteBufferSize:   domain.DefaultRxBufferSize,
		Subprotocols:      registry.Subprotocols(),
		EnableCompression: offersDeflate(registry.Extensions()),
		Error:             g.upgradeError,
		// Browsers on any origin may connect, as with any static page.
		CheckOrigin: func(*http.Request) bool { return true },
	}

	mux := http.NewServeMux()
	mux.Handle(g.mount.Prefix, http.FileServer(http.Dir(g.mount.Origin)))
	g.static = mux

	g.server = &http.Server{
		Handler:           g,
		ReadHeaderTimeout: domain.HandshakeTimeout,
		IdleTimeout:       domain.IdleTimeout,
		MaxHeaderBytes:    domain.ServeBufferSize,
		ErrorLog:          log.New(bridge.Writer(SeverityWarn), "", 0),
		ConnContext:       g.connContext,
		ConnState:         g.connState,
	}
	return g, nil
}

// offersDeflate reports whether compression is enabled at all. Extension
// params are not forwarded: the engine always answers with no-context-takeover
// in both directions and the default window.
func offersDeflate(exts []protocol.Extension) bool {
	for _, e := range exts {
		if e.Name == protocol.ExtensionDeflate {
			return true
		}
	}
	return false
}

// Destroy tears down every session and releases the engine.
//
// Destroy is not idempotent and nothing guards it: the host must call it
// exactly once, on the loop, and must not call Adopt, Send or Close on this
// Gateway or its sessions afterwards.
func (g *Gateway) Destroy() {
	_ = g.server.Close()
	_ = g.listener.Close()
	for _, s := range g.sessions {
		s.destroy(domain.ErrShuttingDown)
	}
	g.bridge.logf(SeverityNotice, "gateway %q destroyed", g.port.Name)
}

// Adopt takes ownership of an already-accepted socket. The upgrade handshake
// happens later inside the engine; until then the session is on the fallback
// protocol. A handshake that fails tears the session down without an error
// reaching the caller. On error the caller still owns conn.
func (g *Gateway) Adopt(conn net.Conn) (*Session, error) {
	if conn == nil {
		return nil, fmt.Errorf("%w: %w", ErrAdopt, domain.ErrInvalidInput)
	}
	s := newSession(g, conn)
	if err := g.listener.push(s.conn); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrAdopt, s.remote, err)
	}
	g.sessions[s.id] = s
	sessionsAdoptedTotal.Add(bg, 1)
	sessionsActive.Add(bg, 1)
	return s, nil
}

// Port returns the port definition supplied to New.
func (g *Gateway) Port() *PortDef { return g.port }

// Registry returns the protocol table the gateway resolves upgrades against.
func (g *Gateway) Registry() *Registry { return g.registry }

// TLSPolicy returns the port's policy, nil on a plaintext port.
func (g *Gateway) TLSPolicy() *TLSPolicy { return g.policy }

// Mount returns the static-file mount.
func (g *Gateway) Mount() Mount { return g.mount }

// Sessions returns the number of live sessions. Loop only.
func (g *Gateway) Sessions() int { return len(g.sessions) }

// ServeHTTP is the engine's request entry point. It runs on engine
// goroutines and reaches session state only by posting to the loop.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sc, _ := r.Context().Value(sessionKey{}).(*sessionConn)
	if sc == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if g.policy != nil && g.policy.RedirectToTLS && !sc.Encrypted() {
		http.Redirect(w, r, "https://"+r.Host+r.URL.RequestURI(), http.StatusMovedPermanently)
		return
	}

	if !websocket.IsWebSocketUpgrade(r) {
		g.static.ServeHTTP(w, r)
		return
	}
	g.upgrade(w, r, sc.session)
}

func (g *Gateway) upgrade(w http.ResponseWriter, r *http.Request, s *Session) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgradeError already answered the request.
		return
	}

	name := ws.Subprotocol()
	p, ok := g.registry.Lookup(name)
	if !ok || p.ID == protocol.IDHTTP {
		wc := errmap.ToWebSocketClose(domain.ErrNoSubprotocol)
		_ = ws.WriteControl(websocket.CloseMessage, wc.Frame(), time.Now().Add(closeFrameTimeout))
		_ = ws.Close()
		g.bridge.logf(SeverityNotice, "%s offered %q: %v", s.remote, websocket.Subprotocols(r), domain.ErrNoSubprotocol)
		g.loop.Post(func() { s.destroy(domain.ErrNoSubprotocol) })
		return
	}

	if !g.loop.Post(func() { s.establish(ws, p, name) }) {
		_ = ws.Close()
		return
	}
	g.readLoop(s, ws, p.RxBufferSize)
}

// readLoop delivers each message to the loop in chunks of at most rx bytes.
func (g *Gateway) readLoop(s *Session, ws *websocket.Conn, rx int) {
	buf := make([]byte, rx)
	for {
		_, r, err := ws.NextReader()
		if err != nil {
			g.loop.Post(func() { s.destroy(err) })
			return
		}
		for {
			n, err := r.Read(buf)
			if n > 0 {
				chunk := bytes.Clone(buf[:n])
				g.loop.Post(func() { s.receive(chunk) })
			}
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				g.loop.Post(func() { s.destroy(err) })
				return
			}
		}
	}
}

func (g *Gateway) upgradeError(w http.ResponseWriter, r *http.Request, status int, reason error) {
	g.bridge.logf(SeverityNotice, "upgrade from %s rejected: %v", r.RemoteAddr, reason)
	http.Error(w, http.StatusText(status), status)
}

func (g *Gateway) connContext(ctx context.Context, c net.Conn) context.Context {
	if sc, ok := c.(*sessionConn); ok {
		return context.WithValue(ctx, sessionKey{}, sc)
	}
	return ctx
}

// connState ends sessions that never upgraded once the engine drops them.
// Upgraded sockets are hijacked and never reach StateClosed.
func (g *Gateway) connState(c net.Conn, state http.ConnState) {
	if state != http.StateClosed {
		return
	}
	if sc, ok := c.(*sessionConn); ok {
		s := sc.session
		g.loop.Post(func() { s.destroy(net.ErrClosed) })
	}
}
