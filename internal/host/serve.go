// Package host is the process side of the gateway. It owns the listening
// sockets and the reactor, creates one gateway.Gateway per port and hands
// every accepted connection to it on the loop.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/aelexs/websocket-gateway/internal/domain"
	"github.com/aelexs/websocket-gateway/internal/errmap"
	"github.com/aelexs/websocket-gateway/internal/gateway"
	"github.com/aelexs/websocket-gateway/internal/observability"
)

const (
	maxAcceptDelay = time.Second
	refuseTimeout  = time.Second
)

// Doer runs a function on the loop and waits for it. *reactor.Loop
// implements it.
type Doer interface {
	Do(ctx context.Context, fn func()) error
}

// Adopter takes ownership of an accepted socket. *gateway.Gateway implements it.
type Adopter interface {
	Adopt(conn net.Conn) (*gateway.Session, error)
}

// Admitter decides whether an accepted connection may reach the gateway.
// *admission.Limiter implements it.
type Admitter interface {
	Admit(ctx context.Context, addr net.Addr) (bool, error)
}

// ServeOption configures Serve.
type ServeOption func(*serveOptions)

type serveOptions struct {
	admitter Admitter
}

// WithAdmitter checks every accepted connection against a before it is
// adopted. Admission errors let the connection through.
func WithAdmitter(a Admitter) ServeOption {
	return func(o *serveOptions) { o.admitter = a }
}

// Serve accepts on ln until ctx is cancelled and adopts each connection into
// gw from inside the loop. It closes ln on return. Connections the gateway
// or the admitter refuses are closed here.
func Serve(ctx context.Context, ln net.Listener, loop Doer, gw Adopter, opts ...ServeOption) error {
	var o serveOptions
	for _, opt := range opts {
		opt(&o)
	}
	logger := observability.LoggerFromContext(ctx)
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer func() {
		stop()
		_ = ln.Close()
	}()

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				delay = backoff(delay)
				logger.Warn("accept failed, retrying",
					slog.String("addr", ln.Addr().String()),
					slog.Duration("delay", delay),
					slog.String("error", err.Error()),
				)
				time.Sleep(delay)
				continue
			}
			return fmt.Errorf("accept on %s: %w", ln.Addr(), err)
		}
		delay = 0

		if o.admitter != nil && !admit(ctx, logger, o.admitter, conn) {
			refuse(conn, domain.ErrRateLimited)
			continue
		}

		var adoptErr error
		if err := loop.Do(ctx, func() { _, adoptErr = gw.Adopt(conn) }); err != nil {
			_ = conn.Close()
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("enter loop: %w", err)
		}
		if adoptErr != nil {
			level := slog.LevelError
			if domain.IsRetryable(adoptErr) {
				level = slog.LevelWarn
			}
			logger.Log(ctx, level, "connection refused by gateway",
				slog.String("remote_addr", conn.RemoteAddr().String()),
				slog.String("error", adoptErr.Error()),
			)
			refuse(conn, adoptErr)
		}
	}
}

func admit(ctx context.Context, logger *slog.Logger, a Admitter, conn net.Conn) bool {
	ctx, cancel := context.WithTimeout(ctx, domain.RedisTimeout)
	defer cancel()

	ok, err := a.Admit(ctx, conn.RemoteAddr())
	if err != nil {
		logger.Warn("admission check failed, admitting",
			slog.String("remote_addr", conn.RemoteAddr().String()),
			slog.String("error", err.Error()),
		)
		return true
	}
	if !ok {
		logger.Debug("connection refused by admission",
			slog.String("remote_addr", conn.RemoteAddr().String()),
		)
	}
	return ok
}

// refuse closes a connection the host will not hand to the gateway. Refusals
// a client can retry get a minimal HTTP error response first.
func refuse(conn net.Conn, err error) {
	defer conn.Close()
	if !domain.IsRetryable(err) {
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(refuseTimeout))
	_ = errmap.ToHTTPError(err).WriteResponse(conn, time.Second)
}

func backoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	return min(2*d, maxAcceptDelay)
}
