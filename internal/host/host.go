package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/aelexs/websocket-gateway/internal/gateway"
	"github.com/aelexs/websocket-gateway/internal/reactor"
)

// Host binds gateways to listening sockets on one reactor.
type Host struct {
	loop     *reactor.Loop
	logger   *slog.Logger
	serve    []ServeOption
	bindings []binding
}

type binding struct {
	gw *gateway.Gateway
	ln net.Listener
}

// New creates a Host on loop. The caller runs the loop. opts apply to every
// accept loop.
func New(loop *reactor.Loop, logger *slog.Logger, opts ...ServeOption) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{loop: loop, logger: logger, serve: opts}
}

// Open creates the gateway for port on the loop and listens on port.Port.
// Port 0 picks a free port. A port whose gateway cannot be created is not
// listened on.
func (h *Host) Open(ctx context.Context, port *gateway.PortDef, registry *gateway.Registry, opts ...gateway.Option) (net.Addr, error) {
	var gw *gateway.Gateway
	var err error
	if doErr := h.loop.Do(ctx, func() {
		gw, err = gateway.New(h.loop, port, registry, opts...)
	}); doErr != nil {
		return nil, fmt.Errorf("open %s: %w", port.Name, doErr)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", port.Name, err)
	}

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", fmt.Sprintf(":%d", port.Port))
	if err != nil {
		_ = h.loop.Do(ctx, gw.Destroy)
		return nil, fmt.Errorf("listen %s: %w", port.Name, err)
	}

	h.bindings = append(h.bindings, binding{gw: gw, ln: ln})
	h.logger.Info("websocket port open",
		slog.String("port", port.Name),
		slog.String("addr", ln.Addr().String()),
		slog.Bool("tls", gw.TLSPolicy() != nil),
	)
	return ln.Addr(), nil
}

// Serve runs one accept loop per open port until ctx is cancelled or one of
// them fails.
func (h *Host) Serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, b := range h.bindings {
		g.Go(func() error {
			return Serve(ctx, b.ln, h.loop, b.gw, h.serve...)
		})
	}
	return g.Wait()
}

// Close destroys every gateway on the loop, in the order they were opened.
// Call it once, after Serve has returned and before the loop stops.
func (h *Host) Close(ctx context.Context) error {
	var errs []error
	for _, b := range h.bindings {
		_ = b.ln.Close()
		if err := h.loop.Do(ctx, b.gw.Destroy); err != nil {
			errs = append(errs, fmt.Errorf("destroy %s: %w", b.gw.Port().Name, err))
		}
	}
	h.bindings = nil
	return errors.Join(errs...)
}
