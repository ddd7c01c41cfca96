// Package server provides the service lifecycle runner.
// cmd/gateway delegates to server.Run for signal handling, config loading,
// observability init, the health endpoints, and graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aelexs/websocket-gateway/internal/config"
	"github.com/aelexs/websocket-gateway/internal/domain"
	"github.com/aelexs/websocket-gateway/internal/observability"
)

// Env is what a service body receives from Run.
type Env struct {
	Config *config.Config
	Logger *slog.Logger
	// Ready flips /readyz to 200. Call it once listeners are bound.
	Ready func()
}

// Params configures a service's lifecycle runner.
type Params struct {
	Name string

	// PortFromConfig extracts the health port for this service from config.
	PortFromConfig func(cfg *config.Config) int

	// Run, if set, is the service body. It runs alongside the health server
	// and must return once ctx is cancelled. An error stops the service.
	// Without a body the service is ready as soon as it serves.
	Run func(ctx context.Context, env Env) error
}

// Run executes the full service lifecycle. If ln is non-nil it replaces the
// listener built from config, which lets tests bind port 0.
func Run(ctx context.Context, p Params, ln net.Listener) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(observability.LogConfig{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		ServiceName: p.Name,
		Environment: cfg.Environment,
	})

	// Startup: telemetry, health listener, service body.
	providers, err := observability.Init(ctx, observability.Config{
		ServiceName:    serviceName(p.Name, cfg),
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTEL.Endpoint,
		OTLPInsecure:   cfg.OTEL.Insecure,
	})
	if err != nil {
		return err
	}

	if ln == nil {
		ln, err = (&net.ListenConfig{}).Listen(ctx, "tcp", fmt.Sprintf(":%d", p.PortFromConfig(cfg)))
		if err != nil {
			_ = providers.Shutdown(context.Background())
			return fmt.Errorf("listen: %w", err)
		}
	}

	h := &health{name: p.Name}
	h.ready.Store(p.Run == nil)
	srv := &http.Server{
		Handler:      h.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting HTTP server",
			slog.String("addr", ln.Addr().String()),
			slog.String("environment", cfg.Environment),
		)
		if serveErr := srv.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return serveErr
		}
		return nil
	})

	if p.Run != nil {
		env := Env{
			Config: cfg,
			Logger: logger,
			Ready: func() {
				if !h.ready.Swap(true) {
					logger.Info("service ready")
				}
			},
		}
		g.Go(func() error {
			if runErr := p.Run(ctx, env); runErr != nil {
				return fmt.Errorf("%s: %w", p.Name, runErr)
			}
			return nil
		})
	}

	// Shutdown runs in reverse of startup once ctx is done, whether from a
	// signal or a failed goroutine.
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("received shutdown signal, starting graceful shutdown")

		// Probes fail first so the balancer stops routing new upgrades here.
		h.draining.Store(true)
		time.Sleep(domain.ShutdownDrainDelay)

		httpCtx, httpCancel := context.WithTimeout(context.Background(), domain.ShutdownHTTPTimeout)
		defer httpCancel()
		if shutdownErr := srv.Shutdown(httpCtx); shutdownErr != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", shutdownErr.Error()))
		}

		otelCtx, otelCancel := context.WithTimeout(context.Background(), domain.ShutdownOTELTimeout)
		defer otelCancel()
		if shutdownErr := providers.Shutdown(otelCtx); shutdownErr != nil {
			logger.Error("failed to shutdown telemetry", slog.String("error", shutdownErr.Error()))
		}

		logger.Info("shutdown complete")
		return nil
	})

	return g.Wait()
}

// serviceName prefers the configured OTEL service name.
func serviceName(name string, cfg *config.Config) string {
	if cfg.OTEL.ServiceName != "" {
		return cfg.OTEL.ServiceName
	}
	return name
}
