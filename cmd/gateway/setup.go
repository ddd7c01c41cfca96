package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aelexs/websocket-gateway/internal/admission"
	"github.com/aelexs/websocket-gateway/internal/domain"
	"github.com/aelexs/websocket-gateway/internal/gateway"
	"github.com/aelexs/websocket-gateway/internal/gateway/builtin"
	"github.com/aelexs/websocket-gateway/internal/host"
	"github.com/aelexs/websocket-gateway/internal/presence"
	"github.com/aelexs/websocket-gateway/internal/reactor"
	"github.com/aelexs/websocket-gateway/internal/redis"
	"github.com/aelexs/websocket-gateway/internal/server"
)

// serve is the gateway composition root. Teardown runs in reverse: gateways
// are destroyed on the loop, then presence drains, then the loop stops and
// Redis is closed.
func serve(ctx context.Context, env server.Env) error {
	cfg, logger := env.Config, env.Logger
	gwCfg := cfg.Gateway
	if len(gwCfg.Ports()) == 0 {
		logger.Warn("no websocket ports configured")
	}

	// 1. Protocol table.
	registry, err := builtin.Registry()
	if err != nil {
		return fmt.Errorf("gateway setup: build registry: %w", err)
	}

	// 2. Infrastructure clients.
	var redisClient *redis.Client
	if gwCfg.UsesRedis() {
		redisClient, err = redis.Dial(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("gateway setup: %w", err)
		}
		defer func() { _ = redisClient.Close() }()
	}

	// 3. The host loop every gateway binds to.
	loop := reactor.New()
	loopCtx, stopLoop := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = loop.Run(loopCtx)
	}()
	defer func() {
		stopLoop()
		<-loopDone
	}()

	// 4. Optional presence and admission.
	var observer gateway.Observer
	if gwCfg.PresenceEnabled {
		rec, stop := startPresence(redisClient, logger)
		defer stop()
		observer = rec
	}

	var serveOpts []host.ServeOption
	if gwCfg.AcceptLimit > 0 {
		limiter := admission.NewLimiter(redisClient.RDB, gwCfg.AcceptLimit, gwCfg.AcceptWindow, gwCfg.AcceptBan)
		serveOpts = append(serveOpts, host.WithAdmitter(limiter))
		logger.Info("admission control enabled",
			slog.Int("accept_limit", gwCfg.AcceptLimit),
			slog.Duration("accept_window", gwCfg.AcceptWindow),
		)
	}

	// 5. One gateway per port.
	h := host.New(loop, logger, serveOpts...)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), domain.GracefulShutdownTimeout)
		defer cancel()
		if err := h.Close(closeCtx); err != nil {
			logger.Error("gateway shutdown error", slog.String("error", err.Error()))
		}
	}()

	opts := host.Options(gwCfg, logger, observer)
	for _, def := range host.PortDefs(gwCfg, host.Attach(logger)) {
		if _, err := h.Open(ctx, def, registry, opts...); err != nil {
			return fmt.Errorf("gateway setup: %w", err)
		}
	}

	// 6. Accept until shutdown.
	env.Ready()
	return h.Serve(ctx)
}

// startPresence starts a Recorder on client. stop drains it.
func startPresence(client *redis.Client, logger *slog.Logger) (*presence.Recorder, func()) {
	rec := presence.NewRecorder(
		presence.NewStore(client.RDB, domain.RealClock{}),
		presence.WithLogger(logger),
	)
	recCtx, stopRec := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = rec.Run(recCtx)
	}()

	logger.Info("presence enabled", slog.String("redis_addr", client.Addr()))
	return rec, func() {
		stopRec()
		<-done
	}
}
