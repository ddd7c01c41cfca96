// Package main is the entrypoint for the websocket gateway.
// It owns the reactor and the listening sockets and adopts every accepted
// connection into the gateway bound to its port.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aelexs/websocket-gateway/internal/config"
	"github.com/aelexs/websocket-gateway/internal/server"
)

func main() {
	ctx := context.Background()
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	return server.Run(ctx, server.Params{
		Name:           "gateway",
		PortFromConfig: func(cfg *config.Config) int { return cfg.Gateway.HTTPPort },
		Run:            serve,
	}, nil)
}
