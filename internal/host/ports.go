package host

import (
	"log/slog"

	"github.com/aelexs/websocket-gateway/internal/config"
	"github.com/aelexs/websocket-gateway/internal/gateway"
)

// PortDefs derives the port definitions of the enabled websocket ports from
// cfg. The plaintext port never carries the key pair, so it never redirects.
func PortDefs(cfg config.GatewayConfig, attach func(*gateway.Session) gateway.Owner) []*gateway.PortDef {
	var defs []*gateway.PortDef
	if cfg.WSPort > 0 {
		defs = append(defs, &gateway.PortDef{
			Name:    "ws",
			Port:    cfg.WSPort,
			HTTPDir: cfg.HTTPDir,
			Attach:  attach,
		})
	}
	if cfg.TLSPort > 0 {
		defs = append(defs, &gateway.PortDef{
			Name:    "wss",
			Port:    cfg.TLSPort,
			TLSCert: cfg.TLSCert,
			TLSKey:  cfg.TLSKey,
			HTTPDir: cfg.HTTPDir,
			Attach:  attach,
		})
	}
	return defs
}

// Options maps cfg onto gateway options. observer may be nil.
func Options(cfg config.GatewayConfig, logger *slog.Logger, observer gateway.Observer) []gateway.Option {
	opts := []gateway.Option{
		gateway.WithLogger(logger),
		gateway.WithDebug(cfg.Debug),
		gateway.WithKillTimeout(cfg.KillTimeout),
		gateway.WithWriteTimeout(cfg.WriteTimeout),
		gateway.WithAdoptBacklog(cfg.AdoptBacklog),
	}
	if observer != nil {
		opts = append(opts, gateway.WithObserver(observer))
	}
	return opts
}
