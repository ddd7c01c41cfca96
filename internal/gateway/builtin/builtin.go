// Package builtin assembles the gateway's standard protocol table.
package builtin

import (
	"github.com/aelexs/websocket-gateway/internal/gateway"
	"github.com/aelexs/websocket-gateway/internal/gateway/ascii"
	"github.com/aelexs/websocket-gateway/internal/gateway/telnet"
	"github.com/aelexs/websocket-gateway/pkg/protocol"
)

// Registry returns the built-in table: the static fallback, the text and
// telnet sub-protocols, and "binary" as the legacy name for telnet. Every
// client is offered permessage-deflate.
func Registry() (*gateway.Registry, error) {
	return gateway.NewRegistry(
		[]gateway.Protocol{
			{Name: protocol.NameHTTP, ID: protocol.IDHTTP},
			ascii.Protocol(),
			telnet.Protocol(),
		},
		[]gateway.Alias{
			{Name: protocol.NameBinary, Target: protocol.NameTelnet},
		},
		protocol.DeflateExtension(),
	)
}

// MustRegistry is Registry for program start-up; it panics on error.
func MustRegistry() *gateway.Registry {
	r, err := Registry()
	if err != nil {
		panic(err)
	}
	return r
}
