// Package protocol lists the websocket sub-protocols the gateway negotiates.
// Clients pass one of the names in Sec-WebSocket-Protocol.
package protocol

import "strings"

// ID identifies a registered sub-protocol. Aliases share the ID of the
// protocol they stand for.
type ID int

const (
	// IDHTTP is the fallback entry: plain HTTP and static files, no upgrade logic.
	IDHTTP ID = 0
	// IDASCII is the text-oriented sub-protocol.
	IDASCII ID = 1
	// IDTelnet is the binary telnet-in-websocket sub-protocol.
	IDTelnet ID = 2
)

// Sub-protocol names as they appear on the wire.
const (
	NameHTTP   = "http"
	NameASCII  = "ascii"
	NameTelnet = "telnet"
	// NameBinary is the legacy alias for NameTelnet kept for older clients.
	NameBinary = "binary"
)

func (id ID) String() string {
	switch id {
	case IDHTTP:
		return NameHTTP
	case IDASCII:
		return NameASCII
	case IDTelnet:
		return NameTelnet
	default:
		return "unknown"
	}
}

// Compression extension offered to every client regardless of sub-protocol.
const (
	ExtensionDeflate = "permessage-deflate"

	ParamClientNoContextTakeover = "client_no_context_takeover"
	ParamClientMaxWindowBits     = "client_max_window_bits"
)

// Extension is a websocket extension with its negotiated parameters.
type Extension struct {
	Name   string
	Params []string
}

// DeflateExtension returns the permessage-deflate offer.
func DeflateExtension() Extension {
	return Extension{
		Name:   ExtensionDeflate,
		Params: []string{ParamClientNoContextTakeover, ParamClientMaxWindowBits},
	}
}

// String renders the extension as a Sec-WebSocket-Extensions element.
func (e Extension) String() string {
	if len(e.Params) == 0 {
		return e.Name
	}
	return e.Name + "; " + strings.Join(e.Params, "; ")
}
