// Package errmap maps domain errors onto wire-level close codes and HTTP
// statuses. Every domain error has an explicit mapping.
package errmap

import (
	"errors"
	"net"

	"github.com/gorilla/websocket"

	"github.com/aelexs/websocket-gateway/internal/domain"
)

// WebSocket close codes per RFC 6455.
// Standard codes: https://datatracker.ietf.org/doc/html/rfc6455#section-7.4
// Application-specific codes use the 4000-4999 range.
const (
	// Standard codes (RFC 6455)
	CloseNormalClosure   = websocket.CloseNormalClosure
	CloseGoingAway       = websocket.CloseGoingAway
	CloseProtocolError   = websocket.CloseProtocolError
	ClosePolicyViolation = websocket.ClosePolicyViolation
	CloseInternalError   = websocket.CloseInternalServerErr
	CloseServiceRestart  = websocket.CloseServiceRestart
	CloseTryAgainLater   = websocket.CloseTryAgainLater

	// Application-specific codes (4000-4999)
	CloseInvalidMessage = 4000
)

// WebSocketClose represents a close code and reason for WebSocket termination.
type WebSocketClose struct {
	Code   int
	Reason string
}

// Frame is the close frame payload. Reasons are trimmed to the 123 bytes a
// control frame can carry.
func (c WebSocketClose) Frame() []byte {
	reason := c.Reason
	if len(reason) > maxCloseReason {
		reason = reason[:maxCloseReason]
	}
	return websocket.FormatCloseMessage(c.Code, reason)
}

const maxCloseReason = 125 - 2

// ToWebSocketClose converts a domain error to a WebSocket close code and reason.
func ToWebSocketClose(err error) WebSocketClose {
	if err == nil {
		return WebSocketClose{Code: CloseNormalClosure, Reason: "normal_closure"}
	}

	switch {
	case errors.Is(err, domain.ErrShuttingDown):
		return CloseServerShutdown

	case errors.Is(err, domain.ErrNoSubprotocol):
		return CloseProtocolViolation

	case errors.Is(err, domain.ErrSessionClosed), errors.Is(err, net.ErrClosed):
		return WebSocketClose{Code: CloseGoingAway, Reason: "session_closed"}

	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrEmptyID),
		errors.Is(err, domain.ErrInvalidID):
		return WebSocketClose{Code: CloseInvalidMessage, Reason: "invalid_message"}

	case errors.Is(err, domain.ErrWriteInFlight):
		return WebSocketClose{Code: ClosePolicyViolation, Reason: "write_in_flight"}

	case errors.Is(err, domain.ErrBacklogFull):
		return WebSocketClose{Code: CloseTryAgainLater, Reason: "service_unavailable"}

	case errors.Is(err, domain.ErrRateLimited):
		return WebSocketClose{Code: CloseTryAgainLater, Reason: "rate_limited"}

	case errors.Is(err, domain.ErrConfigRequired):
		return WebSocketClose{Code: CloseInternalError, Reason: "misconfigured"}

	default:
		return WebSocketClose{Code: CloseInternalError, Reason: "internal_error"}
	}
}

// Common close reasons for special cases not directly mapped to domain errors.
var (
	CloseServerShutdown    = WebSocketClose{Code: CloseGoingAway, Reason: "server_shutdown"}
	CloseProtocolViolation = WebSocketClose{Code: CloseProtocolError, Reason: "protocol_error"}
)
