package errmap_test

import (
	"fmt"
	"net"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aelexs/websocket-gateway/internal/domain"
	"github.com/aelexs/websocket-gateway/internal/errmap"
)

func TestToWebSocketClose(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   int
		wantReason string
	}{
		// Nil error
		{"nil error", nil, errmap.CloseNormalClosure, "normal_closure"},

		// Negotiation errors
		{"ErrNoSubprotocol", domain.ErrNoSubprotocol, errmap.CloseProtocolError, "protocol_error"},

		// Lifecycle
		{"ErrShuttingDown", domain.ErrShuttingDown, errmap.CloseGoingAway, "server_shutdown"},
		{"ErrSessionClosed", domain.ErrSessionClosed, errmap.CloseGoingAway, "session_closed"},
		{"net.ErrClosed", net.ErrClosed, errmap.CloseGoingAway, "session_closed"},
		{"ErrWriteInFlight", domain.ErrWriteInFlight, errmap.ClosePolicyViolation, "write_in_flight"},

		// Validation errors
		{"ErrInvalidInput", domain.ErrInvalidInput, errmap.CloseInvalidMessage, "invalid_message"},
		{"ErrEmptyID", domain.ErrEmptyID, errmap.CloseInvalidMessage, "invalid_message"},
		{"ErrInvalidID", domain.ErrInvalidID, errmap.CloseInvalidMessage, "invalid_message"},

		// Operational errors
		{"ErrBacklogFull", domain.ErrBacklogFull, errmap.CloseTryAgainLater, "service_unavailable"},
		{"ErrRateLimited", domain.ErrRateLimited, errmap.CloseTryAgainLater, "rate_limited"},
		{"ErrConfigRequired", domain.ErrConfigRequired, errmap.CloseInternalError, "misconfigured"},

		// Wrapped errors
		{"wrapped ErrNoSubprotocol", fmt.Errorf("upgrade: %w", domain.ErrNoSubprotocol), errmap.CloseProtocolError, "protocol_error"},

		// Unknown errors map to Internal
		{"unknown error", fmt.Errorf("unexpected"), errmap.CloseInternalError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errmap.ToWebSocketClose(tt.err)
			assert.Equal(t, tt.wantCode, got.Code, "expected code %d, got %d", tt.wantCode, got.Code)
			assert.Equal(t, tt.wantReason, got.Reason, "expected reason %q, got %q", tt.wantReason, got.Reason)
		})
	}
}

func TestWebSocketCloseCodes(t *testing.T) {
	t.Run("standard codes are in valid range", func(t *testing.T) {
		standardCodes := []int{
			errmap.CloseNormalClosure,
			errmap.CloseGoingAway,
			errmap.CloseProtocolError,
			errmap.ClosePolicyViolation,
			errmap.CloseInternalError,
			errmap.CloseServiceRestart,
			errmap.CloseTryAgainLater,
		}

		for _, code := range standardCodes {
			assert.True(t, code >= 1000 && code <= 1015, "standard code %d should be in range 1000-1015", code)
		}
	})

	t.Run("application codes are in valid range", func(t *testing.T) {
		assert.True(t, errmap.CloseInvalidMessage >= 4000 && errmap.CloseInvalidMessage <= 4999)
	})
}

func TestCommonCloseReasons(t *testing.T) {
	t.Run("CloseServerShutdown", func(t *testing.T) {
		assert.Equal(t, errmap.CloseGoingAway, errmap.CloseServerShutdown.Code)
		assert.Equal(t, "server_shutdown", errmap.CloseServerShutdown.Reason)
	})

	t.Run("CloseProtocolViolation", func(t *testing.T) {
		assert.Equal(t, errmap.CloseProtocolError, errmap.CloseProtocolViolation.Code)
		assert.Equal(t, "protocol_error", errmap.CloseProtocolViolation.Reason)
	})
}

// TestWebSocketMappingCompleteness ensures every domain error has an explicit mapping.
func TestWebSocketMappingCompleteness(t *testing.T) {
	domainErrors := []error{
		domain.ErrEmptyID,
		domain.ErrInvalidID,
		domain.ErrInvalidInput,
		domain.ErrNoSubprotocol,
		domain.ErrSessionClosed,
		domain.ErrWriteInFlight,
		domain.ErrBacklogFull,
		domain.ErrShuttingDown,
		domain.ErrRateLimited,
		domain.ErrConfigRequired,
	}

	for _, err := range domainErrors {
		t.Run(err.Error(), func(t *testing.T) {
			wsClose := errmap.ToWebSocketClose(err)
			assert.NotEqual(t, "internal_error", wsClose.Reason,
				"domain error %q should have explicit WebSocket mapping", err.Error())
			assert.NotEqual(t, 0, errmap.ToHTTPError(err).StatusCode)
		})
	}
}

func TestWebSocketClose_Frame(t *testing.T) {
	t.Run("code and reason", func(t *testing.T) {
		frame := errmap.ToWebSocketClose(domain.ErrNoSubprotocol).Frame()

		require.Len(t, frame, 2+len("protocol_error"))
		assert.Equal(t, []byte{0x03, 0xea}, frame[:2]) // 1002
		assert.Equal(t, "protocol_error", string(frame[2:]))
	})

	t.Run("long reason fits a control frame", func(t *testing.T) {
		wc := errmap.WebSocketClose{Code: errmap.CloseGoingAway, Reason: strings.Repeat("x", 200)}

		frame := wc.Frame()

		assert.Len(t, frame, 125)
		assert.Equal(t, websocket.FormatCloseMessage(errmap.CloseGoingAway, strings.Repeat("x", 123)), frame)
	})
}
