package errmap_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aelexs/websocket-gateway/internal/domain"
	"github.com/aelexs/websocket-gateway/internal/errmap"
)

func TestToHTTPError(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		wantStatusCode int
		wantCode       string
	}{
		// Nil error
		{"nil error", nil, http.StatusOK, ""},

		// Negotiation errors
		{"ErrNoSubprotocol", domain.ErrNoSubprotocol, http.StatusBadRequest, "NO_SUBPROTOCOL"},

		// Validation errors
		{"ErrInvalidInput", domain.ErrInvalidInput, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"ErrEmptyID", domain.ErrEmptyID, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"ErrInvalidID", domain.ErrInvalidID, http.StatusBadRequest, "INVALID_ARGUMENT"},

		// Session errors
		{"ErrSessionClosed", domain.ErrSessionClosed, http.StatusGone, "SESSION_CLOSED"},
		{"ErrWriteInFlight", domain.ErrWriteInFlight, http.StatusConflict, "WRITE_IN_FLIGHT"},
		{"ErrRateLimited", domain.ErrRateLimited, http.StatusTooManyRequests, "RATE_LIMITED"},

		// Availability
		{"ErrShuttingDown", domain.ErrShuttingDown, http.StatusServiceUnavailable, "SHUTTING_DOWN"},
		{"ErrBacklogFull", domain.ErrBacklogFull, http.StatusServiceUnavailable, "BACKLOG_FULL"},

		{"ErrConfigRequired", domain.ErrConfigRequired, http.StatusInternalServerError, "MISCONFIGURED"},

		// Wrapped errors
		{"wrapped ErrBacklogFull", fmt.Errorf("adopt: %w", domain.ErrBacklogFull), http.StatusServiceUnavailable, "BACKLOG_FULL"},

		// Unknown errors map to Internal
		{"unknown error", fmt.Errorf("unexpected"), http.StatusInternalServerError, "INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errmap.ToHTTPError(tt.err)
			assert.Equal(t, tt.wantStatusCode, got.StatusCode, "expected status %d, got %d", tt.wantStatusCode, got.StatusCode)
			assert.Equal(t, tt.wantCode, got.Code, "expected code %q, got %q", tt.wantCode, got.Code)
		})
	}
}

func TestHTTPErrorImplementsError(t *testing.T) {
	httpErr := errmap.ToHTTPError(domain.ErrBacklogFull)
	var err error = httpErr
	assert.NotEmpty(t, err.Error())
}

func TestHTTPErrorHidesInternalDetails(t *testing.T) {
	got := errmap.ToHTTPError(fmt.Errorf("open /etc/secret: permission denied"))
	assert.Equal(t, "internal error", got.Message)
}

func TestHTTPRetryableRefusals(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrBacklogFull, http.StatusServiceUnavailable},
		{domain.ErrRateLimited, http.StatusTooManyRequests},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.True(t, domain.IsRetryable(tt.err))
			assert.Equal(t, tt.want, errmap.ToHTTPError(tt.err).StatusCode)
		})
	}
}

func TestWriteResponse(t *testing.T) {
	var buf bytes.Buffer
	he := errmap.ToHTTPError(fmt.Errorf("adopt 10.0.0.7:5100: %w", domain.ErrRateLimited))

	require.NoError(t, he.WriteResponse(&buf, 1500*time.Millisecond))

	resp, err := http.ReadResponse(bufio.NewReader(&buf), nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "2", resp.Header.Get("Retry-After"))
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.True(t, resp.Close)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "RATE_LIMITED", body["code"])
	assert.Contains(t, body["message"], "10.0.0.7")
}

func TestWriteResponse_NoRetryAfter(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, errmap.ToHTTPError(domain.ErrShuttingDown).WriteResponse(&buf, 0))

	assert.True(t, strings.HasPrefix(buf.String(), "HTTP/1.1 503 Service Unavailable\r\n"))
	assert.NotContains(t, buf.String(), "Retry-After")
}
