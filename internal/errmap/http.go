package errmap

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/aelexs/websocket-gateway/internal/domain"
)

// HTTPError is the JSON body the gateway sends when it answers a connection
// with plain HTTP instead of upgrading it.
type HTTPError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e HTTPError) Error() string {
	return e.Message
}

// First match wins (errors.Is), so wrapped causes map like their sentinel.
var httpMappings = []struct {
	err        error
	statusCode int
	code       string
}{
	{domain.ErrNoSubprotocol, http.StatusBadRequest, "NO_SUBPROTOCOL"},
	{domain.ErrInvalidInput, http.StatusBadRequest, "INVALID_ARGUMENT"},
	{domain.ErrEmptyID, http.StatusBadRequest, "INVALID_ARGUMENT"},
	{domain.ErrInvalidID, http.StatusBadRequest, "INVALID_ARGUMENT"},

	{domain.ErrSessionClosed, http.StatusGone, "SESSION_CLOSED"},
	{domain.ErrWriteInFlight, http.StatusConflict, "WRITE_IN_FLIGHT"},
	{domain.ErrRateLimited, http.StatusTooManyRequests, "RATE_LIMITED"},

	{domain.ErrShuttingDown, http.StatusServiceUnavailable, "SHUTTING_DOWN"},
	{domain.ErrBacklogFull, http.StatusServiceUnavailable, "BACKLOG_FULL"},

	{domain.ErrConfigRequired, http.StatusInternalServerError, "MISCONFIGURED"},
}

// ToHTTPError converts a domain error to an HTTP error. Unmapped errors
// become a bare 500 so internal details never reach the client.
func ToHTTPError(err error) HTTPError {
	if err == nil {
		return HTTPError{StatusCode: http.StatusOK}
	}
	for _, m := range httpMappings {
		if errors.Is(err, m.err) {
			return HTTPError{StatusCode: m.statusCode, Code: m.code, Message: err.Error()}
		}
	}
	return HTTPError{StatusCode: http.StatusInternalServerError, Code: "INTERNAL", Message: "internal error"}
}

// WriteResponse writes e as a complete HTTP/1.1 response with
// "Connection: close", for sockets refused before any request was read.
// retryAfter rounds up to whole seconds; zero omits the header.
func (e HTTPError) WriteResponse(w io.Writer, retryAfter time.Duration) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode %s: %w", e.Code, err)
	}
	resp := &http.Response{
		StatusCode:    e.StatusCode,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": {"application/json"}},
		ContentLength: int64(len(body)),
		Body:          io.NopCloser(bytes.NewReader(body)),
		Close:         true,
	}
	if retryAfter > 0 {
		secs := (retryAfter + time.Second - 1) / time.Second
		resp.Header.Set("Retry-After", strconv.FormatInt(int64(secs), 10))
	}
	return resp.Write(w)
}
