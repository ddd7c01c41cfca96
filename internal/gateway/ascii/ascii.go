// Package ascii implements the text sub-protocol: every message is a text
// frame and input is handed to the session owner unchanged.
package ascii

import (
	"bytes"
	"unicode/utf8"
	"unsafe"

	"github.com/aelexs/websocket-gateway/internal/gateway"
	"github.com/aelexs/websocket-gateway/pkg/protocol"
)

// MaxFrame bounds the payload of a single outbound frame.
const MaxFrame = 16 * 1024

// State is the per-session block.
type State struct {
	gateway.SessionState
}

// Handler is the text sub-protocol handler. It is stateless; per-session data
// lives in State.
type Handler struct{}

// Protocol returns the registry entry for the text sub-protocol.
func Protocol() gateway.Protocol {
	return gateway.Protocol{
		Name:         protocol.NameASCII,
		ID:           protocol.IDASCII,
		Handler:      Handler{},
		StateSize:    int(unsafe.Sizeof(State{})),
		RxBufferSize: gateway.DefaultRxBufferSize,
	}
}

func (Handler) NewState() gateway.State { return &State{} }

func (Handler) Established(*gateway.Session) {}

func (Handler) Receive(s *gateway.Session, data []byte) {
	if owner, ok := s.Owner(); ok {
		owner.Input(data)
	}
}

// Send appends data to the pending buffer and asks for a writable cycle.
func (Handler) Send(s *gateway.Session, data []byte) {
	st, ok := s.State().(*State)
	if !ok || len(data) == 0 {
		return
	}
	st.Pending.Write(data)
	s.RequestWritable()
}

// Writable flushes up to MaxFrame pending bytes as one text frame, never
// splitting a UTF-8 sequence across frames.
func (Handler) Writable(s *gateway.Session) {
	st, ok := s.State().(*State)
	if !ok || st.Pending.Len() == 0 {
		return
	}
	frame := bytes.Clone(st.Pending.Next(cut(st.Pending.Bytes(), MaxFrame)))
	if err := s.Write(gateway.TextMessage, frame); err != nil {
		return
	}
	if st.Pending.Len() > 0 {
		s.RequestWritable()
	}
}

// cut returns how many bytes of p fit in one frame of at most limit bytes
// without ending inside a rune. Input that is not UTF-8 is cut at limit.
func cut(p []byte, limit int) int {
	if len(p) <= limit {
		return len(p)
	}
	for n := limit; n > 0 && n > limit-utf8.UTFMax; n-- {
		if utf8.RuneStart(p[n]) {
			return n
		}
	}
	return limit
}

// Closed has nothing to release; the gateway notifies the owner itself.
func (Handler) Closed(*gateway.Session) {}
