// Package telnet implements the binary telnet-in-websocket sub-protocol.
// Frames are binary. Outbound IAC bytes are doubled; inbound IAC sequences
// are stripped and IAC IAC is folded back to a single data byte. Option
// negotiation is refused: every DO is answered WONT and every WILL with DONT.
package telnet

import (
	"bytes"
	"unsafe"

	"github.com/aelexs/websocket-gateway/internal/gateway"
	"github.com/aelexs/websocket-gateway/pkg/protocol"
)

// Telnet command bytes (RFC 854).
const (
	IAC  byte = 255
	DONT byte = 254
	DO   byte = 253
	WONT byte = 252
	WILL byte = 251
	SB   byte = 250
	SE   byte = 240
)

// MaxFrame bounds the payload of a single outbound frame.
const MaxFrame = 16 * 1024

type decodeState uint8

const (
	stData decodeState = iota
	stIAC
	stOption
	stSub
	stSubIAC
)

// State is the per-session block. The decoder state survives across
// Receive calls since a sequence may straddle two chunks.
type State struct {
	gateway.SessionState
	dec  decodeState
	verb byte
}

// Handler is the telnet sub-protocol handler.
type Handler struct{}

// Protocol returns the registry entry for the binary sub-protocol.
func Protocol() gateway.Protocol {
	return gateway.Protocol{
		Name:         protocol.NameTelnet,
		ID:           protocol.IDTelnet,
		Handler:      Handler{},
		StateSize:    int(unsafe.Sizeof(State{})),
		RxBufferSize: gateway.DefaultRxBufferSize,
	}
}

func (Handler) NewState() gateway.State { return &State{} }

func (Handler) Established(*gateway.Session) {}

func (Handler) Receive(s *gateway.Session, data []byte) {
	st, ok := s.State().(*State)
	if !ok {
		return
	}
	in, reply := st.decode(data)
	if len(reply) > 0 {
		st.Pending.Write(reply)
		s.RequestWritable()
	}
	if len(in) == 0 {
		return
	}
	if owner, ok := s.Owner(); ok {
		owner.Input(in)
	}
}

// Send escapes data into the pending buffer and asks for a writable cycle.
func (Handler) Send(s *gateway.Session, data []byte) {
	st, ok := s.State().(*State)
	if !ok || len(data) == 0 {
		return
	}
	st.Pending.Write(Escape(data))
	s.RequestWritable()
}

// Writable flushes up to MaxFrame pending bytes as one binary frame.
func (Handler) Writable(s *gateway.Session) {
	st, ok := s.State().(*State)
	if !ok || st.Pending.Len() == 0 {
		return
	}
	frame := bytes.Clone(st.Pending.Next(MaxFrame))
	if err := s.Write(gateway.BinaryMessage, frame); err != nil {
		return
	}
	if st.Pending.Len() > 0 {
		s.RequestWritable()
	}
}

func (Handler) Closed(s *gateway.Session) {
	if st, ok := s.State().(*State); ok {
		st.dec = stData
	}
}

// Escape doubles every IAC byte in data.
func Escape(data []byte) []byte {
	n := bytes.Count(data, []byte{IAC})
	if n == 0 {
		return bytes.Clone(data)
	}
	out := make([]byte, 0, len(data)+n)
	for _, b := range data {
		out = append(out, b)
		if b == IAC {
			out = append(out, IAC)
		}
	}
	return out
}

// decode strips telnet commands from data. It returns the application bytes
// and any negotiation replies to send back.
func (st *State) decode(data []byte) (in, reply []byte) {
	in = make([]byte, 0, len(data))
	for _, b := range data {
		switch st.dec {
		case stData:
			if b == IAC {
				st.dec = stIAC
				continue
			}
			in = append(in, b)
		case stIAC:
			switch b {
			case IAC:
				in = append(in, IAC)
				st.dec = stData
			case DO, DONT, WILL, WONT:
				st.verb = b
				st.dec = stOption
			case SB:
				st.dec = stSub
			default:
				st.dec = stData
			}
		case stOption:
			switch st.verb {
			case DO:
				reply = append(reply, IAC, WONT, b)
			case WILL:
				reply = append(reply, IAC, DONT, b)
			}
			st.dec = stData
		case stSub:
			if b == IAC {
				st.dec = stSubIAC
			}
		case stSubIAC:
			if b == SE {
				st.dec = stData
			} else {
				st.dec = stSub
			}
		}
	}
	return in, reply
}
