package gateway

import (
	"bytes"

	"github.com/gorilla/websocket"

	"github.com/aelexs/websocket-gateway/internal/domain"
)

// DefaultRxBufferSize is the receive chunk size used when a Protocol leaves it unset.
const DefaultRxBufferSize = domain.DefaultRxBufferSize

// MessageKind is the websocket frame type a handler writes.
type MessageKind int

const (
	TextMessage   MessageKind = websocket.TextMessage
	BinaryMessage MessageKind = websocket.BinaryMessage
)

// Handler implements one sub-protocol. Every method runs on the loop.
//
// Handlers may call back into the session (Send, Close, RequestWritable,
// Write) from any callback. Write is only accepted once per Writable cycle.
type Handler interface {
	// NewState allocates the per-session state block. It returns nil for
	// protocols that keep no state.
	NewState() State
	Established(s *Session)
	Receive(s *Session, data []byte)
	Writable(s *Session)
	// Send queues application output for the peer.
	Send(s *Session, data []byte)
	// Closed runs once when the session is torn down, before its state is released.
	Closed(s *Session)
}

// State is a handler's per-session block. Handlers embed SessionState.
type State interface {
	Base() *SessionState
}

// SessionState holds the parts of every state block the gateway itself
// touches: the pending-output buffer and the owner slot.
type SessionState struct {
	Pending bytes.Buffer
	owner   OwnerSlot
}

// Base implements State.
func (st *SessionState) Base() *SessionState { return st }

// Owner is the host object a session delivers input to.
type Owner interface {
	Input(data []byte)
	// Disconnected runs on teardown if the owner is still bound, i.e. when
	// the peer or the engine ended the session rather than the owner's Close.
	Disconnected()
}

// OwnerSlot is a non-owning reference to a session's Owner plus a liveness
// flag. Clearing it does not affect the owner; it only stops the session from
// reaching it.
type OwnerSlot struct {
	owner Owner
	live  bool
}

// Bind points the slot at o. Binding nil clears it.
func (o *OwnerSlot) Bind(owner Owner) {
	o.owner = owner
	o.live = owner != nil
}

// Get returns the owner while the slot is live.
func (o *OwnerSlot) Get() (Owner, bool) {
	if !o.live {
		return nil, false
	}
	return o.owner, true
}

// Clear drops the reference and marks the slot dead.
func (o *OwnerSlot) Clear() {
	o.owner = nil
	o.live = false
}

// Passthrough is the fallback handler: it keeps no state and ignores every event.
var Passthrough Handler = passthrough{}

type passthrough struct{}

func (passthrough) NewState() State          { return nil }
func (passthrough) Established(*Session)     {}
func (passthrough) Receive(*Session, []byte) {}
func (passthrough) Writable(*Session)        {}
func (passthrough) Send(*Session, []byte)    {}
func (passthrough) Closed(*Session)          {}
