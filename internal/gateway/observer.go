package gateway

import "github.com/aelexs/websocket-gateway/internal/domain"

// Info is a snapshot of a session for observers.
type Info struct {
	ID          domain.SessionID
	Port        string
	Protocol    string
	Subprotocol string
	RemoteAddr  string
	Encrypted   bool
}

// Observer is told about session lifecycle transitions. Methods run on the
// loop and must not block.
type Observer interface {
	SessionEstablished(info Info)
	SessionClosed(info Info)
}

type nopObserver struct{}

func (nopObserver) SessionEstablished(Info) {}
func (nopObserver) SessionClosed(Info)      {}
