// Package domain contains the gateway's core value types, sentinel errors and
// normative limits. It has no dependencies on transport or storage.
package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// SessionID names one adopted connection for logs and presence keys.
// The zero value means "no session".
type SessionID struct {
	u uuid.UUID
}

// NewSessionID returns a random (v4) id.
func NewSessionID() SessionID {
	return SessionID{u: uuid.New()}
}

// ParseSessionID accepts the canonical form String produces.
func ParseSessionID(raw string) (SessionID, error) {
	if raw == "" {
		return SessionID{}, ErrEmptyID
	}
	u, err := uuid.Parse(raw)
	if err != nil || u == uuid.Nil {
		return SessionID{}, fmt.Errorf("session id %q: %w", raw, ErrInvalidID)
	}
	return SessionID{u: u}, nil
}

// String is "" for the zero id.
func (id SessionID) String() string {
	if id.IsZero() {
		return ""
	}
	return id.u.String()
}

func (id SessionID) IsZero() bool { return id.u == uuid.Nil }
