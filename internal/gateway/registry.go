package gateway

import (
	"fmt"

	"github.com/aelexs/websocket-gateway/pkg/protocol"
)

// Protocol describes one registered sub-protocol.
type Protocol struct {
	Name    string
	ID      protocol.ID
	Handler Handler
	// StateSize is the size in bytes of the per-session state block the
	// handler allocates.
	StateSize int
	// RxBufferSize bounds how many bytes a single Receive callback carries.
	RxBufferSize int
}

// Alias maps a legacy wire name onto a registered protocol.
type Alias struct {
	Name   string
	Target string
}

// Registry is an immutable protocol table. Build it once at startup and share
// it by pointer; nothing mutates it after NewRegistry returns.
type Registry struct {
	entries    []Protocol
	index      map[string]int
	order      []string
	extensions []protocol.Extension
}

// NewRegistry validates entries and aliases and returns the table. Entries
// keep their order; aliases are advertised after all canonical names. The
// fallback entry (protocol.IDHTTP) is required and gets the Passthrough
// handler when none is given.
func NewRegistry(entries []Protocol, aliases []Alias, extensions ...protocol.Extension) (*Registry, error) {
	r := &Registry{
		entries:    make([]Protocol, 0, len(entries)),
		index:      make(map[string]int, len(entries)+len(aliases)),
		extensions: append([]protocol.Extension(nil), extensions...),
	}

	ids := make(map[protocol.ID]string, len(entries))
	for _, p := range entries {
		if p.Name == "" {
			return nil, ErrEmptyName
		}
		if _, dup := r.index[p.Name]; dup {
			return nil, fmt.Errorf("%w: name %q", ErrDuplicateProtocol, p.Name)
		}
		if other, dup := ids[p.ID]; dup {
			return nil, fmt.Errorf("%w: id %d used by %q and %q", ErrDuplicateProtocol, p.ID, other, p.Name)
		}
		if p.Handler == nil {
			if p.ID != protocol.IDHTTP {
				return nil, fmt.Errorf("%w: %q", ErrNoHandler, p.Name)
			}
			p.Handler = Passthrough
		}
		if p.RxBufferSize <= 0 {
			p.RxBufferSize = DefaultRxBufferSize
		}
		ids[p.ID] = p.Name
		r.index[p.Name] = len(r.entries)
		r.order = append(r.order, p.Name)
		r.entries = append(r.entries, p)
	}
	if _, ok := ids[protocol.IDHTTP]; !ok {
		return nil, ErrNoFallback
	}

	// Aliases resolve to the canonical slot here, once, so lookups by either
	// name return the identical descriptor.
	for _, a := range aliases {
		if a.Name == "" {
			return nil, ErrEmptyName
		}
		if _, dup := r.index[a.Name]; dup {
			return nil, fmt.Errorf("%w: alias %q", ErrDuplicateProtocol, a.Name)
		}
		slot, ok := r.index[a.Target]
		if !ok || r.entries[slot].Name != a.Target {
			return nil, fmt.Errorf("%w: %q -> %q", ErrUnknownAlias, a.Name, a.Target)
		}
		r.index[a.Name] = slot
		r.order = append(r.order, a.Name)
	}

	return r, nil
}

// Lookup resolves a wire name, canonical or alias, to its descriptor.
func (r *Registry) Lookup(name string) (Protocol, bool) {
	slot, ok := r.index[name]
	if !ok {
		return Protocol{}, false
	}
	return r.entries[slot], true
}

// ByID returns the canonical descriptor for id.
func (r *Registry) ByID(id protocol.ID) (Protocol, bool) {
	for _, p := range r.entries {
		if p.ID == id {
			return p, true
		}
	}
	return Protocol{}, false
}

// Fallback returns the static/HTTP entry every adopted socket starts on.
func (r *Registry) Fallback() Protocol {
	p, _ := r.ByID(protocol.IDHTTP)
	return p
}

// Names returns every resolvable name, fallback first and aliases last.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Subprotocols returns the names offered during the upgrade handshake: every
// name except those bound to the fallback entry.
func (r *Registry) Subprotocols() []string {
	out := make([]string, 0, len(r.order))
	for _, name := range r.order {
		if r.entries[r.index[name]].ID != protocol.IDHTTP {
			out = append(out, name)
		}
	}
	return out
}

// Extensions returns the extensions offered to every client.
func (r *Registry) Extensions() []protocol.Extension {
	return append([]protocol.Extension(nil), r.extensions...)
}

// Dispatchable reports whether sends on id reach a handler.
func (r *Registry) Dispatchable(id protocol.ID) bool {
	if id == protocol.IDHTTP {
		return false
	}
	_, ok := r.ByID(id)
	return ok
}
