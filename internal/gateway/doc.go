// Package gateway multiplexes websocket sub-protocols over sockets adopted from
// a host-owned event loop.
//
// The host creates one Gateway per listening port with New, hands every socket
// it accepts to Adopt, and later calls Send and Close on the resulting Session.
// The gateway never accepts connections itself and never runs its own event
// loop: all session state is owned by the Loop it was created with, and every
// exported Session method must be called from a task running on that loop.
//
// Handler callbacks run synchronously on the loop and may re-enter the
// gateway (Send, Close, RequestWritable) from inside a callback. Re-entrant
// calls never recurse into the handler: writable cycles and teardown are
// always scheduled as new loop tasks.
package gateway
