package gateway

import "errors"

// Sentinel errors returned by the gateway. Shared conditions (closed session,
// backlog, negotiation) use the domain sentinels so errmap can translate them.
var (
	// ErrContextCreation wraps every failure of New.
	ErrContextCreation = errors.New("gateway: context creation failed")

	// ErrAdopt wraps every failure of Adopt.
	ErrAdopt = errors.New("gateway: adopt failed")

	// ErrMissingOrigin means the port definition has no static-file directory.
	ErrMissingOrigin = errors.New("gateway: static origin directory not configured")

	// Registry construction errors.
	ErrNoFallback        = errors.New("gateway: registry has no fallback entry")
	ErrDuplicateProtocol = errors.New("gateway: duplicate protocol")
	ErrUnknownAlias      = errors.New("gateway: alias target not registered")
	ErrEmptyName         = errors.New("gateway: protocol name is empty")
	ErrNoHandler         = errors.New("gateway: sub-protocol has no handler")
)
