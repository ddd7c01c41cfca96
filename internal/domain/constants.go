package domain

import "time"

// Normative limits for the websocket gateway.
// These are compiled defaults that can be overridden via configuration.
const (
	// Engine buffers
	ServeBufferSize     = 128 * 1024 // Per-thread service buffer handed to the engine
	DefaultRxBufferSize = 4096       // Max bytes delivered to a handler per receive callback

	// Adoption
	DefaultAdoptBacklog = 128 // Adopted sockets queued for the engine before Adopt fails

	// Admission
	DefaultAcceptWindow = 60 * time.Second // Fixed window for per-IP accept counting

	// Teardown
	DefaultKillTimeout  = 1 * time.Second  // Flush-before-close window before the socket is killed
	DefaultWriteTimeout = 10 * time.Second // Max time a single frame write may block the writer

	// Engine HTTP timeouts
	HandshakeTimeout = 10 * time.Second // Upgrade request headers must arrive within this
	IdleTimeout      = 60 * time.Second // Keep-alive idle limit for static requests

	// Presence (Redis)
	ConnectionTTL = 60 * time.Second // Presence key TTL
	RedisTimeout  = 2 * time.Second  // Max time for Redis operations

	// Graceful shutdown
	ShutdownDrainDelay      = 1 * time.Second  // Health reports 503 this long before listeners close
	ShutdownHTTPTimeout     = 5 * time.Second  // Max time for http.Server.Shutdown
	ShutdownOTELTimeout     = 5 * time.Second  // Max time to flush metrics and traces
	GracefulShutdownTimeout = 30 * time.Second // Max time to drain connections on shutdown
)
