package adapter

import (
	"context"
)

// Adapter is a network front end managed by server.Server.
//
// Each adapter owns its listener and connection lifecycle. Dependencies are
// injected through the adapter's constructor.
//
// Lifecycle:
//  1. Creation: adapter built with its configuration and dependencies
//  2. Startup: Serve() starts listening and blocks until shutdown
//  3. Shutdown: Stop() or context cancellation stops accepting, then waits
//     for in-flight work up to the adapter's shutdown timeout
//
// Thread safety:
// Implementations must be safe for concurrent use. Stop() may be called
// concurrently with Serve().
type Adapter interface {
	// Serve starts the server and blocks until ctx is cancelled or an
	// unrecoverable error occurs.
	//
	// Returning before ctx is cancelled is treated as fatal by server.Server,
	// which then stops every other adapter.
	Serve(ctx context.Context) error

	// Stop initiates graceful shutdown and waits for active connections
	// until ctx is done. It must be idempotent.
	Stop(ctx context.Context) error

	// Protocol returns a constant human-readable name for logs and metrics.
	Protocol() string

	// Port returns the configured TCP port.
	Port() int
}
