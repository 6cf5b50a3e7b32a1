// Package app wires the workflow server together: configuration,
// logging, telemetry, the task registry with its runner and job queue,
// the warehouse store, and the HTTP and WebSocket transports.
//
// # Initialization Flow
//
// The typical initialization sequence:
//
//  1. Load configuration from environment and files
//  2. Initialize logging and observability
//  3. Open the warehouse store
//  4. Register the workflow tasks and build the runner and job queue
//  5. Initialize services with their dependencies
//  6. Set up HTTP handlers and middleware
//  7. Configure and start the HTTP server
//
// # Graceful Shutdown
//
// The package handles SIGINT and SIGTERM to ensure active requests
// complete, in-flight jobs drain, WebSocket connections close cleanly,
// and the warehouse store is closed.
//
// All initialization errors are returned to the caller. The app does
// not call os.Exit() directly, leaving exit control to main.
package app
