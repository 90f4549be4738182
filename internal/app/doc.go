// Package app provides application initialization and lifecycle management
// for the web service. It wires configuration, logging, OpenTelemetry, the
// SQLite persister, the upstream source client, and the service layer, then
// serves the HTTP API with graceful shutdown on SIGINT and SIGTERM.
//
// The initialization sequence is:
//
//	1. Load configuration from file and environment
//	2. Initialize logging and observability
//	3. Open the database and create the source client
//	4. Wire the data and health services
//	5. Set up the router, the HTTP server, and the cron scheduler
//
// All initialization errors are returned to the caller; the package never
// calls os.Exit directly.
package app
