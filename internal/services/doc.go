// Package services holds the application layer between the HTTP transport
// and the pipeline. DataService owns fetching, running the pipeline over the
// configured datasets, and persistence; HealthService answers health and
// readiness probes. Services return the package's sentinel errors and leave
// HTTP status mapping to the transport layer.
package services
