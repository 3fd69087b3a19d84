// Package application provides application initialization and dependency wiring.
// It selects the fleet storage backend, seeds configured fleets and builds the
// consolidation handlers, router, metrics endpoint and HTTP server, keeping the
// main package focused on CLI parsing and orchestration.
package application
