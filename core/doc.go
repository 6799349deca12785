// Package core defines the shared data model and collaborator interfaces of
// rosterflow: sessions and their workflow position, the external record and
// store boundaries, the error taxonomy, and the constrained ToolContext
// handed to action implementations.
//
// The package is dependency-light on purpose. Everything that talks to the
// outside world (database, payment provider, SMS, object storage, photo
// pipeline) is an interface here and an implementation elsewhere, so the
// orchestration core stays testable without network mocking.
package core
