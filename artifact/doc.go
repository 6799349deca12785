// Package artifact contains concrete implementations of core.ArtifactStore,
// used to stage uploaded roster photos and their processed variants.
//
// The canonical ArtifactStore interface lives in the core package to keep
// domain contracts central. Callers should depend on the interface rather
// than the concrete types so the backend can be swapped: in-memory for tests
// and demos, the filesystem store when uploads must survive a restart.
package artifact
