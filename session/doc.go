// Package session houses concrete implementations of core.SessionStore.
// The interface itself (and the Session struct) live in the core package
// to centralize domain contracts. Keeping only implementations here prevents
// higher level packages (orchestrator, httpapi) from depending on concrete
// storage.
//
// Two backends are provided: an in-memory store for tests and ephemeral demo
// servers, and a GORM-backed store (sqlite or postgres) for deployments that
// need sessions to survive a restart. Only the wiring layer decides which
// implementation to instantiate.
package session
