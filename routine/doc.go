// Package routine implements the step-table engine that drives a session
// through an ordered intake workflow. A routine is an explicit, enumerable
// table of immutable steps with typed transitions; the engine is a pure
// function of (position, collected fields, user input) and performs no I/O.
// Branch predicates are evaluated against values placed into the session's
// field map by earlier actions, never by calling out.
//
// Malformed tables (dangling transition targets, missing terminal, gates
// without a fallback) are rejected at construction time so they can fail
// process startup instead of a live request.
package routine
