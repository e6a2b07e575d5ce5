// Package session maps external conversation identifiers onto live engine
// state. The Manager owns the id -> session table; each Session owns one
// conversation and one iteration controller, and serializes request
// processing so concurrent inputs for the same id never interleave.
//
// Sessions are volatile and process local. Persistent backends (Redis,
// Postgres, etc.) would slot in behind the Manager without changing callers;
// only the wiring layer decides which to instantiate.
package session
