// Package core defines the shared data model of the orchestration engine:
// conversation messages, assembled assistant turns, streaming frames and the
// best-effort observer contract. Higher level packages (model, stream, tool,
// flow, session) depend on core; core depends on nothing but the standard
// library and uuid.
package core
