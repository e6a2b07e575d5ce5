// Package logging provides a tiny abstraction over structured loggers so the
// engine can depend on a minimal interface (Logger) while letting users plug
// in slog, zerolog or anything else. All engine components accept a Logger
// and default to NoOpLogger when given nil.
package logging
