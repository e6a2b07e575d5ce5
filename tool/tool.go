// Package tool implements the capability registry and the dispatcher that
// turns a model's tool-call request into exactly one tool-role conversation
// message. Tools are looked up by name, their arguments validated against a
// JSON schema, and every outcome - success, unknown tool, bad arguments,
// timeout, panic - is recorded as a result message rather than a fault.
package tool

import (
	"context"
	"fmt"
)

// Tool defines a capability an agent can invoke. Implementations must be safe
// for concurrent use; the registry is shared read-only across sessions.
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case recommended).
	Name() string

	// Description is provided to the model to explain when to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the accepted arguments.
	Parameters() map[string]any

	// Call executes the tool. The returned string is the raw output handed
	// back to the model; err marks execution failure.
	Call(ctx context.Context, args map[string]any) (string, error)
}

// ValidationError describes an argument that failed schema validation.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field %q: %s", e.Field, e.Message)
}
