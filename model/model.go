// Package model defines the language-model abstraction and the resilient
// client that wraps it. Backends implement Model by translating a normalized
// Request into provider calls and emitting frames; Client layers retry with
// exponential backoff, per-call timeouts and streaming reassembly on top.
package model

import (
	"context"

	"github.com/agentloop/agentloop/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the
// model. Parameters is a JSON Schema object.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request captures the normalized model input: the full conversation so far,
// the available tool schemas (empty slice means the schemas field is omitted
// from the backend request) and the delivery mode.
type Request struct {
	Messages []core.Message   `json:"messages"`
	Tools    []ToolDefinition `json:"tools,omitempty"`
	Stream   bool             `json:"stream,omitempty"`
}

// Model is the minimal backend interface. Generate returns a frame channel
// and an error channel; both are closed when the call completes. Streaming
// backends emit many frames ending with one that has Done set; non-streaming
// backends emit exactly one Done frame.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan core.Frame, <-chan error)

	// Info returns metadata about the model implementation.
	Info() Info
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"`
	SupportsTools bool   `json:"supports_tools"`
}
