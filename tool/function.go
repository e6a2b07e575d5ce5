package tool

import "context"

// FunctionTool adapts a plain Go function into a Tool. It has no mutable
// state after construction and is safe for concurrent use.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	fn          func(ctx context.Context, args map[string]any) (string, error)
}

// NewFunctionTool constructs a FunctionTool from explicit schema and function.
//
// Example:
//
//	echo := tool.NewFunctionTool(
//	  "echo",
//	  "Echo the input back to the caller",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "text": map[string]any{"type": "string"},
//	    },
//	    "required": []string{"text"},
//	  },
//	  func(ctx context.Context, args map[string]any) (string, error) {
//	    return args["text"].(string), nil
//	  },
//	)
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(ctx context.Context, args map[string]any) (string, error),
) *FunctionTool {
	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
}

// Name implements Tool.
func (t *FunctionTool) Name() string { return t.name }

// Description implements Tool.
func (t *FunctionTool) Description() string { return t.description }

// Parameters implements Tool.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// Call implements Tool.
func (t *FunctionTool) Call(ctx context.Context, args map[string]any) (string, error) {
	return t.fn(ctx, args)
}
