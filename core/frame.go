package core

// Frame is one unit of incremental delivery from a streaming backend. A frame
// may carry a text fragment, zero or more indexed tool-call deltas, or the
// turn-completion signal; any combination is legal. Non-streaming backends
// deliver a single frame with Done set.
type Frame struct {
	Text         string
	ToolCalls    []ToolCallDelta
	Done         bool
	FinishReason string
}

// ToolCallDelta is a partial tool-call fragment tagged with its position
// within the current turn. Index identifies the record the fragment belongs
// to; it says nothing about argument ordering. ID is delivered at most once
// per record; Name and Arguments arrive as appendable fragments.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}
