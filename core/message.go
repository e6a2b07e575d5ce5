package core

import "github.com/google/uuid"

// Conversation roles. The backend protocols all speak this four-role model.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry in a conversation. Content may be empty (models do
// emit empty assistant turns). ToolCallID and ToolName are set only on
// tool-role messages and tie a result back to the assistant tool call that
// requested it. ToolCalls is set only on assistant messages that requested
// structured tool execution.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// SystemMessage creates a system-role message.
func SystemMessage(text string) Message { return Message{Role: RoleSystem, Content: text} }

// UserMessage creates a user-role message.
func UserMessage(text string) Message { return Message{Role: RoleUser, Content: text} }

// AssistantMessage creates an assistant-role message carrying the turn text
// plus any structured tool calls the model requested.
func AssistantMessage(text string, calls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: text, ToolCalls: calls}
}

// ToolResultMessage creates the tool-role message recording one dispatch
// outcome, tagged with the originating call so backends can pair request and
// result 1:1.
func ToolResultMessage(callID, toolName, output string) Message {
	return Message{Role: RoleTool, Content: output, ToolCallID: callID, ToolName: toolName}
}

// ToolCall is a fully assembled tool invocation request surfaced by a model.
// Arguments is the raw serialized payload (JSON); it is only parsed after the
// stream signaled turn completion.
type ToolCall struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
}

// AssistantTurn is the immutable result of one assistant response cycle:
// the final reconstructed text plus zero or more complete tool calls in
// stream index order. Constructed once per turn by the assembler (streaming)
// or the model adapter (non-streaming).
type AssistantTurn struct {
	Text      string
	ToolCalls []ToolCall
}

// Message converts the turn into its conversation form.
func (t AssistantTurn) Message() Message { return AssistantMessage(t.Text, t.ToolCalls) }

// NewID generates a unique identifier for sessions and messages.
func NewID() string { return uuid.NewString() }
