// Package anthropic adapts the Anthropic Messages API (streaming and
// non-streaming, with tool use) to the engine's Model interface.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentloop/agentloop/core"
	"github.com/agentloop/agentloop/model"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
)

// Options configures the Anthropic model adapter (model id, temperature,
// max tokens, API key).
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Model wraps the Anthropic Messages API behind the generic model.Model interface.
type Model struct {
	client *anthropic.Client
	opts   Options
}

// NewModel creates a new Anthropic model using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates a new Anthropic model from an existing client.
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Generate implements unified streaming / non-streaming generation.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan core.Frame, <-chan error) {
	out := make(chan core.Frame, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := anthropic.MessageNewParams{
			Model:       m.opts.Model,
			Messages:    m.buildMessages(req.Messages),
			MaxTokens:   m.opts.MaxTokens,
			Temperature: anthropic.Float(m.opts.Temperature),
		}
		if system := extractSystem(req.Messages); len(system) > 0 {
			params.System = system
		}
		if len(req.Tools) > 0 {
			params.Tools = buildTools(req.Tools)
		}

		if req.Stream {
			m.handleStreaming(ctx, params, out, errCh)
			return
		}
		m.handleNonStreaming(ctx, params, out, errCh)
	}()

	return out, errCh
}

// buildMessages converts conversation messages to Anthropic message params.
// Tool results become tool_result blocks inside user messages, as the
// Messages API expects.
func (m *Model) buildMessages(messages []core.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	for _, msg := range messages {
		switch msg.Role {
		case core.RoleSystem:
			continue // handled via params.System
		case core.RoleUser:
			if msg.Content != "" {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
			}
		case core.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				var input interface{}
				if tc.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
						input = tc.Arguments
					}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		case core.RoleTool:
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))
		default:
			if msg.Content != "" {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
			}
		}
	}
	return out
}

func extractSystem(messages []core.Message) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam
	for _, msg := range messages {
		if msg.Role == core.RoleSystem && msg.Content != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: msg.Content})
		}
	}
	return blocks
}

func buildTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))
	for i, tdef := range tools {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}
		if params := tdef.Function.Parameters; params != nil {
			if properties, exists := params["properties"]; exists {
				inputSchema.Properties = properties
			}
			if required, exists := params["required"]; exists {
				switch req := required.(type) {
				case []string:
					inputSchema.Required = req
				case []interface{}:
					for _, r := range req {
						if s, ok := r.(string); ok {
							inputSchema.Required = append(inputSchema.Required, s)
						}
					}
				}
			}
		}
		out[i] = anthropic.ToolUnionParamOfTool(inputSchema, tdef.Function.Name)
	}
	return out
}

// handleStreaming maps Messages API stream events onto raw frames. Tool-use
// blocks surface their id and name at block start and their input as
// appendable JSON fragments, matching the assembler's delta contract.
func (m *Model) handleStreaming(
	ctx context.Context,
	params anthropic.MessageNewParams,
	out chan<- core.Frame,
	errCh chan<- error,
) {
	stream := m.client.Messages.NewStreaming(ctx, params)
	finishReason := "stop"
	for stream.Next() {
		event := stream.Current()
		var frame core.Frame
		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			if block, ok := ev.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
				frame.ToolCalls = []core.ToolCallDelta{{
					Index: int(ev.Index),
					ID:    block.ID,
					Name:  block.Name,
				}}
			}
		case anthropic.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				frame.Text = delta.Text
			case anthropic.InputJSONDelta:
				frame.ToolCalls = []core.ToolCallDelta{{
					Index:     int(ev.Index),
					Arguments: delta.PartialJSON,
				}}
			}
		case anthropic.MessageDeltaEvent:
			if ev.Delta.StopReason != "" {
				finishReason = string(ev.Delta.StopReason)
			}
		case anthropic.MessageStopEvent:
			frame.Done = true
			frame.FinishReason = finishReason
		}

		if frame.Text == "" && len(frame.ToolCalls) == 0 && !frame.Done {
			continue
		}
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
			return
		case out <- frame:
		}
	}
	if err := stream.Err(); err != nil {
		errCh <- fmt.Errorf("anthropic streaming error: %w", err)
	}
}

// handleNonStreaming delivers the response as a single Done frame.
func (m *Model) handleNonStreaming(
	ctx context.Context,
	params anthropic.MessageNewParams,
	out chan<- core.Frame,
	errCh chan<- error,
) {
	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		errCh <- fmt.Errorf("anthropic api error: %w", err)
		return
	}

	frame := core.Frame{Done: true, FinishReason: "stop"}
	if resp.StopReason != "" {
		frame.FinishReason = string(resp.StopReason)
	}
	toolIndex := 0
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			frame.Text += block.AsText().Text
		case "tool_use":
			toolBlock := block.AsToolUse()
			args := ""
			if toolBlock.Input != nil {
				if argsBytes, err := json.Marshal(toolBlock.Input); err == nil {
					args = string(argsBytes)
				}
			}
			frame.ToolCalls = append(frame.ToolCalls, core.ToolCallDelta{
				Index:     toolIndex,
				ID:        toolBlock.ID,
				Name:      toolBlock.Name,
				Arguments: args,
			})
			toolIndex++
		}
	}
	out <- frame
}

// Info returns metadata describing this Anthropic model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          string(m.opts.Model),
		Provider:      "anthropic",
		SupportsTools: true,
	}
}
