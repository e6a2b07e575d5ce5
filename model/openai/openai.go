// Package openai adapts the OpenAI Chat Completions API (including streaming
// and function/tool calling) to the engine's Model interface. Streaming
// chunks are forwarded as raw delta frames; reassembly is the stream
// package's job, so splitting behavior on the wire is preserved end to end.
package openai

import (
	"context"
	"fmt"

	"github.com/agentloop/agentloop/core"
	"github.com/agentloop/agentloop/model"
	"github.com/openai/openai-go"
)

// Options configure the OpenAI model adapter. Fields mirror a subset of Chat
// Completion parameters; extend via functional options without breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Model wraps the OpenAI Chat Completions API behind the generic model.Model interface.
type Model struct {
	client *openai.Client
	opts   Options
}

// NewModel creates a new OpenAI model using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
	client := openai.NewClient()
	return NewModelFromClient(&client, optFns...)
}

// NewModelFromClient creates a new OpenAI model from an existing client.
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
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
		params := m.buildParams(req)
		if req.Stream {
			m.handleStreaming(ctx, params, out, errCh)
			return
		}
		m.handleNonStreaming(ctx, params, out, errCh)
	}()
	return out, errCh
}

// buildParams converts the normalized request into OpenAI chat parameters.
func (m *Model) buildParams(req model.Request) openai.ChatCompletionNewParams {
	var messages []openai.ChatCompletionMessageParamUnion
	for _, msg := range req.Messages {
		switch msg.Role {
		case core.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case core.RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		case core.RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				messages = append(messages, openai.AssistantMessage(msg.Content))
				continue
			}
			toolCalls := make([]openai.ChatCompletionMessageToolCallParam, len(msg.ToolCalls))
			for i, tc := range msg.ToolCalls {
				toolCalls[i] = openai.ChatCompletionMessageToolCallParam{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				}
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role:      "assistant",
					ToolCalls: toolCalls,
				},
			})
		case core.RoleTool:
			messages = append(messages, openai.ToolMessage(msg.Content, msg.ToolCallID))
		default:
			if msg.Content != "" {
				messages = append(messages, openai.UserMessage(msg.Content))
			}
		}
	}

	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               m.opts.Model,
		Temperature:         openai.Float(m.opts.Temperature),
		MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
	}
	if len(req.Tools) == 0 {
		return params
	}
	tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
	for i, tdef := range req.Tools {
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        tdef.Function.Name,
				Description: openai.String(tdef.Function.Description),
				Parameters:  tdef.Function.Parameters,
			},
		}
	}
	params.Tools = tools
	return params
}

// handleStreaming forwards each chunk as one raw frame. Text and tool-call
// deltas are passed through untouched so the assembler sees the backend's
// exact splitting.
func (m *Model) handleStreaming(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	out chan<- core.Frame,
	errCh chan<- error,
) {
	stream := m.client.Chat.Completions.NewStreaming(ctx, params)
	for stream.Next() {
		ck := stream.Current()
		for _, ch := range ck.Choices {
			frame := core.Frame{Text: ch.Delta.Content}
			for _, tc := range ch.Delta.ToolCalls {
				frame.ToolCalls = append(frame.ToolCalls, core.ToolCallDelta{
					Index:     int(tc.Index),
					ID:        tc.ID,
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				})
			}
			if ch.FinishReason != "" {
				frame.Done = true
				frame.FinishReason = ch.FinishReason
			}
			if frame.Text != "" || len(frame.ToolCalls) > 0 || frame.Done {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case out <- frame:
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		errCh <- fmt.Errorf("openai streaming error: %w", err)
	}
}

// handleNonStreaming delivers the completion as a single Done frame.
func (m *Model) handleNonStreaming(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	out chan<- core.Frame,
	errCh chan<- error,
) {
	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		errCh <- fmt.Errorf("openai api error: %w", err)
		return
	}
	if len(resp.Choices) == 0 {
		errCh <- fmt.Errorf("no choices returned")
		return
	}
	ch0 := resp.Choices[0]
	frame := core.Frame{Text: ch0.Message.Content, Done: true, FinishReason: ch0.FinishReason}
	for i, tc := range ch0.Message.ToolCalls {
		frame.ToolCalls = append(frame.ToolCalls, core.ToolCallDelta{
			Index:     i,
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	out <- frame
}

// Info returns metadata describing this OpenAI model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          m.opts.Model,
		Provider:      "openai",
		SupportsTools: true,
	}
}
