package flow

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/agentloop/agentloop/core"
	"github.com/agentloop/agentloop/model"
	"github.com/agentloop/agentloop/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastClient(backend model.Model) *model.Client {
	return model.NewClient(backend, model.ClientConfig{
		MaxRetries:  1,
		BackoffBase: time.Millisecond,
		BackoffCap:  2 * time.Millisecond,
	}, nil, nil)
}

func newTestController(backend model.Model, registry *tool.Registry, cfg Config, observer core.Observer) *Controller {
	if registry == nil {
		registry = tool.MustRegistry()
	}
	dispatcher := tool.NewDispatcher(registry, tool.DefaultDispatcherConfig(), nil, observer)
	conv := core.NewConversation("You are a helpful assistant.")
	return NewController("s1", conv, fastClient(backend), registry, dispatcher, cfg, nil, observer)
}

func TestController_FinalAnswerFirstIteration(t *testing.T) {
	backend := model.NewScriptModel().AddTextTurn("FINAL_ANSWER: forty-two")
	c := newTestController(backend, nil, DefaultConfig(), nil)

	res := c.Run(context.Background(), "what is the answer?")
	assert.Equal(t, OutcomeAnswered, res.Outcome)
	assert.Equal(t, "forty-two", res.Answer)
	assert.Equal(t, 1, res.Iterations)
}

func TestController_ToolCallRoundTrip(t *testing.T) {
	echo := tool.NewFunctionTool("echo", "echoes its input", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{"type": "string"},
		},
		"required": []string{"text"},
	}, func(ctx context.Context, args map[string]any) (string, error) {
		return fmt.Sprintf("echo: %v", args["text"]), nil
	})

	backend := model.NewScriptModel().
		AddToolCallTurn("call_1", "echo", `{"text":"hi"}`).
		AddTextTurn("FINAL_ANSWER: done")
	c := newTestController(backend, tool.MustRegistry(echo), DefaultConfig(), nil)

	res := c.Run(context.Background(), "use the echo tool")
	require.Equal(t, OutcomeAnswered, res.Outcome)
	assert.Equal(t, "done", res.Answer)
	assert.Equal(t, 2, res.Iterations)

	msgs := c.Conversation().Messages()
	var toolMsg *core.Message
	for i := range msgs {
		if msgs[i].Role == core.RoleTool {
			toolMsg = &msgs[i]
		}
	}
	require.NotNil(t, toolMsg)
	assert.Equal(t, "call_1", toolMsg.ToolCallID)
	assert.Equal(t, "echo: hi", toolMsg.Content)
}

func TestController_UnknownToolContinuesLoop(t *testing.T) {
	// An unresolvable tool must produce a tool-role error record and keep
	// the loop alive rather than aborting the run.
	backend := model.NewScriptModel().
		AddToolCallTurn("call_1", "foo", `{}`).
		AddTextTurn("FINAL_ANSWER: recovered")
	c := newTestController(backend, tool.MustRegistry(), DefaultConfig(), nil)

	res := c.Run(context.Background(), "try foo")
	require.Equal(t, OutcomeAnswered, res.Outcome)
	assert.Equal(t, "recovered", res.Answer)
	assert.Equal(t, 2, res.Iterations)

	msgs := c.Conversation().Messages()
	var found bool
	for _, msg := range msgs {
		if msg.Role == core.RoleTool && strings.Contains(msg.Content, `unknown tool "foo"`) {
			assert.Equal(t, "call_1", msg.ToolCallID)
			assert.True(t, strings.HasPrefix(msg.Content, "Tool execution failed:"))
			found = true
		}
	}
	assert.True(t, found, "tool failure must be recorded as a tool-role message")
}

func TestController_MultipleToolCallsDispatchedInOrder(t *testing.T) {
	var order []string
	mk := func(name string) tool.Tool {
		return tool.NewFunctionTool(name, name, nil, func(ctx context.Context, args map[string]any) (string, error) {
			order = append(order, name)
			return "ok", nil
		})
	}
	backend := model.NewScriptModel().
		AddTurn(core.Frame{
			ToolCalls: []core.ToolCallDelta{
				{Index: 0, ID: "c0", Name: "alpha", Arguments: "{}"},
				{Index: 1, ID: "c1", Name: "beta", Arguments: "{}"},
			},
			Done:         true,
			FinishReason: "tool_calls",
		}).
		AddTextTurn("FINAL_ANSWER: both ran")
	c := newTestController(backend, tool.MustRegistry(mk("alpha"), mk("beta")), DefaultConfig(), nil)

	res := c.Run(context.Background(), "run both")
	require.Equal(t, OutcomeAnswered, res.Outcome)
	assert.Equal(t, []string{"alpha", "beta"}, order)
}

func TestController_TextToolCallNeverExecuted(t *testing.T) {
	var executed bool
	bomb := tool.NewFunctionTool("bomb", "must not run", nil,
		func(ctx context.Context, args map[string]any) (string, error) {
			executed = true
			return "boom", nil
		})

	backend := model.NewScriptModel().
		AddTextTurn(`TOOL_CALL: {"tool_name": "bomb", "parameters": {}}`).
		AddTextTurn("FINAL_ANSWER: ok")
	c := newTestController(backend, tool.MustRegistry(bomb), DefaultConfig(), nil)

	res := c.Run(context.Background(), "go")
	require.Equal(t, OutcomeAnswered, res.Outcome)
	assert.False(t, executed, "text-embedded tool calls are flagged, never run")

	var corrected bool
	for _, msg := range c.Conversation().Messages() {
		if msg.Role == core.RoleSystem && strings.Contains(msg.Content, "not executed") {
			corrected = true
		}
	}
	assert.True(t, corrected, "corrective system note must be appended")
}

func TestController_IterationLimit(t *testing.T) {
	backend := model.NewScriptModel()
	for i := 0; i < 3; i++ {
		backend.AddTextTurn("THOUGHT: still thinking")
	}
	c := newTestController(backend, nil, Config{MaxIterations: 3, EmptyResponseThreshold: 3}, nil)

	res := c.Run(context.Background(), "never finishes")
	assert.Equal(t, OutcomeAnswered, res.Outcome)
	assert.Equal(t, MsgIterationLimit, res.Answer)
	assert.Equal(t, 3, res.Iterations)
	assert.Equal(t, 3, backend.Calls())

	last, ok := c.Conversation().Last()
	require.True(t, ok)
	assert.Equal(t, core.RoleAssistant, last.Role)
	assert.Equal(t, MsgIterationLimit, last.Content)
}

func TestController_EmptyResponsesForceAnswerAtThreshold(t *testing.T) {
	// Five scripted empty turns, threshold three: the canned answer must
	// land on iteration three, leaving the remaining turns unconsumed.
	backend := model.NewScriptModel()
	for i := 0; i < 5; i++ {
		backend.AddTurn(core.Frame{Done: true, FinishReason: "stop"})
	}
	c := newTestController(backend, nil, Config{MaxIterations: 10, EmptyResponseThreshold: 3}, nil)

	res := c.Run(context.Background(), "say something")
	assert.Equal(t, OutcomeAnswered, res.Outcome)
	assert.Equal(t, MsgEmptyResponses, res.Answer)
	assert.Equal(t, 3, res.Iterations)
	assert.Equal(t, 3, backend.Calls())
}

func TestController_NonEmptyTurnResetsEmptyStreak(t *testing.T) {
	backend := model.NewScriptModel().
		AddTurn(core.Frame{Done: true}).
		AddTurn(core.Frame{Done: true}).
		AddTextTurn("THOUGHT: back").
		AddTurn(core.Frame{Done: true}).
		AddTurn(core.Frame{Done: true}).
		AddTurn(core.Frame{Done: true})
	c := newTestController(backend, nil, Config{MaxIterations: 10, EmptyResponseThreshold: 3}, nil)

	res := c.Run(context.Background(), "flaky")
	assert.Equal(t, MsgEmptyResponses, res.Answer)
	assert.Equal(t, 6, res.Iterations, "streak restarts after the non-empty turn")
}

func TestController_FatalModelErrorAborts(t *testing.T) {
	backend := model.NewScriptModel().AddErrorTurn(fmt.Errorf("401 invalid api key"))
	c := newTestController(backend, nil, DefaultConfig(), nil)

	res := c.Run(context.Background(), "hello")
	assert.Equal(t, OutcomeAborted, res.Outcome)
	assert.Contains(t, res.Answer, "model backend failed")

	last, ok := c.Conversation().Last()
	require.True(t, ok)
	assert.Equal(t, core.RoleSystem, last.Role)
	assert.Contains(t, last.Content, "model backend failed")
}

func TestController_PanicRecoveredAtRunBoundary(t *testing.T) {
	// The second turn's tool call hits the nil dispatcher and panics inside
	// the loop.
	backend := model.NewScriptModel().
		AddTextTurn("THOUGHT: warming up").
		AddToolCallTurn("c1", "echo", "{}")
	conv := core.NewConversation("system")
	c := NewController("s1", conv, fastClient(backend), tool.MustRegistry(), nil, DefaultConfig(), nil, nil)

	var res Result
	assert.NotPanics(t, func() {
		res = c.Run(context.Background(), "boom")
	})
	assert.Equal(t, OutcomeAborted, res.Outcome)
	assert.Contains(t, res.Answer, "internal error")
	assert.Equal(t, 2, res.Iterations, "aborted result reports the iteration that panicked")
}

func TestController_HistoryGrowsMonotonically(t *testing.T) {
	backend := model.NewScriptModel().
		AddTextTurn("THOUGHT: working").
		AddTextTurn("FINAL_ANSWER: done")
	c := newTestController(backend, nil, DefaultConfig(), nil)

	before := c.Conversation().Len()
	c.Run(context.Background(), "go")
	msgs := c.Conversation().Messages()
	require.Greater(t, len(msgs), before)

	// system seed, user input, then one assistant message per iteration.
	assert.Equal(t, core.RoleSystem, msgs[0].Role)
	assert.Equal(t, core.RoleUser, msgs[1].Role)
	assert.Equal(t, core.RoleAssistant, msgs[2].Role)
	assert.Equal(t, core.RoleAssistant, msgs[3].Role)
}

func TestController_FinalAnswerEventEmitted(t *testing.T) {
	var events []core.Event
	obs := core.ObserverFunc(func(ev core.Event) { events = append(events, ev) })

	backend := model.NewScriptModel().AddTextTurn("FINAL_ANSWER: observed")
	c := newTestController(backend, nil, DefaultConfig(), obs)
	c.Run(context.Background(), "watch me")

	var found bool
	for _, ev := range events {
		if ev.Type == core.EventFinalAnswer {
			assert.Equal(t, "observed", ev.Payload)
			assert.Equal(t, "s1", ev.SessionID)
			found = true
		}
	}
	assert.True(t, found)
}
