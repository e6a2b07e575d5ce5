// Package flow drives one request end-to-end: it loops bounded iterations of
// model call, streaming reassembly, interpretation and tool dispatch over a
// single conversation, deciding after each turn whether to continue,
// terminate with an answer, or abort.
package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/agentloop/agentloop/core"
	"github.com/agentloop/agentloop/interp"
	"github.com/agentloop/agentloop/logging"
	"github.com/agentloop/agentloop/model"
	"github.com/agentloop/agentloop/tool"
)

// Outcome is the terminal state of one controller run.
type Outcome int

const (
	// OutcomeAnswered means the run produced an answer (a parsed final
	// answer or a canned terminal message).
	OutcomeAnswered Outcome = iota
	// OutcomeAborted means an unrecoverable failure ended the run; the
	// answer carries the error text.
	OutcomeAborted
)

func (o Outcome) String() string {
	if o == OutcomeAnswered {
		return "answered"
	}
	return "aborted"
}

// Result is what one controller run returns to the session layer.
type Result struct {
	Answer     string
	Outcome    Outcome
	Iterations int
}

// Canned terminal messages. MsgIterationLimit is appended to the conversation
// so the limit stays visible in history.
const (
	MsgIterationLimit = "I was unable to complete the task within the allowed number of steps. Please try breaking it into smaller parts."
	MsgEmptyResponses = "I seem to be having trouble generating a response. Could you rephrase your request?"
)

// correctiveNote is appended when the model narrates a tool call in text
// instead of using the structured channel. Text-parsed calls are never
// auto-executed; the note steers the model back to the supported channel.
const correctiveNote = "Your last message contained a textual TOOL_CALL block. Tool calls must be issued through the structured tool-call mechanism; the textual request was not executed. Please use the tool interface directly."

// Config carries the controller tunables, static per session.
type Config struct {
	// MaxIterations bounds model calls per run.
	MaxIterations int
	// EmptyResponseThreshold is the number of consecutive empty assistant
	// turns tolerated before the run is forced to answer.
	EmptyResponseThreshold int
	// Stream selects streaming delivery from the backend.
	Stream bool
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxIterations:          10,
		EmptyResponseThreshold: 3,
		Stream:                 true,
	}
}

// Controller owns one conversation and executes the iteration state machine
// over it. Within a session iterations are strictly sequential; the next
// model call never starts before the previous tool results are appended,
// because each call's input is the full, already-extended conversation.
type Controller struct {
	client     *model.Client
	dispatcher *tool.Dispatcher
	registry   *tool.Registry
	conv       *core.Conversation
	cfg        Config
	logger     logging.Logger
	observer   core.Observer
	sessionID  string
}

// NewController wires a controller over its collaborators. The conversation
// must be owned exclusively by this controller.
func NewController(
	sessionID string,
	conv *core.Conversation,
	client *model.Client,
	registry *tool.Registry,
	dispatcher *tool.Dispatcher,
	cfg Config,
	logger logging.Logger,
	observer core.Observer,
) *Controller {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultConfig().MaxIterations
	}
	if cfg.EmptyResponseThreshold <= 0 {
		cfg.EmptyResponseThreshold = DefaultConfig().EmptyResponseThreshold
	}
	return &Controller{
		client:     client,
		dispatcher: dispatcher,
		registry:   registry,
		conv:       conv,
		cfg:        cfg,
		logger:     logging.OrDefault(logger),
		observer:   observer,
		sessionID:  sessionID,
	}
}

// Conversation exposes the controller's conversation for inspection.
func (c *Controller) Conversation() *core.Conversation { return c.conv }

// Run processes one user request to completion. It never panics and never
// returns an error: every failure mode is converted into a Result so nothing
// propagates past this boundary to the session manager.
func (c *Controller) Run(ctx context.Context, input string) (res Result) {
	iteration := 0
	defer func() {
		if r := recover(); r != nil {
			errText := fmt.Sprintf("internal error: %v", r)
			c.logger.Error("controller.panic", "session_id", c.sessionID, "recover", fmt.Sprintf("%v", r))
			c.conv.Append(core.SystemMessage(errText))
			c.notifyError(errText)
			res = Result{Answer: errText, Outcome: OutcomeAborted, Iterations: iteration}
		}
	}()

	c.conv.Append(core.UserMessage(input))

	emptyStreak := 0
	for iteration = 1; iteration <= c.cfg.MaxIterations; iteration++ {
		start := time.Now()
		step := c.runIteration(ctx, iteration, &emptyStreak)
		c.logger.Debug("controller.iteration",
			"session_id", c.sessionID,
			"iteration", iteration,
			"decision", int(step.kind),
			"duration_ms", time.Since(start).Milliseconds(),
		)

		switch step.kind {
		case decideContinue:
			continue
		case decideAnswer:
			c.notifyAnswer(step.text)
			return Result{Answer: step.text, Outcome: OutcomeAnswered, Iterations: iteration}
		case decideAbort:
			c.notifyError(step.text)
			return Result{Answer: step.text, Outcome: OutcomeAborted, Iterations: iteration}
		}
	}

	// Iteration budget exhausted: terminal by design, recorded in history.
	c.conv.Append(core.AssistantMessage(MsgIterationLimit, nil))
	c.notifyAnswer(MsgIterationLimit)
	return Result{Answer: MsgIterationLimit, Outcome: OutcomeAnswered, Iterations: c.cfg.MaxIterations}
}

type decisionKind int

const (
	decideContinue decisionKind = iota
	decideAnswer
	decideAbort
)

type decision struct {
	kind decisionKind
	text string
}

// runIteration performs one model turn plus any tool executions and decides
// the next transition.
func (c *Controller) runIteration(ctx context.Context, iteration int, emptyStreak *int) decision {
	req := model.Request{
		Messages: c.conv.Messages(),
		Tools:    c.toolDefinitions(),
		Stream:   c.cfg.Stream,
	}

	turn, err := c.client.Call(ctx, c.sessionID, req)
	if err != nil {
		// Retries are already exhausted (or the fault was fatal) by the
		// time an error reaches the controller.
		errText := fmt.Sprintf("model backend failed: %v", err)
		c.conv.Append(core.SystemMessage(errText))
		return decision{kind: decideAbort, text: errText}
	}

	c.conv.Append(turn.Message())

	// Structured tool calls are the preferred channel.
	if len(turn.ToolCalls) > 0 {
		for _, call := range turn.ToolCalls {
			result := c.dispatcher.Dispatch(ctx, c.sessionID, call)
			c.conv.Append(result)
		}
		*emptyStreak = 0
		return decision{kind: decideContinue}
	}

	parsed := interp.Parse(turn.Text)

	// Text-embedded tool calls are a legacy fallback signal that the model
	// missed the structured channel. Flag, never execute.
	if parsed.HasToolCall() {
		c.logger.Warn("controller.text_tool_call",
			"session_id", c.sessionID,
			"iteration", iteration,
			"tool", parsed.ToolName,
		)
		c.conv.Append(core.SystemMessage(correctiveNote))
		*emptyStreak = 0
		return decision{kind: decideContinue}
	}

	if parsed.HasFinalAnswer() {
		return decision{kind: decideAnswer, text: parsed.FinalAnswer}
	}

	// No action and no answer.
	if turn.Text != "" {
		c.logger.Debug("controller.unstructured_text", "session_id", c.sessionID, "iteration", iteration)
		*emptyStreak = 0
		return decision{kind: decideContinue}
	}

	*emptyStreak++
	if *emptyStreak >= c.cfg.EmptyResponseThreshold {
		c.conv.Append(core.AssistantMessage(MsgEmptyResponses, nil))
		return decision{kind: decideAnswer, text: MsgEmptyResponses}
	}
	return decision{kind: decideContinue}
}

// toolDefinitions exposes the registry as backend schemas; nil when no tools
// are registered so the request omits the field entirely.
func (c *Controller) toolDefinitions() []model.ToolDefinition {
	if c.registry == nil || c.registry.Len() == 0 {
		return nil
	}
	tools := c.registry.Tools()
	defs := make([]model.ToolDefinition, len(tools))
	for i, t := range tools {
		defs[i] = model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		}
	}
	return defs
}

func (c *Controller) notifyAnswer(answer string) {
	core.Notify(c.observer, core.Event{
		Type:      core.EventFinalAnswer,
		SessionID: c.sessionID,
		Payload:   answer,
	})
}

func (c *Controller) notifyError(errText string) {
	core.Notify(c.observer, core.Event{
		Type:      core.EventError,
		SessionID: c.sessionID,
		Payload:   errText,
	})
}
