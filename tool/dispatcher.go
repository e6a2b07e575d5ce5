package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentloop/agentloop/core"
	"github.com/agentloop/agentloop/logging"
)

// ErrorSentinel marks tool output that represents a failure the tool chose to
// report in-band. Dispatch rewrites such output into a distinguishable
// "tool failed" result so the model does not mistake it for data.
const ErrorSentinel = "ERROR:"

// failedPrefix marks dispatcher-produced error results in the conversation.
const failedPrefix = "Tool execution failed: "

// maxFragmentLen bounds how much of an undecodable argument payload is echoed
// back for diagnosis.
const maxFragmentLen = 200

// DispatcherConfig tunes dispatch behavior.
type DispatcherConfig struct {
	// CallTimeout bounds a single tool execution. Zero disables the bound.
	CallTimeout time.Duration
}

// DefaultDispatcherConfig returns production defaults.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{CallTimeout: 30 * time.Second}
}

// Dispatcher resolves tool-call records against a registry and executes them.
// Every dispatch, success or failure, yields exactly one tool-role message
// tagged with the originating call id; the iteration loop never aborts on a
// tool-level problem.
type Dispatcher struct {
	registry *Registry
	cfg      DispatcherConfig
	logger   logging.Logger
	observer core.Observer
}

// NewDispatcher creates a dispatcher over the given registry. Logger and
// observer may be nil.
func NewDispatcher(registry *Registry, cfg DispatcherConfig, logger logging.Logger, observer core.Observer) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		cfg:      cfg,
		logger:   logging.OrDefault(logger),
		observer: observer,
	}
}

// Dispatch executes one tool call and returns its conversation record.
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID string, call core.ToolCall) core.Message {
	core.Notify(d.observer, core.Event{
		Type:      core.EventToolCallStarted,
		SessionID: sessionID,
		Payload:   call.Name,
		Meta:      map[string]string{"tool_call_id": call.ID},
	})

	start := time.Now()
	output, failed := d.execute(ctx, call)
	d.logger.Info("tool.dispatched",
		"tool", call.Name,
		"tool_call_id", call.ID,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", failed,
	)

	core.Notify(d.observer, core.Event{
		Type:      core.EventToolCallResult,
		SessionID: sessionID,
		Payload:   output,
		Meta:      map[string]string{"tool": call.Name, "tool_call_id": call.ID},
	})
	return core.ToolResultMessage(call.ID, call.Name, output)
}

// execute runs the lookup / decode / validate / call pipeline and normalizes
// the outcome to a single output string. The bool reports failure.
func (d *Dispatcher) execute(ctx context.Context, call core.ToolCall) (output string, failed bool) {
	// Tool panics must not take down the iteration.
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tool.panic", "tool", call.Name, "recover", fmt.Sprintf("%v", r))
			output = failedPrefix + fmt.Sprintf("tool %q panicked", call.Name)
			failed = true
		}
	}()

	impl, ok := d.registry.Lookup(call.Name)
	if !ok {
		return failedPrefix + fmt.Sprintf("unknown tool %q", call.Name), true
	}

	args := map[string]any{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return failedPrefix + fmt.Sprintf(
				"arguments are not valid JSON (%v): %s", err, truncate(call.Arguments, maxFragmentLen),
			), true
		}
	}

	if err := d.registry.validate(call.Name, args); err != nil {
		return failedPrefix + err.Error(), true
	}

	callCtx := ctx
	if d.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.cfg.CallTimeout)
		defer cancel()
	}

	result, err := impl.Call(callCtx, args)
	if err != nil {
		return failedPrefix + err.Error(), true
	}
	if len(result) >= len(ErrorSentinel) && result[:len(ErrorSentinel)] == ErrorSentinel {
		return failedPrefix + result[len(ErrorSentinel):], true
	}
	return result, false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
