package model

import (
	"context"
	"fmt"

	"github.com/agentloop/agentloop/core"
)

// ScriptModel is a deterministic in-memory Model for tests and examples. Each
// Generate call plays the next scripted turn; a turn is either a frame
// sequence (streaming shape preserved exactly) or an error.
type ScriptModel struct {
	info  Info
	turns []scriptTurn
	pos   int
}

type scriptTurn struct {
	frames []core.Frame
	err    error
}

// NewScriptModel constructs an empty scripted model.
func NewScriptModel() *ScriptModel {
	return &ScriptModel{
		info: Info{Name: "script", Provider: "test", SupportsTools: true},
	}
}

// AddTurn scripts one successful turn delivered as the given frames. Frames
// are emitted verbatim; append a Done frame yourself to signal completion,
// or use AddTextTurn / AddToolCallTurn for the common shapes.
func (m *ScriptModel) AddTurn(frames ...core.Frame) *ScriptModel {
	m.turns = append(m.turns, scriptTurn{frames: frames})
	return m
}

// AddTextTurn scripts a plain text turn delivered as a single Done frame.
func (m *ScriptModel) AddTextTurn(text string) *ScriptModel {
	return m.AddTurn(core.Frame{Text: text, Done: true, FinishReason: "stop"})
}

// AddToolCallTurn scripts a turn requesting one structured tool call.
func (m *ScriptModel) AddToolCallTurn(id, name, arguments string) *ScriptModel {
	return m.AddTurn(core.Frame{
		ToolCalls:    []core.ToolCallDelta{{Index: 0, ID: id, Name: name, Arguments: arguments}},
		Done:         true,
		FinishReason: "tool_calls",
	})
}

// AddErrorTurn scripts a failing turn.
func (m *ScriptModel) AddErrorTurn(err error) *ScriptModel {
	m.turns = append(m.turns, scriptTurn{err: err})
	return m
}

// Calls reports how many turns have been consumed.
func (m *ScriptModel) Calls() int { return m.pos }

// Generate implements Model by replaying the next scripted turn.
func (m *ScriptModel) Generate(ctx context.Context, req Request) (<-chan core.Frame, <-chan error) {
	frames := make(chan core.Frame, 32)
	errs := make(chan error, 1)

	if m.pos >= len(m.turns) {
		errs <- fmt.Errorf("script exhausted after %d turns", len(m.turns))
		close(frames)
		close(errs)
		return frames, errs
	}
	turn := m.turns[m.pos]
	m.pos++

	go func() {
		defer close(frames)
		defer close(errs)
		if turn.err != nil {
			errs <- turn.err
			return
		}
		for _, frame := range turn.frames {
			select {
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			case frames <- frame:
			}
		}
	}()
	return frames, errs
}

// Info implements Model.
func (m *ScriptModel) Info() Info { return m.info }
