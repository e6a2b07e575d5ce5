// Package stream reassembles incremental model delivery into a final
// assistant turn. Backends split a logical response into arbitrary frames;
// the assembler guarantees the reconstructed text and tool-call arguments are
// independent of how the split happened.
package stream

import (
	"context"
	"sort"

	"github.com/agentloop/agentloop/core"
)

// partialCall accumulates tool-call fragments for one stream index. Name and
// arguments only ever grow by appending; the id is taken from the first delta
// that carries one.
type partialCall struct {
	id   string
	name string
	args string
}

// Assembler consumes frames for a single assistant turn. It forwards each
// text fragment to the observer as it arrives and accumulates the identical
// fragment in the identical order, so replaying the emitted fragments
// reconstructs the final text exactly.
//
// An Assembler is single-use and not safe for concurrent Feed calls; one
// turn, one goroutine.
type Assembler struct {
	sessionID string
	observer  core.Observer

	text  []byte
	calls map[int]*partialCall
	done  bool
}

// NewAssembler creates an assembler for one turn. The observer may be nil.
func NewAssembler(sessionID string, observer core.Observer) *Assembler {
	return &Assembler{
		sessionID: sessionID,
		observer:  observer,
		calls:     map[int]*partialCall{},
	}
}

// Feed ingests one frame. Deltas never overwrite previously received
// fragments for their index, they only append.
func (a *Assembler) Feed(frame core.Frame) {
	if frame.Text != "" {
		core.Notify(a.observer, core.Event{
			Type:      core.EventContentFragment,
			SessionID: a.sessionID,
			Payload:   frame.Text,
		})
		a.text = append(a.text, frame.Text...)
	}
	for _, delta := range frame.ToolCalls {
		pc, ok := a.calls[delta.Index]
		if !ok {
			pc = &partialCall{}
			a.calls[delta.Index] = pc
		}
		if delta.ID != "" {
			pc.id = delta.ID
		}
		pc.name += delta.Name
		pc.args += delta.Arguments
	}
	if frame.Done {
		a.done = true
	}
}

// Done reports whether a turn-completion signal was received. Completeness is
// a precondition for treating accumulated arguments as parseable.
func (a *Assembler) Done() bool { return a.done }

// Finalize converts the accumulated state into an immutable turn. Tool calls
// are ordered by stream index ascending.
func (a *Assembler) Finalize() core.AssistantTurn {
	indices := make([]int, 0, len(a.calls))
	for idx := range a.calls {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	var calls []core.ToolCall
	for _, idx := range indices {
		pc := a.calls[idx]
		calls = append(calls, core.ToolCall{ID: pc.id, Name: pc.name, Arguments: pc.args})
	}
	return core.AssistantTurn{Text: string(a.text), ToolCalls: calls}
}

// Collect drains a model's frame and error channels into a final turn. It
// returns as soon as the frame channel closes or an error arrives; a turn
// assembled so far accompanies any error so callers can log partial output.
func Collect(
	ctx context.Context,
	sessionID string,
	frames <-chan core.Frame,
	errs <-chan error,
	observer core.Observer,
) (core.AssistantTurn, error) {
	asm := NewAssembler(sessionID, observer)
	for {
		select {
		case <-ctx.Done():
			return asm.Finalize(), ctx.Err()
		case err, ok := <-errs:
			if ok && err != nil {
				return asm.Finalize(), err
			}
			// Error channel closed without a value: keep draining frames.
			errs = nil
		case frame, ok := <-frames:
			if !ok {
				return asm.Finalize(), nil
			}
			asm.Feed(frame)
		}
	}
}
