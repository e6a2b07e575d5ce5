package interp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_ToolCallScenario(t *testing.T) {
	text := "THOUGHT: ok\nTOOL_CALL: {\"tool_name\": \"echo\", \"parameters\": {\"x\": 1}}"

	resp := Parse(text)
	assert.Equal(t, "ok", resp.Thought)
	assert.Equal(t, "echo", resp.ToolName)
	assert.Equal(t, map[string]any{"x": float64(1)}, resp.ToolParams)
	assert.Empty(t, resp.FinalAnswer)
}

func TestParse_FinalAnswer(t *testing.T) {
	resp := Parse("THOUGHT: done reasoning\nFINAL_ANSWER: forty-two")
	assert.Equal(t, "forty-two", resp.FinalAnswer)
	assert.Equal(t, "done reasoning", resp.Thought)
	assert.False(t, resp.HasToolCall())
}

func TestParse_LastFinalAnswerMarkerWins(t *testing.T) {
	text := "THOUGHT: the user asked about FINAL_ANSWER: markers\nFINAL_ANSWER: the real one"
	resp := Parse(text)
	assert.Equal(t, "the real one", resp.FinalAnswer)
}

func TestParse_MarkersAreCaseInsensitive(t *testing.T) {
	resp := Parse("thought: lower\nfinal_answer: yes")
	assert.Equal(t, "lower", resp.Thought)
	assert.Equal(t, "yes", resp.FinalAnswer)
}

func TestParse_Plan(t *testing.T) {
	text := "PLAN:\n1. look up the weather\n2) convert units\nnot a step\n3. reply\nFINAL_ANSWER: later"
	resp := Parse(text)
	assert.Equal(t, []string{"look up the weather", "convert units", "reply"}, resp.Plan)
}

func TestParse_ToolCallWinsOverFinalAnswer(t *testing.T) {
	text := `TOOL_CALL: {"tool_name": "search", "parameters": {}}` + "\nFINAL_ANSWER: premature"
	resp := Parse(text)
	assert.Equal(t, "search", resp.ToolName)
	assert.Empty(t, resp.FinalAnswer, "tool call and final answer are mutually exclusive")
}

func TestParse_BracesInsideStringsIgnored(t *testing.T) {
	text := `TOOL_CALL: {"tool_name": "echo", "parameters": {"s": "a } b { c", "t": "esc \" quote }"}}`
	resp := Parse(text)
	require.Equal(t, "echo", resp.ToolName)
	assert.Equal(t, `a } b { c`, resp.ToolParams["s"])
	assert.Equal(t, `esc " quote }`, resp.ToolParams["t"])
}

func TestParse_MalformedToolCallDegrades(t *testing.T) {
	cases := map[string]string{
		"unbalanced": `TOOL_CALL: {"tool_name": "echo", "parameters": {`,
		"no object":  `TOOL_CALL: just words`,
		"bad json":   `TOOL_CALL: {tool_name: echo}`,
		"no name":    `TOOL_CALL: {"parameters": {"x": 1}}`,
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			resp := Parse(text)
			assert.False(t, resp.HasToolCall())
			assert.Contains(t, resp.Thought, "[parser]", "diagnostic should land in thought")
		})
	}
}

func TestParse_NoAction(t *testing.T) {
	resp := Parse("I am not sure what you mean.")
	assert.False(t, resp.HasToolCall())
	assert.False(t, resp.HasFinalAnswer())
	assert.Empty(t, resp.Thought)
}

// Exclusivity must hold for arbitrary inputs.
func TestParse_Exclusivity(t *testing.T) {
	inputs := []string{
		"",
		"FINAL_ANSWER: a",
		`TOOL_CALL: {"tool_name": "t", "parameters": {}}`,
		`TOOL_CALL: {"tool_name": "t"} FINAL_ANSWER: b`,
		`FINAL_ANSWER: b TOOL_CALL: {"tool_name": "t", "parameters": {}}`,
		"THOUGHT: only thinking",
	}
	for _, in := range inputs {
		resp := Parse(in)
		assert.False(t, resp.HasToolCall() && resp.HasFinalAnswer(), "input %q", in)
	}
}

// Marker offsets must stay valid when surrounding text contains runes whose
// uppercase form has a different UTF-8 width (e.g. ȿ upcases from 2 to 3
// bytes), so folding can never shift or overrun slice bounds.
func TestParse_WidthChangingRunesAroundMarkers(t *testing.T) {
	prefix := strings.Repeat("ȿ", 20)

	require.NotPanics(t, func() { Parse(prefix + "FINAL_ANSWER: ok") })

	resp := Parse(prefix + "FINAL_ANSWER: ok")
	assert.Equal(t, "ok", resp.FinalAnswer)

	resp = Parse("THOUGHT: " + prefix + " reasoning\nFINAL_ANSWER: straße ȿ")
	assert.Equal(t, prefix+" reasoning", resp.Thought)
	assert.Equal(t, "straße ȿ", resp.FinalAnswer)

	resp = Parse(prefix + `TOOL_CALL: {"tool_name": "echo", "parameters": {"s": "ſ"}}`)
	require.Equal(t, "echo", resp.ToolName)
	assert.Equal(t, "ſ", resp.ToolParams["s"])
}

func TestParse_Idempotent(t *testing.T) {
	text := "THOUGHT: ok\nPLAN:\n1. a\nTOOL_CALL: {\"tool_name\": \"echo\", \"parameters\": {\"x\": 1}}"
	first := Parse(text)
	second := Parse(text)
	assert.Equal(t, first, second)
}
