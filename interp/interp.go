// Package interp extracts a structured outcome from raw assistant text. Some
// models ignore the structured tool-call channel and instead narrate their
// intent with inline section markers; this package turns that text into a
// ParsedResponse without ever erroring on the expected "no action" case.
package interp

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Section markers recognized in assistant text, matched case-insensitively.
const (
	MarkerThought     = "THOUGHT:"
	MarkerPlan        = "PLAN:"
	MarkerToolCall    = "TOOL_CALL:"
	MarkerFinalAnswer = "FINAL_ANSWER:"
)

// ParsedResponse is the tri-state outcome of interpreting one assistant turn.
// After Parse, exactly one of these holds: a tool call (ToolName non-empty),
// a final answer (FinalAnswer non-empty), or neither. Thought and Plan are
// auxiliary and may accompany any outcome.
type ParsedResponse struct {
	Thought     string
	Plan        []string
	ToolName    string
	ToolParams  map[string]any
	FinalAnswer string
}

// HasToolCall reports whether a text-embedded tool invocation was parsed.
func (p ParsedResponse) HasToolCall() bool { return p.ToolName != "" }

// HasFinalAnswer reports whether a final answer was parsed.
func (p ParsedResponse) HasFinalAnswer() bool { return p.FinalAnswer != "" }

// toolCallEnvelope is the object shape expected after the tool-call marker.
type toolCallEnvelope struct {
	ToolName   string         `json:"tool_name"`
	Parameters map[string]any `json:"parameters"`
}

var planLineRe = regexp.MustCompile(`^\s*\d+[.)]\s*(.+)$`)

// Parse interprets one assistant turn. It is a pure function: identical input
// yields identical output, and it never fails - malformed sections degrade to
// "no action" with a diagnostic appended to Thought.
func Parse(text string) ParsedResponse {
	var resp ParsedResponse

	resp.Thought = section(text, MarkerThought)
	resp.Plan = parsePlan(section(text, MarkerPlan))

	if body, diag := parseToolCall(text); body != nil {
		resp.ToolName = body.ToolName
		resp.ToolParams = body.Parameters
	} else if diag != "" {
		resp.Thought = appendDiagnostic(resp.Thought, diag)
	}

	// The last final-answer marker wins; models occasionally echo the marker
	// inside their reasoning.
	if idx := lastIndexFold(text, MarkerFinalAnswer); idx >= 0 {
		body := text[idx+len(MarkerFinalAnswer):]
		end := len(body)
		for _, m := range []string{MarkerThought, MarkerPlan, MarkerToolCall} {
			if next := indexFold(body, m); next >= 0 && next < end {
				end = next
			}
		}
		resp.FinalAnswer = strings.TrimSpace(body[:end])
	}

	// A parsed tool call takes precedence over a final answer.
	if resp.HasToolCall() {
		resp.FinalAnswer = ""
	}
	return resp
}

// section returns the trimmed text between the first occurrence of marker and
// the next known marker (or end of text). Empty when the marker is absent.
func section(text, marker string) string {
	start := indexFold(text, marker)
	if start < 0 {
		return ""
	}
	body := text[start+len(marker):]
	end := len(body)
	for _, m := range []string{MarkerThought, MarkerPlan, MarkerToolCall, MarkerFinalAnswer} {
		if idx := indexFold(body, m); idx >= 0 && idx < end {
			end = idx
		}
	}
	return strings.TrimSpace(body[:end])
}

func parsePlan(body string) []string {
	if body == "" {
		return nil
	}
	var steps []string
	for _, line := range strings.Split(body, "\n") {
		if m := planLineRe.FindStringSubmatch(line); m != nil {
			steps = append(steps, strings.TrimSpace(m[1]))
		}
	}
	return steps
}

// parseToolCall locates the tool-call marker, brace-matches the following
// object and decodes it. A nil envelope with an empty diagnostic means no
// marker was present; a non-empty diagnostic describes why a present marker
// could not be parsed.
func parseToolCall(text string) (*toolCallEnvelope, string) {
	idx := indexFold(text, MarkerToolCall)
	if idx < 0 {
		return nil, ""
	}
	rest := text[idx+len(MarkerToolCall):]

	open := strings.IndexByte(rest, '{')
	if open < 0 {
		return nil, "tool call marker present but no object found"
	}

	obj, ok := matchBraces(rest[open:])
	if !ok {
		return nil, "tool call object has unbalanced braces"
	}

	var env toolCallEnvelope
	if err := json.Unmarshal([]byte(obj), &env); err != nil {
		return nil, fmt.Sprintf("tool call object is not valid JSON: %v", err)
	}
	if env.ToolName == "" {
		return nil, "tool call object is missing tool_name"
	}
	return &env, ""
}

// matchBraces returns the prefix of s spanning one balanced {...} object.
// Brace counting is string-literal aware: braces inside double-quoted strings
// are ignored and backslash escapes are honored.
func matchBraces(s string) (string, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}

func appendDiagnostic(thought, diag string) string {
	note := "[parser] " + diag
	if thought == "" {
		return note
	}
	return thought + "\n" + note
}

// indexFold is strings.Index with case folding. The window scan keeps byte
// offsets in terms of s itself; folding the whole string first would shift
// offsets whenever an uppercase form has a different UTF-8 width.
func indexFold(s, substr string) int {
	n := len(substr)
	if n == 0 {
		return 0
	}
	for i := 0; i+n <= len(s); i++ {
		if strings.EqualFold(s[i:i+n], substr) {
			return i
		}
	}
	return -1
}

// lastIndexFold is strings.LastIndex with case folding.
func lastIndexFold(s, substr string) int {
	n := len(substr)
	if n == 0 {
		return len(s)
	}
	for i := len(s) - n; i >= 0; i-- {
		if strings.EqualFold(s[i:i+n], substr) {
			return i
		}
	}
	return -1
}
