package session

import (
	"bytes"
	"strings"
	"text/template"
	"time"
)

// PromptData is the state available to system prompt templates.
type PromptData struct {
	SessionID string
	Tools     []string
	Date      string
}

// renderPrompt expands template markers in the system prompt against the
// session's data. Prompts without markers pass through untouched; a broken
// template falls back to the raw prompt so session creation never fails on
// prompt syntax.
func renderPrompt(prompt string, data PromptData) string {
	if !strings.Contains(prompt, "{{") {
		return prompt
	}

	tmpl, err := template.New("prompt").Funcs(template.FuncMap{
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		"join":  func(sep string, items []string) string { return strings.Join(items, sep) },
	}).Parse(prompt)
	if err != nil {
		return prompt
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return prompt
	}
	return buf.String()
}

func today() string {
	return time.Now().Format("2006-01-02")
}
