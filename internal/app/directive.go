package app

import (
	"encoding/json"
	"strings"
)

// Directive is a structured tool request parsed from the model's decision
// reply. Params stay loosely typed: each tool handler coerces what it needs
// and ignores what it cannot read.
type Directive struct {
	Tool   string
	Params map[string]any
}

// ParseDirective decides whether the raw model output is a tool directive or
// a plain reply. Tool calls and natural-language answers share one text
// channel, so the rule is deliberately permissive: only a JSON object
// carrying a "tool" key counts as a directive; everything else, parse
// failures included, is the final reply verbatim.
func ParseDirective(raw string) (Directive, bool) {
	text := stripCodeFence(raw)
	if !strings.HasPrefix(strings.TrimSpace(text), "{") {
		return Directive{}, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return Directive{}, false
	}
	rawTool, ok := obj["tool"]
	if !ok {
		return Directive{}, false
	}
	var tool string
	if err := json.Unmarshal(rawTool, &tool); err != nil || strings.TrimSpace(tool) == "" {
		return Directive{}, false
	}
	params := map[string]any{}
	if rawParams, ok := obj["params"]; ok {
		// Non-object params are tolerated and left empty.
		_ = json.Unmarshal(rawParams, &params)
	}
	return Directive{Tool: strings.TrimSpace(tool), Params: params}, true
}

// stripCodeFence removes a leading/trailing fenced code-block wrapper the
// model may emit around JSON (e.g. ```json ... ```).
func stripCodeFence(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	if len(lines) < 2 {
		return text
	}
	if strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
		lines = lines[1 : len(lines)-1]
	} else {
		lines = lines[1:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
