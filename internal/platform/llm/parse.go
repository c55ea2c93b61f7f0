package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrNoJSON = errors.New("llm: no JSON payload in completion")

// ExtractJSON pulls the first JSON object or array out of a completion,
// tolerating markdown code fences and surrounding prose.
func ExtractJSON(text string) (json.RawMessage, error) {
	cleaned := stripFences(text)
	start := -1
	for i, r := range cleaned {
		if r == '{' || r == '[' {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, ErrNoJSON
	}
	candidate := cleaned[start:]
	dec := json.NewDecoder(strings.NewReader(candidate))
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("llm: decode completion JSON: %w", err)
	}
	return raw, nil
}

func stripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.Contains(trimmed, "```") {
		return trimmed
	}
	var out strings.Builder
	for _, line := range strings.Split(trimmed, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		out.WriteString(line)
		out.WriteString("\n")
	}
	return out.String()
}

// unwrapResult unwraps a {"result": ...} envelope when present.
func unwrapResult(raw json.RawMessage) json.RawMessage {
	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Result) > 0 {
		return envelope.Result
	}
	return raw
}

// ParseString extracts a single string result from a completion payload.
func ParseString(raw json.RawMessage) (string, error) {
	inner := unwrapResult(raw)
	var s string
	if err := json.Unmarshal(inner, &s); err == nil {
		return strings.TrimSpace(s), nil
	}
	return "", fmt.Errorf("llm: expected string result, got %s", truncate(inner, 80))
}

// ParseStringList extracts a list of strings. Items may be bare strings or
// single-key objects such as {"prompt": "..."} or {"question": "..."}.
func ParseStringList(raw json.RawMessage) ([]string, error) {
	inner := unwrapResult(raw)
	var items []json.RawMessage
	if err := json.Unmarshal(inner, &items); err != nil {
		return nil, fmt.Errorf("llm: expected list result, got %s", truncate(inner, 80))
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
			continue
		}
		var obj map[string]string
		if err := json.Unmarshal(item, &obj); err == nil {
			for _, v := range obj {
				if v = strings.TrimSpace(v); v != "" {
					out = append(out, v)
				}
				break
			}
		}
	}
	return out, nil
}

// Summary is the parsed shape of a summarization completion.
type Summary struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

func ParseSummary(raw json.RawMessage) (Summary, error) {
	inner := unwrapResult(raw)
	var s Summary
	if err := json.Unmarshal(inner, &s); err != nil {
		return Summary{}, fmt.Errorf("llm: expected summary object, got %s", truncate(inner, 80))
	}
	s.Title = strings.TrimSpace(s.Title)
	s.Summary = strings.TrimSpace(s.Summary)
	return s, nil
}

func truncate(raw json.RawMessage, n int) string {
	s := string(raw)
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
