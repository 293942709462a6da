package provider

import (
	"bufio"
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// extractText pulls the agent's final answer out of CLI output. It tries the
// whole of stdout as one JSON document, then each JSON line as an event, and
// finally falls back to the trimmed raw text. resultFields name the keys
// holding a final answer, in order of preference.
func extractText(stdout, stderr string, resultFields ...string) string {
	trimmed := strings.TrimSpace(stdout)
	if trimmed == "" {
		return strings.TrimSpace(stderr)
	}
	if doc, ok := parseDocument(trimmed); ok {
		if text, ok := stringField(doc, resultFields); ok {
			return strings.TrimSpace(text)
		}
	}
	if text, ok := extractEvents(trimmed, resultFields); ok {
		return text
	}
	return trimmed
}

// parseDocument decodes text as a single JSON object. Single-line documents
// that fail to parse are repaired first since CLIs killed mid-write leave
// truncated JSON behind.
func parseDocument(text string) (map[string]any, bool) {
	if !strings.HasPrefix(text, "{") {
		return nil, false
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(text), &doc); err == nil {
		return doc, true
	}
	if strings.Contains(text, "\n") {
		return nil, false
	}
	repaired, err := jsonrepair.JSONRepair(text)
	if err != nil {
		return nil, false
	}
	if err := json.Unmarshal([]byte(repaired), &doc); err != nil {
		return nil, false
	}
	return doc, true
}

// extractEvents scans NDJSON output. A result field on any event wins (the
// last one seen); otherwise the text payloads of all events are joined.
func extractEvents(text string, resultFields []string) (string, bool) {
	var (
		parts  []string
		result string
		found  bool
	)
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var raw map[string]any
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			continue
		}
		if v, ok := stringField(raw, resultFields); ok {
			result = v
			found = true
			continue
		}
		if v, ok := eventText(raw); ok && strings.TrimSpace(v) != "" {
			parts = append(parts, strings.TrimSpace(v))
		}
	}
	if found {
		return strings.TrimSpace(result), true
	}
	if len(parts) > 0 {
		return strings.Join(parts, "\n"), true
	}
	return "", false
}

func stringField(raw map[string]any, fields []string) (string, bool) {
	for _, f := range fields {
		if v, ok := raw[f].(string); ok {
			return v, true
		}
	}
	return "", false
}

// skippedEvents never carry assistant text: tool results are echoed back as
// "user" turns and system events describe the session.
var skippedEvents = map[string]bool{
	"user":        true,
	"system":      true,
	"tool_result": true,
	"tool_use":    true,
	"error":       true,
}

// eventText returns the assistant text carried by one stream event.
func eventText(raw map[string]any) (string, bool) {
	if t, _ := raw["type"].(string); skippedEvents[t] {
		return "", false
	}
	// codex: {"type":"item.completed","item":{"type":"agent_message","text":"..."}}
	if item, ok := raw["item"].(map[string]any); ok {
		if itemType, _ := item["type"].(string); itemType == "agent_message" {
			if text, ok := item["text"].(string); ok {
				return text, true
			}
		}
		return "", false
	}
	// opencode: {"type":"text","part":{"type":"text","text":"..."}}
	if part, ok := raw["part"].(map[string]any); ok {
		if partType, _ := part["type"].(string); partType == "text" {
			if text, ok := part["text"].(string); ok {
				return text, true
			}
		}
		return "", false
	}
	for _, key := range []string{"text", "content", "output", "response"} {
		if v, ok := raw[key].(string); ok {
			return v, true
		}
	}
	if message, ok := raw["message"]; ok {
		return extractMessageContent(message)
	}
	return "", false
}

func extractMessageContent(message any) (string, bool) {
	switch v := message.(type) {
	case string:
		return v, true
	case map[string]any:
		if content, ok := v["content"]; ok {
			return extractContentText(content)
		}
	}
	return "", false
}

func extractContentText(content any) (string, bool) {
	switch v := content.(type) {
	case string:
		return v, true
	case []any:
		var parts []string
		for _, item := range v {
			switch piece := item.(type) {
			case map[string]any:
				if t, _ := piece["type"].(string); t != "" && t != "text" {
					continue
				}
				if text, ok := piece["text"].(string); ok {
					parts = append(parts, text)
				}
			case string:
				parts = append(parts, piece)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, ""), true
		}
	}
	return "", false
}
