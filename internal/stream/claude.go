package stream

import (
	"encoding/json"
	"strings"
	"time"
)

// claudeLine covers the fields foreman reads from `--output-format
// stream-json`. amp's `--stream-json` output uses the same shape.
type claudeLine struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	SessionID string `json:"session_id"`
	Message   *struct {
		Content []claudeBlock `json:"content"`
	} `json:"message"`
	DurationMS   int     `json:"duration_ms"`
	NumTurns     int     `json:"num_turns"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	Usage        *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type claudeBlock struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Text      string          `json:"text"`
	Input     json.RawMessage `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
	IsError   bool            `json:"is_error"`
}

// ClaudeParser reads claude and amp stream-json output. Tool results are
// matched to the call that produced them by id.
type ClaudeParser struct {
	name  string
	calls map[string]string // tool_use id -> tool name
}

// NewClaudeParser returns a parser for claude output.
func NewClaudeParser() *ClaudeParser {
	return &ClaudeParser{name: "claude", calls: map[string]string{}}
}

// NewAmpParser returns a parser for amp, whose stream-json output follows
// the claude format.
func NewAmpParser() *ClaudeParser {
	return &ClaudeParser{name: "amp", calls: map[string]string{}}
}

func (p *ClaudeParser) Name() string { return p.name }

func (p *ClaudeParser) Parse(line []byte) ([]Event, error) {
	if len(line) == 0 {
		return nil, nil
	}
	var l claudeLine
	if err := json.Unmarshal(line, &l); err != nil {
		return nil, err
	}

	now := time.Now()
	switch l.Type {
	case "system":
		if l.Subtype != "init" {
			return nil, nil
		}
		return []Event{{Kind: KindInit, At: now, Session: l.SessionID}}, nil

	case "assistant", "user":
		if l.Message == nil {
			return nil, nil
		}
		var out []Event
		for _, b := range l.Message.Content {
			if ev, ok := p.block(b, now); ok {
				out = append(out, ev)
			}
		}
		return out, nil

	case "result":
		u := &Usage{DurationMS: l.DurationMS, Turns: l.NumTurns, CostUSD: l.TotalCostUSD}
		if l.Usage != nil {
			u.InputTokens, u.OutputTokens = l.Usage.InputTokens, l.Usage.OutputTokens
		}
		return []Event{{Kind: KindDone, At: now, Session: l.SessionID, Usage: u}}, nil
	}
	return nil, nil
}

func (p *ClaudeParser) block(b claudeBlock, now time.Time) (Event, bool) {
	switch b.Type {
	case "tool_use":
		p.calls[b.ID] = b.Name
		return Event{Kind: KindToolCall, At: now, Tool: b.Name, CallID: b.ID, Input: toolInput(b.Input)}, true
	case "tool_result":
		name, ok := p.calls[b.ToolUseID]
		if !ok {
			return Event{}, false
		}
		delete(p.calls, b.ToolUseID)
		return Event{Kind: KindToolResult, At: now, Tool: name, CallID: b.ToolUseID, Output: resultText(b.Content), Failed: b.IsError}, true
	case "text":
		if b.Text == "" {
			return Event{}, false
		}
		return Event{Kind: KindText, At: now, TextLen: len(b.Text)}, true
	}
	return Event{}, false
}

// toolInput decodes a tool_use input object. Anything that is not an
// object is kept under "raw".
func toolInput(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var in map[string]any
	if json.Unmarshal(raw, &in) != nil {
		return map[string]any{"raw": string(raw)}
	}
	return in
}

// resultText flattens tool_result content, which is either a string or a
// list of text blocks.
func resultText(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var parts []claudeBlock
	if json.Unmarshal(raw, &parts) != nil {
		return ""
	}
	texts := make([]string, 0, len(parts))
	for _, part := range parts {
		if part.Type == "text" {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "")
}
