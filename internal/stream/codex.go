package stream

import (
	"encoding/json"
	"time"
)

// codexLine is one line of `codex exec --json` output.
type codexLine struct {
	Type     string     `json:"type"` // thread.started, item.started, item.completed, turn.completed
	ThreadID string     `json:"thread_id"`
	Item     *codexItem `json:"item"`
	Usage    *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type codexItem struct {
	ID               string `json:"id"`
	Type             string `json:"type"`
	Text             string `json:"text"`
	Command          string `json:"command"`
	AggregatedOutput string `json:"aggregated_output"`
	ExitCode         *int   `json:"exit_code"`
	Status           string `json:"status"`
	Query            string `json:"query"`
	Server           string `json:"server"`
	Tool             string `json:"tool"`
	Changes          []struct {
		Path string `json:"path"`
	} `json:"changes"`
}

// failed reports a non-zero exit or a failed status.
func (it *codexItem) failed() bool {
	return it.Status == "failed" || (it.ExitCode != nil && *it.ExitCode != 0)
}

// tool maps codex item types onto the tool names the log observer knows.
// Items that are not tool activity return "".
func (it *codexItem) tool() (string, map[string]any) {
	switch it.Type {
	case "command_execution":
		return "Bash", map[string]any{"command": it.Command}
	case "file_change":
		paths := make([]any, len(it.Changes))
		for i, c := range it.Changes {
			paths[i] = c.Path
		}
		return "FileChange", map[string]any{"paths": paths}
	case "web_search":
		return "WebSearch", map[string]any{"query": it.Query}
	case "mcp_tool_call":
		return it.Server + "." + it.Tool, nil
	}
	return "", nil
}

// CodexParser reads codex exec --json output. codex reports no turn
// duration, so it is measured from parser creation.
type CodexParser struct {
	thread  string
	created time.Time
}

// NewCodexParser returns a parser for codex output.
func NewCodexParser() *CodexParser {
	return &CodexParser{created: time.Now()}
}

func (p *CodexParser) Name() string { return "codex" }

func (p *CodexParser) Parse(line []byte) ([]Event, error) {
	if len(line) == 0 {
		return nil, nil
	}
	var l codexLine
	if err := json.Unmarshal(line, &l); err != nil {
		return nil, err
	}

	now := time.Now()
	switch l.Type {
	case "thread.started":
		p.thread = l.ThreadID
		return []Event{{Kind: KindInit, At: now, Session: l.ThreadID}}, nil

	case "item.started":
		if l.Item == nil {
			return nil, nil
		}
		if name, input := l.Item.tool(); name != "" {
			return []Event{{Kind: KindToolCall, At: now, Tool: name, CallID: l.Item.ID, Input: input}}, nil
		}

	case "item.completed":
		if l.Item == nil {
			return nil, nil
		}
		if l.Item.Type == "agent_message" && l.Item.Text != "" {
			return []Event{{Kind: KindText, At: now, TextLen: len(l.Item.Text)}}, nil
		}
		if name, _ := l.Item.tool(); name != "" {
			return []Event{{
				Kind:   KindToolResult,
				At:     now,
				Tool:   name,
				CallID: l.Item.ID,
				Output: l.Item.AggregatedOutput,
				Failed: l.Item.failed(),
			}}, nil
		}

	case "turn.completed":
		u := &Usage{DurationMS: int(now.Sub(p.created).Milliseconds()), Turns: 1}
		if l.Usage != nil {
			u.InputTokens, u.OutputTokens = l.Usage.InputTokens, l.Usage.OutputTokens
		}
		return []Event{{Kind: KindDone, At: now, Session: p.thread, Usage: u}}, nil
	}
	return nil, nil
}
