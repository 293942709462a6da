package stream

import (
	"path/filepath"
	"strings"
	"unicode/utf8"

	"phobos.org.uk/foreman/internal/logging"
)

// LogObserver writes events to an invocation logger. Tool calls go out at
// info so they show at the default level; everything else is debug.
type LogObserver struct {
	log *logging.InvocationLogger
}

// NewLogObserver returns an observer that logs through log.
func NewLogObserver(log *logging.InvocationLogger) *LogObserver {
	return &LogObserver{log: log}
}

func (o *LogObserver) Observe(ev Event) {
	if o == nil || o.log == nil {
		return
	}
	switch ev.Kind {
	case KindInit:
		o.log.Debug("session initialized", map[string]any{"session_id": ev.Session})
	case KindToolCall:
		o.log.Info("tool call", callFields(ev))
	case KindToolResult:
		o.log.Debug("tool result", resultFields(ev))
	case KindText:
		o.log.Debug("assistant response", map[string]any{"length": ev.TextLen})
	case KindDone:
		fields := map[string]any{}
		if ev.Session != "" {
			fields["session_id"] = ev.Session
		}
		if u := ev.Usage; u != nil {
			fields["duration_ms"] = u.DurationMS
			fields["turns"] = u.Turns
			if u.CostUSD > 0 {
				fields["cost_usd"] = u.CostUSD
			}
			if u.InputTokens > 0 || u.OutputTokens > 0 {
				fields["input_tokens"] = u.InputTokens
				fields["output_tokens"] = u.OutputTokens
			}
		}
		o.log.Info("turn complete", fields)
	}
}

// inputSummary picks the input keys worth logging for a tool, and how many
// characters of each to keep. Zero keeps only the base name of a path and
// a negative max keeps the value whole.
var inputSummary = map[string][]struct {
	key string
	max int
}{
	"Bash":      {{"command", 80}},
	"Read":      {{"file_path", -1}},
	"Write":     {{"file_path", -1}},
	"Edit":      {{"file_path", 0}, {"old_string", 24}, {"new_string", 24}},
	"Glob":      {{"pattern", 64}, {"path", -1}},
	"Grep":      {{"pattern", 64}, {"path", -1}},
	"WebSearch": {{"query", 80}},
	"WebFetch":  {{"url", 80}},
	"Task":      {{"subagent_type", -1}, {"description", 40}},
}

func callFields(ev Event) map[string]any {
	fields := map[string]any{"tool": ev.Tool}
	summary, known := inputSummary[ev.Tool]
	for _, s := range summary {
		v, _ := ev.Input[s.key].(string)
		if v == "" {
			continue
		}
		switch {
		case s.max == 0:
			v = filepath.Base(v)
		case s.max > 0:
			v = clip(v, s.max)
		}
		fields[s.key] = v
	}
	switch ev.Tool {
	case "FileChange":
		paths, _ := ev.Input["paths"].([]any)
		fields["files"] = len(paths)
	case "TodoWrite":
		todos, _ := ev.Input["todos"].([]any)
		fields["todos"] = len(todos)
	default:
		if !known && len(ev.Input) > 0 {
			fields["input_keys"] = len(ev.Input)
		}
	}
	return fields
}

func resultFields(ev Event) map[string]any {
	fields := map[string]any{
		"tool":         ev.Tool,
		"output_bytes": len(ev.Output),
		"failed":       ev.Failed,
	}
	switch ev.Tool {
	case "Bash":
		fields["output"] = clip(strings.TrimSpace(ev.Output), 64)
	case "Glob", "Grep":
		if !ev.Failed && ev.Output != "" {
			fields["matches"] = strings.Count(strings.TrimRight(ev.Output, "\n"), "\n") + 1
		}
	}
	return fields
}

// clip shortens s to max runes, marking the cut.
func clip(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "..."
}
