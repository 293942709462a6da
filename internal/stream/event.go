// Package stream turns provider NDJSON output into tool activity so long
// invocations show what the agent is doing while it runs.
package stream

import "time"

// Kind classifies an Event.
type Kind string

const (
	KindInit       Kind = "init"        // session opened, Session set
	KindToolCall   Kind = "tool_call"   // Tool, CallID and Input set
	KindToolResult Kind = "tool_result" // Tool, CallID, Output and Failed set
	KindText       Kind = "text"        // assistant prose, TextLen set
	KindDone       Kind = "done"        // turn finished, Usage set when reported
)

// Event is one step of agent activity, independent of the CLI that
// reported it.
type Event struct {
	Kind    Kind
	At      time.Time
	Session string

	Tool   string
	CallID string
	Input  map[string]any
	Output string
	Failed bool

	TextLen int
	Usage   *Usage
}

// Usage is what a CLI reports about a finished turn.
type Usage struct {
	DurationMS   int
	Turns        int
	CostUSD      float64
	InputTokens  int
	OutputTokens int
}

// Parser reads one CLI's NDJSON output a line at a time. Parsers carry
// state between lines, so use one per invocation.
type Parser interface {
	Parse(line []byte) ([]Event, error)
	Name() string
}

// Observer receives parsed events.
type Observer interface {
	Observe(Event)
}
