package provider

import (
	"fmt"
	"strconv"
	"time"

	"phobos.org.uk/foreman/internal/api"
)

// Type identifies a provider CLI.
type Type string

// Supported provider types. Claude is the default for unknown identifiers.
const (
	TypeClaude   Type = "claude"
	TypeCodex    Type = "codex"
	TypeGemini   Type = "gemini"
	TypeOpenCode Type = "opencode"
	TypeCursor   Type = "cursor"
	TypeAider    Type = "aider"
	TypeCopilot  Type = "copilot"
	TypeAmp      Type = "amp"
	TypeQwen     Type = "qwen"
)

var allTypes = []Type{
	TypeClaude, TypeCodex, TypeGemini, TypeOpenCode, TypeCursor,
	TypeAider, TypeCopilot, TypeAmp, TypeQwen,
}

// ParseType validates a provider identifier.
func ParseType(s string) (Type, error) {
	for _, t := range allTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown provider type %q", s)
}

// Mode selects how much the agent is allowed to change.
type Mode string

const (
	ModePlan    Mode = api.ModePlan
	ModeCode    Mode = api.ModeCode
	ModeAnalyze Mode = api.ModeAnalyze
)

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModePlan, ModeCode, ModeAnalyze:
		return true
	}
	return false
}

// readOnly is true for modes where the agent must not edit files.
func (m Mode) readOnly() bool {
	return m == ModePlan || m == ModeAnalyze
}

// Request describes a single invocation.
type Request struct {
	ID           string
	Prompt       string
	WorkDir      string
	Mode         Mode
	Model        string
	SessionID    string
	Resume       bool
	AllowedTools []string
	LogID        string
	OnChunk      func(Chunk)
}

// Result is the terminal outcome of an invocation.
type Result struct {
	Success           bool          `json:"success"`
	Output            string        `json:"output"`
	Error             string        `json:"error,omitempty"`
	Duration          time.Duration `json:"duration"`
	SessionID         string        `json:"session_id,omitempty"`
	EndedWithQuestion bool          `json:"ended_with_question"`
	ExitCode          int           `json:"exit_code"`
}

// ChunkKind distinguishes raw stream data from the extracted result.
type ChunkKind string

const (
	KindRaw      ChunkKind = "raw"
	KindOutput   ChunkKind = "output"
	KindResponse ChunkKind = "response"
)

// Stream names used in chunks and session logs.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
	StreamResult = "result"
)

// Chunk is an incremental piece of invocation output.
type Chunk struct {
	Kind      ChunkKind `json:"kind"`
	Stream    string    `json:"stream"`
	Text      string    `json:"text"`
	Index     int       `json:"index"`
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
}

func newChunk(kind ChunkKind, stream string, index int, text string) Chunk {
	return Chunk{
		Kind:      kind,
		Stream:    stream,
		Text:      text,
		Index:     index,
		Key:       stream + ":" + strconv.Itoa(index),
		Timestamp: time.Now(),
	}
}
