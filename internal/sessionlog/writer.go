// Package sessionlog keeps an append-only, best-effort event log per
// invocation. Write failures never reach the caller.
package sessionlog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"phobos.org.uk/foreman/internal/sessionid"
)

// Record types
const (
	RecordStart = "start"
	RecordChunk = "chunk"
	RecordExit  = "exit"
)

// MaxErrorLength caps the error text kept in exit records.
const MaxErrorLength = 500

// Record is one line of a session log file.
type Record struct {
	Timestamp    time.Time `json:"timestamp"`
	Type         string    `json:"type"`
	InvocationID string    `json:"invocation_id"`
	Provider     string    `json:"provider,omitempty"`
	Command      string    `json:"command,omitempty"`
	Prompt       string    `json:"prompt,omitempty"`
	Stream       string    `json:"stream,omitempty"`
	Index        int       `json:"index,omitempty"`
	Text         string    `json:"text,omitempty"`
	ExitCode     *int      `json:"exit_code,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// Writer appends records for a single invocation.
// A nil or disabled Writer silently drops everything.
type Writer struct {
	mu           sync.Mutex
	file         *os.File
	path         string
	invocationID string
	onError      func(error)
	failed       bool
}

// Open prepares the log for logID under dir. An empty dir disables logging.
// Unsafe log ids fall back to the invocation id. onError, when set, is called
// once with the first write failure; after that the writer goes quiet.
func Open(dir, logID, invocationID string, onError func(error)) *Writer {
	w := &Writer{invocationID: invocationID, onError: onError}
	if dir == "" {
		w.failed = true
		return w
	}
	if !sessionid.IsSafe(logID) {
		logID = invocationID
	}
	if !sessionid.IsSafe(logID) {
		w.failed = true
		return w
	}
	w.path = Path(dir, logID)
	return w
}

// Path returns the file a log id is written to.
func Path(dir, logID string) string {
	return filepath.Join(dir, logID+".jsonl")
}

// Start records the command line and prompt that launched the invocation.
func (w *Writer) Start(provider, command, prompt string) {
	w.append(Record{Type: RecordStart, Provider: provider, Command: command, Prompt: prompt})
}

// Chunk records raw output from one stream.
func (w *Writer) Chunk(stream string, index int, text string) {
	w.append(Record{Type: RecordChunk, Stream: stream, Index: index, Text: text})
}

// Exit records the terminal exit code and error text, then closes the file.
func (w *Writer) Exit(exitCode int, errText string) {
	if r := []rune(errText); len(r) > MaxErrorLength {
		errText = string(r[:MaxErrorLength]) + "..."
	}
	code := exitCode
	w.append(Record{Type: RecordExit, ExitCode: &code, Error: errText})
	w.Close()
}

// Close releases the underlying file.
func (w *Writer) Close() {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}
	w.failed = true
}

func (w *Writer) append(rec Record) {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failed {
		return
	}

	rec.Timestamp = time.Now().UTC()
	rec.InvocationID = w.invocationID

	if err := w.writeUnlocked(rec); err != nil {
		w.failed = true
		if w.file != nil {
			w.file.Close()
			w.file = nil
		}
		if w.onError != nil {
			w.onError(err)
		}
	}
}

func (w *Writer) writeUnlocked(rec Record) error {
	if w.file == nil {
		if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
			return err
		}
		f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		w.file = f
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = w.file.Write(append(data, '\n'))
	return err
}
