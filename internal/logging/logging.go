// Package logging writes JSON log lines and keeps the most recent entries
// in memory so the service can answer log queries.
package logging

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level is a log severity.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// rank orders levels; unknown levels rank as info.
func (l Level) rank() int {
	switch l {
	case LevelDebug:
		return -1
	case LevelWarn:
		return 1
	case LevelError:
		return 2
	}
	return 0
}

// ParseLevel maps a flag or config value to a Level, falling back to info.
func ParseLevel(s string) Level {
	switch v := Level(strings.ToLower(strings.TrimSpace(s))); v {
	case LevelDebug, LevelWarn, LevelError:
		return v
	case "warning":
		return LevelWarn
	}
	return LevelInfo
}

// Entry is one log line.
type Entry struct {
	Timestamp    time.Time      `json:"timestamp"`
	Level        Level          `json:"level"`
	Message      string         `json:"message"`
	Component    string         `json:"component,omitempty"`
	InvocationID string         `json:"invocation_id,omitempty"`
	Fields       map[string]any `json:"fields,omitempty"`
}

// Config configures New. Zero values give stderr output at info, keeping
// 1000 entries.
type Config struct {
	Output     io.Writer
	Level      Level
	Component  string
	MaxEntries int
}

// Logger writes entries at or above its level and retains the newest
// MaxEntries of them.
type Logger struct {
	component string

	mu     sync.RWMutex
	out    io.Writer
	level  Level
	ring   []Entry
	next   int // slot the next entry goes in once ring is full
	counts [4]int64
}

func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	if cfg.Level == "" {
		cfg.Level = LevelInfo
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 1000
	}
	return &Logger{
		component: cfg.Component,
		out:       cfg.Output,
		level:     cfg.Level,
		ring:      make([]Entry, 0, cfg.MaxEntries),
	}
}

// Discard returns a logger that only keeps the last 100 entries in memory.
func Discard(component string) *Logger {
	return New(Config{Output: io.Discard, Component: component, MaxEntries: 100})
}

func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

func (l *Logger) log(level Level, invocationID, msg string, fields []map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level.rank() < l.level.rank() {
		return
	}

	e := Entry{
		Timestamp:    time.Now().UTC(),
		Level:        level,
		Message:      msg,
		Component:    l.component,
		InvocationID: invocationID,
	}
	if len(fields) > 0 {
		e.Fields = fields[0]
	}

	l.counts[level.rank()+1]++
	if len(l.ring) < cap(l.ring) {
		l.ring = append(l.ring, e)
	} else {
		l.ring[l.next] = e
		l.next = (l.next + 1) % len(l.ring)
	}

	line, err := json.Marshal(e)
	if err != nil {
		// Fields that cannot be encoded are dropped from the written line.
		e.Fields = map[string]any{"marshal_error": err.Error()}
		line, _ = json.Marshal(e)
	}
	_, _ = l.out.Write(append(line, '\n'))
}

func (l *Logger) Debug(msg string, fields ...map[string]any) { l.log(LevelDebug, "", msg, fields) }
func (l *Logger) Info(msg string, fields ...map[string]any)  { l.log(LevelInfo, "", msg, fields) }
func (l *Logger) Warn(msg string, fields ...map[string]any)  { l.log(LevelWarn, "", msg, fields) }
func (l *Logger) Error(msg string, fields ...map[string]any) { l.log(LevelError, "", msg, fields) }

// WithInvocation scopes a logger to one invocation; its entries carry the
// id and can be queried by it.
func (l *Logger) WithInvocation(invocationID string) *InvocationLogger {
	return &InvocationLogger{parent: l, id: invocationID}
}

// InvocationLogger tags every entry with an invocation id.
type InvocationLogger struct {
	parent *Logger
	id     string
}

func (il *InvocationLogger) InvocationID() string { return il.id }

func (il *InvocationLogger) Debug(msg string, fields ...map[string]any) {
	il.parent.log(LevelDebug, il.id, msg, fields)
}

func (il *InvocationLogger) Info(msg string, fields ...map[string]any) {
	il.parent.log(LevelInfo, il.id, msg, fields)
}

func (il *InvocationLogger) Warn(msg string, fields ...map[string]any) {
	il.parent.log(LevelWarn, il.id, msg, fields)
}

func (il *InvocationLogger) Error(msg string, fields ...map[string]any) {
	il.parent.log(LevelError, il.id, msg, fields)
}

// Query filters retained entries. Zero fields match everything; Level is
// a minimum and Limit keeps the newest matches.
type Query struct {
	Level        Level
	InvocationID string
	Component    string
	Since        time.Time
	Until        time.Time
	Limit        int
}

func (q Query) match(e Entry) bool {
	switch {
	case q.Level != "" && e.Level.rank() < q.Level.rank():
		return false
	case q.InvocationID != "" && e.InvocationID != q.InvocationID:
		return false
	case q.Component != "" && e.Component != q.Component:
		return false
	case !q.Since.IsZero() && e.Timestamp.Before(q.Since):
		return false
	case !q.Until.IsZero() && e.Timestamp.After(q.Until):
		return false
	}
	return true
}

// QueryResult holds the matches, how many there were before Limit, and
// the logger's lifetime counts.
type QueryResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Counts  Stats   `json:"counts"`
}

// Stats counts every entry logged since creation or the last Clear,
// including ones no longer retained.
type Stats struct {
	Debug int64 `json:"debug"`
	Info  int64 `json:"info"`
	Warn  int64 `json:"warn"`
	Error int64 `json:"error"`
	Total int64 `json:"total"`
}

func (l *Logger) stats() Stats {
	s := Stats{Debug: l.counts[0], Info: l.counts[1], Warn: l.counts[2], Error: l.counts[3]}
	s.Total = s.Debug + s.Info + s.Warn + s.Error
	return s
}

func (l *Logger) Query(q Query) QueryResult {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var hits []Entry
	// Oldest first: once the ring has wrapped it starts at next.
	for i := range l.ring {
		if e := l.ring[(l.next+i)%len(l.ring)]; q.match(e) {
			hits = append(hits, e)
		}
	}
	total := len(hits)
	if q.Limit > 0 && total > q.Limit {
		hits = hits[total-q.Limit:]
	}
	return QueryResult{Entries: hits, Total: total, Counts: l.stats()}
}

func (l *Logger) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stats()
}

// Clear drops retained entries and resets counts.
func (l *Logger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ring = l.ring[:0]
	l.next = 0
	l.counts = [4]int64{}
}
