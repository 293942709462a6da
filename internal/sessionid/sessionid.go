// Package sessionid scans provider output for resumable session tokens and
// for markers showing the agent stopped to ask the user a question.
package sessionid

import (
	"regexp"
	"strings"
)

const maxLen = 128

// safePattern matches ids that can be handed back to a CLI and used as a
// log file name.
var safePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// Patterns are tried in order; within one pattern the last match wins so a
// session that was forked or renewed mid-run reports its newest id.
var patterns = []*regexp.Regexp{
	regexp.MustCompile(`"session_id"\s*:\s*"([^"]+)"`),
	regexp.MustCompile(`"sessionId"\s*:\s*"([^"]+)"`),
	regexp.MustCompile(`"sessionID"\s*:\s*"([^"]+)"`),
	regexp.MustCompile(`"thread_id"\s*:\s*"([^"]+)"`),
	regexp.MustCompile(`(?i)\bsession(?:[ _-]?id)?\s*[:=]\s*([A-Za-z0-9][A-Za-z0-9._-]{7,127})`),
}

// Extract returns the most specific session id found in the given texts, or
// "" when none is present. Texts are searched in order.
func Extract(texts ...string) string {
	for _, re := range patterns {
		for _, text := range texts {
			if text == "" {
				continue
			}
			matches := re.FindAllStringSubmatch(text, -1)
			for i := len(matches) - 1; i >= 0; i-- {
				if id := matches[i][1]; IsSafe(id) {
					return id
				}
			}
		}
	}
	return ""
}

// IsSafe reports whether id is short, has no path separators and uses only
// characters a CLI flag and a file name can carry.
func IsSafe(id string) bool {
	if id == "" || len(id) > maxLen {
		return false
	}
	if strings.Contains(id, "..") {
		return false
	}
	return safePattern.MatchString(id)
}

// questionMarkers are emitted by agents that halted waiting for user input.
var questionMarkers = []string{
	`"name":"AskUserQuestion"`,
	`"name": "AskUserQuestion"`,
	"<ask_user>",
	"[[ASK_USER]]",
	"NEEDS_USER_INPUT",
	"QUESTION_FOR_USER:",
}

// EndedWithQuestion reports whether any of texts carries an ask-user marker.
func EndedWithQuestion(texts ...string) bool {
	for _, text := range texts {
		if text == "" {
			continue
		}
		for _, marker := range questionMarkers {
			if strings.Contains(text, marker) {
				return true
			}
		}
	}
	return false
}
