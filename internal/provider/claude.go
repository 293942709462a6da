package provider

import (
	"strings"

	"phobos.org.uk/foreman/internal/stream"
)

// claudeDialect drives the Claude Code CLI in print mode with stream-json
// output.
type claudeDialect struct{}

func (claudeDialect) Binary() string { return "claude" }

func (claudeDialect) SupportsResume() bool { return true }

func (claudeDialect) BuildArgs(req Request) []string {
	args := []string{
		"--print",
		"--output-format", "stream-json",
		"--verbose",
	}
	if req.Mode.readOnly() {
		args = append(args, "--permission-mode", "plan")
	} else {
		args = append(args, "--dangerously-skip-permissions")
	}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	if len(req.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(req.AllowedTools, ","))
	}
	if req.Resume && req.SessionID != "" {
		args = append(args, "--resume", req.SessionID)
	}
	// "--" keeps prompts starting with a dash from being read as flags.
	return append(args, "--", req.Prompt)
}

func (claudeDialect) ExtractResult(stdout, stderr string) string {
	return extractText(stdout, stderr, "result")
}

func (claudeDialect) NewStreamParser() stream.Parser {
	return stream.NewClaudeParser()
}
