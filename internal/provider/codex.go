package provider

import "phobos.org.uk/foreman/internal/stream"

// codexDialect drives `codex exec --json`. Sessions are threads and resume
// through the exec resume subcommand.
type codexDialect struct{}

func (codexDialect) Binary() string { return "codex" }

func (codexDialect) SupportsResume() bool { return true }

func (codexDialect) BuildArgs(req Request) []string {
	args := []string{
		"exec",
		"--json",
		"--skip-git-repo-check",
	}
	if req.Mode.readOnly() {
		args = append(args, "--sandbox", "read-only")
	} else {
		args = append(args, "--dangerously-bypass-approvals-and-sandbox")
	}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	if req.Resume && req.SessionID != "" {
		args = append(args, "resume", req.SessionID)
	}
	return append(args, "--", req.Prompt)
}

func (codexDialect) ExtractResult(stdout, stderr string) string {
	return extractText(stdout, stderr, "last_agent_message")
}

func (codexDialect) NewStreamParser() stream.Parser {
	return stream.NewCodexParser()
}
