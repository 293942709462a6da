package provider

// aiderDialect runs a single aider message non-interactively. Output is plain
// text and there is no resumable session.
type aiderDialect struct{}

func (aiderDialect) Binary() string { return "aider" }

func (aiderDialect) BuildArgs(req Request) []string {
	args := []string{
		"--yes-always",
		"--no-pretty",
		"--no-stream",
		"--no-check-update",
	}
	if req.Mode.readOnly() {
		args = append(args, "--dry-run")
	}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	return append(args, "--message", req.Prompt)
}

func (aiderDialect) ExtractResult(stdout, stderr string) string {
	return extractText(stdout, stderr)
}

func (aiderDialect) ParseSessionID(_, _, _ string) string { return "" }
