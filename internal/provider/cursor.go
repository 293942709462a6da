package provider

// cursorDialect drives cursor-agent in print mode with JSON output.
type cursorDialect struct{}

func (cursorDialect) Binary() string { return "cursor-agent" }

func (cursorDialect) SupportsResume() bool { return true }

func (cursorDialect) BuildArgs(req Request) []string {
	args := []string{"--print", "--output-format", "json"}
	if !req.Mode.readOnly() {
		args = append(args, "--force")
	}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	if req.Resume && req.SessionID != "" {
		args = append(args, "--resume", req.SessionID)
	}
	return append(args, "--", req.Prompt)
}

func (cursorDialect) ExtractResult(stdout, stderr string) string {
	return extractText(stdout, stderr, "result")
}
