package provider

// opencodeDialect drives `opencode run --format json`. Events carry the
// session as sessionID.
type opencodeDialect struct{}

func (opencodeDialect) Binary() string { return "opencode" }

func (opencodeDialect) SupportsResume() bool { return true }

func (opencodeDialect) BuildArgs(req Request) []string {
	args := []string{"run", "--format", "json"}
	if req.Mode.readOnly() {
		args = append(args, "--agent", "plan")
	}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	if req.Resume && req.SessionID != "" {
		args = append(args, "--session", req.SessionID)
	}
	return append(args, "--", req.Prompt)
}

func (opencodeDialect) ExtractResult(stdout, stderr string) string {
	return extractText(stdout, stderr)
}
