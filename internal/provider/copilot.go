package provider

// copilotDialect drives the GitHub Copilot CLI in programmatic mode.
type copilotDialect struct{}

func (copilotDialect) Binary() string { return "copilot" }

func (copilotDialect) BuildArgs(req Request) []string {
	var args []string
	if !req.Mode.readOnly() {
		args = append(args, "--allow-all-tools")
	}
	for _, tool := range req.AllowedTools {
		args = append(args, "--allow-tool", tool)
	}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	return append(args, "--prompt", req.Prompt)
}

func (copilotDialect) ExtractResult(stdout, stderr string) string {
	return extractText(stdout, stderr)
}

func (copilotDialect) ParseSessionID(_, _, _ string) string { return "" }
