package provider

// geminiDialect drives the Gemini CLI with whole-document JSON output. It has
// no headless session concept.
type geminiDialect struct{}

func (geminiDialect) Binary() string { return "gemini" }

func (geminiDialect) BuildArgs(req Request) []string {
	args := []string{"--output-format", "json"}
	if !req.Mode.readOnly() {
		args = append(args, "--approval-mode", "yolo")
	}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	return append(args, "--prompt", req.Prompt)
}

func (geminiDialect) ExtractResult(stdout, stderr string) string {
	return extractText(stdout, stderr, "response")
}

func (geminiDialect) ParseSessionID(_, _, _ string) string { return "" }
