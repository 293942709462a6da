package provider

// qwenDialect drives Qwen Code in prompt mode.
type qwenDialect struct{}

func (qwenDialect) Binary() string { return "qwen" }

func (qwenDialect) BuildArgs(req Request) []string {
	var args []string
	if !req.Mode.readOnly() {
		args = append(args, "--yolo")
	}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	return append(args, "--prompt", req.Prompt)
}

func (qwenDialect) ExtractResult(stdout, stderr string) string {
	return extractText(stdout, stderr)
}

func (qwenDialect) ParseSessionID(_, _, _ string) string { return "" }
