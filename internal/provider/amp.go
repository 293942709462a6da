package provider

import (
	"context"
	"os"
	"strings"

	"phobos.org.uk/foreman/internal/stream"
)

// AmpAPIKeyEnv holds the credential amp needs to run headless.
const AmpAPIKeyEnv = "AMP_API_KEY"

// ampDialect drives amp in execute mode. Its stream-json output follows the
// Claude event format. Availability depends on the API key, not PATH.
type ampDialect struct{}

func (ampDialect) Binary() string { return "amp" }

func (ampDialect) BuildArgs(req Request) []string {
	args := []string{"--stream-json"}
	if !req.Mode.readOnly() {
		args = append(args, "--dangerously-allow-all")
	}
	return append(args, "--execute", req.Prompt)
}

func (ampDialect) ExtractResult(stdout, stderr string) string {
	return extractText(stdout, stderr, "result")
}

func (ampDialect) ParseSessionID(_, _, _ string) string { return "" }

func (ampDialect) IsAvailable(_ context.Context, _ string) bool {
	return os.Getenv(AmpAPIKeyEnv) != ""
}

// BuildEnv sets AMP_API_KEY explicitly, replacing any inherited value.
func (ampDialect) BuildEnv(env []string) []string {
	key := os.Getenv(AmpAPIKeyEnv)
	if key == "" {
		return env
	}
	out := make([]string, 0, len(env)+1)
	for _, kv := range env {
		if strings.HasPrefix(kv, AmpAPIKeyEnv+"=") {
			continue
		}
		out = append(out, kv)
	}
	return append(out, AmpAPIKeyEnv+"="+key)
}

func (ampDialect) NewStreamParser() stream.Parser {
	return stream.NewAmpParser()
}
