package testutil

import (
	"fmt"
	"hash/fnv"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// AllocateTestPort returns a deterministic port based on test name
func AllocateTestPort(t *testing.T) int {
	t.Helper()
	return AllocateTestPortN(t, 0)
}

// AllocateTestPortN returns a deterministic port based on test name and index.
// Use different index values to get multiple unique ports within the same test.
func AllocateTestPortN(t *testing.T, n int) int {
	t.Helper()
	h := fnv.New32a()
	h.Write([]byte(t.Name()))
	h.Write([]byte{byte(n)})
	return 10000 + int(h.Sum32()%10000)
}

// WaitForHealthy waits for a URL to return 200 OK
func WaitForHealthy(t *testing.T, url string, timeout time.Duration) {
	t.Helper()
	WaitForHealthyClient(t, &http.Client{Timeout: 500 * time.Millisecond}, url, timeout)
}

// WaitForHealthyClient is WaitForHealthy with a caller-supplied client,
// for services behind a self-signed certificate.
func WaitForHealthyClient(t *testing.T, client *http.Client, url string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil && resp.StatusCode == http.StatusOK {
			resp.Body.Close()
			return
		}
		if resp != nil {
			resp.Body.Close()
		}
		time.Sleep(50 * time.Millisecond)
	}

	t.Fatalf("Service at %s did not become healthy within %v", url, timeout)
}

// Eventually retries a condition until it returns true or timeout expires
func Eventually(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("Condition did not become true within timeout")
}

// SkipIfNoBash skips tests that drive mock CLIs written as bash scripts.
func SkipIfNoBash(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("mock CLI scripts require a unix shell")
	}
	if _, err := os.Stat("/bin/bash"); err != nil {
		t.Skip("bash not available")
	}
}

// WriteScript writes an executable bash script named name into a temp dir
// and returns its path.
func WriteScript(t *testing.T, name, body string) string {
	t.Helper()
	SkipIfNoBash(t)
	path := filepath.Join(t.TempDir(), name)
	content := "#!/bin/bash\n" + body
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

// EchoScript returns a script body that prints stdout verbatim and exits 0.
func EchoScript(stdout string) string {
	return fmt.Sprintf("cat <<'FOREMAN_EOF'\n%s\nFOREMAN_EOF\n", stdout)
}

// FailScript returns a script body that writes stderr and exits with code.
func FailScript(stderr string, code int) string {
	return fmt.Sprintf("cat >&2 <<'FOREMAN_EOF'\n%s\nFOREMAN_EOF\nexit %d\n", stderr, code)
}

// ArgsScript returns a script body that writes each argument on its own line
// to file, then prints stdout.
func ArgsScript(file, stdout string) string {
	return fmt.Sprintf("printf '%%s\\n' \"$@\" > %q\n", file) + EchoScript(stdout)
}

// SleepScript returns a script body that prints a line then sleeps. With
// ignoreTerm set the script traps SIGTERM so only SIGKILL stops it.
func SleepScript(seconds int, ignoreTerm bool) string {
	var b strings.Builder
	if ignoreTerm {
		b.WriteString("trap '' TERM\n")
	}
	b.WriteString("echo started\n")
	fmt.Fprintf(&b, "sleep %d\n", seconds)
	b.WriteString("echo finished\n")
	return b.String()
}

// ClaudeStream returns claude stream-json output ending in a result event.
func ClaudeStream(sessionID, result string) string {
	return fmt.Sprintf(`{"type":"system","subtype":"init","session_id":%q}
{"type":"assistant","message":{"content":[{"type":"text","text":%q}]},"session_id":%q}
{"type":"result","subtype":"success","session_id":%q,"result":%q,"num_turns":1,"usage":{"input_tokens":100,"output_tokens":50}}`,
		sessionID, result, sessionID, sessionID, result)
}
