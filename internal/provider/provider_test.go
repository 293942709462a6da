package provider

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const longPrompt = "Refactor the payment reconciliation module so that retries are idempotent and logged"

func TestDisplayCommand_RedactsLongPrompt(t *testing.T) {
	t.Parallel()

	for _, typ := range Types() {
		typ := typ
		t.Run(string(typ), func(t *testing.T) {
			t.Parallel()
			d := newDialect(typ)
			for _, mode := range []Mode{ModePlan, ModeCode, ModeAnalyze} {
				args := d.BuildArgs(Request{
					Prompt:       longPrompt,
					Mode:         mode,
					Model:        "some-model",
					SessionID:    "sess-12345678",
					Resume:       true,
					AllowedTools: []string{"Read", "Bash(git:*)"},
				})
				require.Contains(t, args, longPrompt, "prompt must reach the CLI")

				cmd := displayCommand(d.Binary(), args, longPrompt)
				assert.NotContains(t, cmd, longPrompt)
				assert.NotContains(t, cmd, longPrompt[:51])
				assert.Contains(t, cmd, "<prompt: 84 chars>")
			}
		})
	}
}

func TestDisplayCommand_ShortArgs(t *testing.T) {
	t.Parallel()

	cmd := displayCommand("claude", []string{"--print", "--model", "opus", "--", "fix it"}, "fix it")
	assert.Equal(t, "claude --print --model opus -- 'fix it'", cmd)

	cmd = displayCommand("/usr/bin/tool", []string{"it's", ""}, "")
	assert.Equal(t, `/usr/bin/tool 'it'\''s' ''`, cmd)
}

func TestDisplayCommand_TruncatesLongArgs(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 60)
	cmd := displayCommand("tool", []string{long}, "short")
	assert.Contains(t, cmd, strings.Repeat("x", 50)+"...")
	assert.NotContains(t, cmd, long)
}

func TestParseSessionID_NonResumable(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(Options{})
	stdout := `{"session_id":"abcdef123456","sessionID":"ses_0123456789"}`
	stderr := "Session ID: banner-session-1"

	for _, typ := range []Type{TypeGemini, TypeAider, TypeCopilot, TypeAmp, TypeQwen} {
		p := reg.Get(typ).(*cliProvider)
		assert.False(t, SupportsResume(p), typ)
		assert.Empty(t, p.parseSessionID(stdout, stderr, "caller-session"), typ)
	}
}

func TestParseSessionID_Resumable(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(Options{})
	for _, typ := range []Type{TypeClaude, TypeCodex, TypeOpenCode, TypeCursor} {
		p := reg.Get(typ).(*cliProvider)
		assert.True(t, SupportsResume(p), typ)
	}

	claude := reg.Get(TypeClaude).(*cliProvider)
	assert.Equal(t, "abc-123-def", claude.parseSessionID(`{"type":"result","session_id":"abc-123-def"}`, "", "prior"))
	assert.Equal(t, "prior", claude.parseSessionID("plain output", "", "prior"))

	codex := reg.Get(TypeCodex).(*cliProvider)
	assert.Equal(t, "0199a213-81c0", codex.parseSessionID(`{"type":"thread.started","thread_id":"0199a213-81c0"}`, "", ""))

	opencode := reg.Get(TypeOpenCode).(*cliProvider)
	assert.Equal(t, "ses_abc123", opencode.parseSessionID(`{"type":"text","sessionID":"ses_abc123","part":{"type":"text","text":"x"}}`, "", ""))
}

func TestBuildArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		typ     Type
		req     Request
		want    []string
		notWant []string
	}{
		{
			name:    "claude fresh code",
			typ:     TypeClaude,
			req:     Request{Prompt: "p", Mode: ModeCode, SessionID: "old-session", AllowedTools: []string{"Read", "Edit"}},
			want:    []string{"--output-format", "stream-json", "--dangerously-skip-permissions", "--allowedTools", "Read,Edit"},
			notWant: []string{"--resume", "old-session", "--permission-mode"},
		},
		{
			name: "claude resume plan",
			typ:  TypeClaude,
			req:  Request{Prompt: "p", Mode: ModePlan, SessionID: "abc", Resume: true},
			want: []string{"--permission-mode", "plan", "--resume", "abc"},
		},
		{
			name:    "codex analyze",
			typ:     TypeCodex,
			req:     Request{Prompt: "p", Mode: ModeAnalyze},
			want:    []string{"exec", "--json", "--sandbox", "read-only"},
			notWant: []string{"resume"},
		},
		{
			name: "codex resume",
			typ:  TypeCodex,
			req:  Request{Prompt: "p", Mode: ModeCode, SessionID: "thr-1", Resume: true},
			want: []string{"resume", "thr-1", "--dangerously-bypass-approvals-and-sandbox"},
		},
		{
			name:    "gemini code",
			typ:     TypeGemini,
			req:     Request{Prompt: "p", Mode: ModeCode, SessionID: "x", Resume: true},
			want:    []string{"--output-format", "json", "--approval-mode", "yolo"},
			notWant: []string{"x"},
		},
		{
			name: "opencode resume plan",
			typ:  TypeOpenCode,
			req:  Request{Prompt: "p", Mode: ModePlan, SessionID: "ses_1", Resume: true, Model: "anthropic/claude"},
			want: []string{"run", "--format", "json", "--agent", "plan", "--session", "ses_1", "--model", "anthropic/claude"},
		},
		{
			name:    "cursor plan",
			typ:     TypeCursor,
			req:     Request{Prompt: "p", Mode: ModePlan},
			want:    []string{"--print", "--output-format", "json"},
			notWant: []string{"--force", "--resume"},
		},
		{
			name: "aider plan",
			typ:  TypeAider,
			req:  Request{Prompt: "p", Mode: ModePlan},
			want: []string{"--message", "--yes-always", "--dry-run"},
		},
		{
			name:    "copilot code",
			typ:     TypeCopilot,
			req:     Request{Prompt: "p", Mode: ModeCode, AllowedTools: []string{"shell(git)"}},
			want:    []string{"--allow-all-tools", "--allow-tool", "shell(git)", "--prompt"},
			notWant: []string{"--resume"},
		},
		{
			name: "amp code",
			typ:  TypeAmp,
			req:  Request{Prompt: "p", Mode: ModeCode},
			want: []string{"--execute", "--stream-json", "--dangerously-allow-all"},
		},
		{
			name:    "qwen plan",
			typ:     TypeQwen,
			req:     Request{Prompt: "p", Mode: ModePlan},
			want:    []string{"--prompt"},
			notWant: []string{"--yolo"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			args := newDialect(tt.typ).BuildArgs(tt.req)
			for _, w := range tt.want {
				assert.Contains(t, args, w)
			}
			for _, nw := range tt.notWant {
				assert.NotContains(t, args, nw)
			}
			assert.Equal(t, tt.req.Prompt, args[len(args)-1], "prompt is the last argument")
		})
	}
}

func TestBuildArgs_PositionalPromptAfterSeparator(t *testing.T) {
	t.Parallel()

	prompt := "--help me rename this flag"
	for _, typ := range []Type{TypeClaude, TypeCodex, TypeOpenCode, TypeCursor} {
		typ := typ
		t.Run(string(typ), func(t *testing.T) {
			t.Parallel()
			args := newDialect(typ).BuildArgs(Request{Prompt: prompt, Mode: ModeCode, SessionID: "s1", Resume: true})
			require.GreaterOrEqual(t, len(args), 2)
			assert.Equal(t, prompt, args[len(args)-1])
			assert.Equal(t, "--", args[len(args)-2])
		})
	}
}

func TestExtractResult(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		typ    Type
		stdout string
		stderr string
		want   string
	}{
		{
			name: "claude stream prefers result event",
			typ:  TypeClaude,
			stdout: `{"type":"system","subtype":"init","session_id":"s1"}
{"type":"assistant","message":{"content":[{"type":"text","text":"Working on it"},{"type":"tool_use","id":"t1","name":"Read","input":{}}]}}
{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"t1","content":"file body"}]}}
{"type":"result","subtype":"success","result":"All done.","session_id":"s1"}`,
			want: "All done.",
		},
		{
			name: "claude stream without result",
			typ:  TypeClaude,
			stdout: `{"type":"assistant","message":{"content":[{"type":"text","text":"First"}]}}
{"type":"user","message":{"content":[{"type":"tool_result","content":"ignored"}]}}
{"type":"assistant","message":{"content":[{"type":"text","text":"Second"}]}}`,
			want: "First\nSecond",
		},
		{
			name:   "gemini whole document",
			typ:    TypeGemini,
			stdout: `{"response":"  The answer is 42.  ","stats":{"models":{}}}`,
			want:   "The answer is 42.",
		},
		{
			name:   "cursor truncated document is repaired",
			typ:    TypeCursor,
			stdout: `{"type":"result","result":"partial answer`,
			want:   "partial answer",
		},
		{
			name: "codex agent messages",
			typ:  TypeCodex,
			stdout: `{"type":"thread.started","thread_id":"t-1"}
{"type":"item.completed","item":{"id":"i0","type":"reasoning","text":"thinking"}}
{"type":"item.completed","item":{"id":"i1","type":"command_execution","command":"ls","aggregated_output":"a b"}}
{"type":"item.completed","item":{"id":"i2","type":"agent_message","text":"Listed the files."}}
{"type":"turn.completed","usage":{"input_tokens":10,"output_tokens":5}}`,
			want: "Listed the files.",
		},
		{
			name: "opencode text parts",
			typ:  TypeOpenCode,
			stdout: `{"type":"step_start","sessionID":"ses_1","part":{"type":"step-start"}}
{"type":"text","sessionID":"ses_1","part":{"type":"text","text":"Hello"}}
{"type":"tool_use","sessionID":"ses_1","part":{"type":"tool","tool":"bash"}}
{"type":"text","sessionID":"ses_1","part":{"type":"text","text":"World"}}`,
			want: "Hello\nWorld",
		},
		{
			name:   "aider plain text",
			typ:    TypeAider,
			stdout: "\n  Applied edit to main.go\n\n",
			want:   "Applied edit to main.go",
		},
		{
			name:   "empty stdout falls back to stderr",
			typ:    TypeQwen,
			stdout: "  \n",
			stderr: " rate limited \n",
			want:   "rate limited",
		},
		{
			name:   "json without known fields is kept raw",
			typ:    TypeGemini,
			stdout: `{"error":{"code":429}}`,
			want:   `{"error":{"code":429}}`,
		},
		{
			name:   "nothing at all",
			typ:    TypeCopilot,
			stdout: "",
			want:   "",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := newDialect(tt.typ)
			assert.Equal(t, tt.want, d.ExtractResult(tt.stdout, tt.stderr))
		})
	}
}

func TestExtractResult_TotalAndIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"plain text answer",
		"{",
		"{not json at all",
		`{"result":`,
		`{"result":42}`,
		`[1,2,3]`,
		"{\"a\":1}\n{broken\n{\"text\":\"ok\"}",
		`{"message":{"content":[1,{"type":"text"},null]}}`,
		"{{{{",
		"\x00\xff\xfe binary",
	}

	for _, typ := range Types() {
		d := newDialect(typ)
		for _, in := range inputs {
			var first, second string
			require.NotPanics(t, func() {
				first = d.ExtractResult(in, in)
				second = d.ExtractResult(in, in)
			}, "%s: %q", typ, in)
			assert.Equal(t, first, second, "%s: %q", typ, in)
		}
		plain := d.ExtractResult("  plain text answer  ", "")
		assert.Equal(t, plain, d.ExtractResult(plain, ""), typ)
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(Options{})
	assert.Len(t, reg.Types(), 9)
	for _, typ := range reg.Types() {
		assert.Equal(t, typ, reg.Get(typ).Type())
	}
	assert.Equal(t, TypeClaude, reg.Get(Type("nonexistent")).Type())
	assert.Same(t, reg.Get(TypeCodex), reg.Get(TypeCodex))

	assert.Same(t, Default(), Default())
}

func TestParseType(t *testing.T) {
	t.Parallel()

	typ, err := ParseType("cursor")
	require.NoError(t, err)
	assert.Equal(t, TypeCursor, typ)

	_, err = ParseType("Claude")
	assert.Error(t, err)
	_, err = ParseType("")
	assert.Error(t, err)
}

func TestResolveBinary(t *testing.T) {
	t.Setenv("CURSOR_BIN", "/opt/cursor/bin/cursor-agent")
	t.Setenv("QWEN_BIN", "")

	reg := NewRegistry(Options{Binaries: map[Type]string{TypeAider: "/usr/local/bin/aider-dev"}})
	assert.Equal(t, "/usr/local/bin/aider-dev", reg.Get(TypeAider).(*cliProvider).resolveBinary())
	assert.Equal(t, "/opt/cursor/bin/cursor-agent", reg.Get(TypeCursor).(*cliProvider).resolveBinary())
	assert.Equal(t, "qwen", reg.Get(TypeQwen).(*cliProvider).resolveBinary())
}

func TestIsAvailable(t *testing.T) {
	t.Setenv(AmpAPIKeyEnv, "")

	reg := NewRegistry(Options{Binaries: map[Type]string{TypeClaude: "foreman-missing-cli-xyz"}})
	ctx := context.Background()
	assert.False(t, reg.Get(TypeClaude).IsAvailable(ctx))
	assert.False(t, reg.Get(TypeAmp).IsAvailable(ctx))

	t.Setenv(AmpAPIKeyEnv, "sk-test")
	assert.True(t, reg.Get(TypeAmp).IsAvailable(ctx))
}

func TestAmpBuildEnv(t *testing.T) {
	t.Setenv(AmpAPIKeyEnv, "sk-fresh")

	env := ampDialect{}.BuildEnv([]string{"PATH=/bin", AmpAPIKeyEnv + "=stale", "HOME=/root"})
	assert.Equal(t, []string{"PATH=/bin", "HOME=/root", AmpAPIKeyEnv + "=sk-fresh"}, env)
}

func TestModeValid(t *testing.T) {
	t.Parallel()

	assert.True(t, ModePlan.Valid())
	assert.True(t, ModeCode.Valid())
	assert.True(t, ModeAnalyze.Valid())
	assert.False(t, Mode("review").Valid())
	assert.False(t, Mode("").Valid())
}
