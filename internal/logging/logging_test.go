package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithInvocation_TagsWrittenLines(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Output: &buf, Component: "provider"})

	inv := log.WithInvocation("0b5e9c1a")
	assert.Equal(t, "0b5e9c1a", inv.InvocationID())
	inv.Info("spawned", map[string]any{"pid": 4242, "provider": "claude"})
	inv.Debug("below threshold")
	log.Warn("availability check timed out")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var spawned Entry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &spawned))
	assert.Equal(t, "0b5e9c1a", spawned.InvocationID)
	assert.Equal(t, "provider", spawned.Component)
	assert.Equal(t, LevelInfo, spawned.Level)
	assert.Equal(t, "claude", spawned.Fields["provider"])
	assert.NotContains(t, lines[1], "invocation_id")
}

func TestQuery_ByInvocation(t *testing.T) {
	log := Discard("fallback")

	first := log.WithInvocation("inv-a")
	second := log.WithInvocation("inv-b")
	first.Info("attempting resume")
	second.Info("fresh attempt")
	first.Warn("resume failed, falling back")
	first.Info("fresh attempt")
	log.Info("not tied to an invocation")

	res := log.Query(Query{InvocationID: "inv-a"})
	require.Equal(t, 3, res.Total)
	assert.Equal(t, []string{"attempting resume", "resume failed, falling back", "fresh attempt"}, messages(res.Entries))
	assert.Equal(t, int64(5), res.Counts.Total)

	warn := log.Query(Query{InvocationID: "inv-a", Level: LevelWarn})
	require.Len(t, warn.Entries, 1)
	assert.Equal(t, LevelWarn, warn.Entries[0].Level)

	latest := log.Query(Query{InvocationID: "inv-a", Limit: 1})
	assert.Equal(t, 3, latest.Total)
	assert.Equal(t, []string{"fresh attempt"}, messages(latest.Entries))

	assert.Empty(t, log.Query(Query{InvocationID: "inv-missing"}).Entries)
}

func TestQuery_RingKeepsNewest(t *testing.T) {
	log := New(Config{Output: &bytes.Buffer{}, MaxEntries: 4})
	for i := 1; i <= 10; i++ {
		log.WithInvocation(fmt.Sprintf("inv-%d", i%2)).Info(fmt.Sprintf("chunk %d", i))
	}

	res := log.Query(Query{})
	assert.Equal(t, []string{"chunk 7", "chunk 8", "chunk 9", "chunk 10"}, messages(res.Entries))
	assert.Equal(t, []string{"chunk 8", "chunk 10"}, messages(log.Query(Query{InvocationID: "inv-0"}).Entries))
	assert.Equal(t, int64(10), log.Stats().Info)

	log.Clear()
	assert.Empty(t, log.Query(Query{}).Entries)
	assert.Zero(t, log.Stats().Total)

	log.Error("after clear")
	assert.Equal(t, []string{"after clear"}, messages(log.Query(Query{}).Entries))
}

func TestSetLevel_Quiet(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Output: &buf})
	log.SetLevel(LevelError)
	log.WithInvocation("inv").Warn("suppressed")
	assert.Empty(t, buf.String())
	log.WithInvocation("inv").Error("kept")
	assert.Contains(t, buf.String(), `"message":"kept"`)
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{
		"debug":   LevelDebug,
		"DEBUG":   LevelDebug,
		"Warning": LevelWarn,
		"warn":    LevelWarn,
		" error ": LevelError,
		"info":    LevelInfo,
		"":        LevelInfo,
		"trace":   LevelInfo,
	} {
		assert.Equal(t, want, ParseLevel(in), "ParseLevel(%q)", in)
	}
}

func messages(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Message
	}
	return out
}
