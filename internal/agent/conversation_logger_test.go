package agent

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readEvents(t *testing.T, path string) []ConversationLogEvent {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var out []ConversationLogEvent
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var ev ConversationLogEvent
		require.NoError(t, json.Unmarshal([]byte(line), &ev))
		out = append(out, ev)
	}
	return out
}

func TestConversationLoggerSplitsSessions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	global := filepath.Join(dir, "all", "all.ndjson")
	logger, err := NewConversationLogger(ConversationLogConfig{
		Enabled:       true,
		Dir:           dir,
		GlobalEnabled: true,
		GlobalPath:    global,
		QueueSize:     64,
	}, nil)
	require.NoError(t, err)

	logger.Log(ConversationLogEvent{SessionID: "tab:1", Channel: ChannelHTTP, EventType: "chat_user_message", ContentRaw: "*agent pm"})
	logger.Log(ConversationLogEvent{SessionID: "tab:2", Channel: ChannelWebSocket, EventType: "chat_user_message", ContentRaw: "hello"})
	logger.Log(ConversationLogEvent{SessionID: "tab:1", Channel: ChannelHTTP, EventType: "chat_assistant_message", Responder: "pm", ContentRaw: "Hi, I'm John."})
	require.NoError(t, logger.Close())

	first := readEvents(t, filepath.Join(dir, "tab_1.ndjson"))
	require.Len(t, first, 2)
	assert.Equal(t, "*agent pm", first[0].ContentRaw)
	assert.Equal(t, "*agent pm", first[0].Content)
	assert.NotEmpty(t, first[0].Timestamp)
	assert.Equal(t, "pm", first[1].Responder)

	second := readEvents(t, filepath.Join(dir, "tab_2.ndjson"))
	require.Len(t, second, 1)
	assert.Equal(t, ChannelWebSocket, second[0].Channel)

	assert.Len(t, readEvents(t, global), 3)
}

func TestConversationLoggerCloseIsFinal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := NewConversationLogger(ConversationLogConfig{Enabled: true, Dir: dir, QueueSize: 64}, nil)
	require.NoError(t, err)

	for range 10 {
		logger.Log(ConversationLogEvent{SessionID: "s", EventType: "chat_user_message", ContentRaw: "hi"})
	}
	require.NoError(t, logger.Close())
	logger.Log(ConversationLogEvent{SessionID: "s", ContentRaw: "after close"})
	require.NoError(t, logger.Close())

	events := readEvents(t, filepath.Join(dir, "s.ndjson"))
	assert.Len(t, events, 10)
	for _, ev := range events {
		assert.NotEqual(t, "after close", ev.ContentRaw)
	}
}

func TestDisabledConversationLoggerWritesNothing(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := NewConversationLogger(ConversationLogConfig{Dir: dir}, nil)
	require.NoError(t, err)
	logger.Log(ConversationLogEvent{SessionID: "s", ContentRaw: "x"})
	require.NoError(t, logger.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCleanForReadability(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"\x1b[31merror\x1b[0m plain":    "error plain",
		"line one\r\nline two\r":        "line one\nline two",
		"\x1b]0;title\x07 body\x00\x7f": "body",
		"  padded  ":                    "padded",
	}
	for in, want := range cases {
		assert.Equal(t, want, cleanForReadability(in), "%q", in)
	}
}
