package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ucalyptus/azure-oai-agent-sdk-go/internal/testutil"
	"github.com/ucalyptus/azure-oai-agent-sdk-go/messages"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	return &Store{BaseDir: t.TempDir()}
}

func TestAppendAndLoadRoundTrip(t *testing.T) {
	store := tempStore(t)
	sessionID := "session-roundtrip"

	first := messages.NewAssistant(sessionID, "gpt-4", []messages.ContentBlock{
		messages.TextBlock("Hello"),
	})
	second := messages.NewAssistant(sessionID, "gpt-4", []messages.ContentBlock{
		messages.ToolUseBlock("call_1", "get_weather", map[string]any{"city": "Paris"}),
	})
	final := messages.NewResult(sessionID)

	testutil.RequireNoError(t, store.Append(sessionID, first), "append first")
	testutil.RequireNoError(t, store.Append(sessionID, second), "append second")
	testutil.RequireNoError(t, store.Append(sessionID, final), "append result")

	replayed, err := store.Load(sessionID)
	testutil.RequireNoError(t, err, "load transcript")
	testutil.RequireEqual(t, len(replayed), 3, "replayed message count")

	assistant, ok := replayed[0].(*messages.Assistant)
	testutil.RequireTrue(t, ok, "first message should be an assistant message")
	testutil.RequireEqual(t, messages.ExtractText(assistant), "Hello", "first message text")

	toolMessage, ok := replayed[1].(*messages.Assistant)
	testutil.RequireTrue(t, ok, "second message should be an assistant message")
	testutil.RequireEqual(t, toolMessage.Message.Content[0].Name, "get_weather", "tool name")

	result, ok := replayed[2].(*messages.Result)
	testutil.RequireTrue(t, ok, "last message should be a result")
	testutil.RequireEqual(t, result.Subtype, "end", "result subtype")
}

func TestLoadSkipsMalformedLines(t *testing.T) {
	store := tempStore(t)
	sessionID := "session-malformed"

	testutil.RequireNoError(t, store.Append(sessionID, messages.NewAssistant(sessionID, "gpt-4", []messages.ContentBlock{
		messages.TextBlock("before"),
	})), "append first")

	file, err := os.OpenFile(store.TranscriptPath(sessionID), os.O_APPEND|os.O_WRONLY, 0o600)
	testutil.RequireNoError(t, err, "open transcript for corruption")
	_, err = file.WriteString("{\"type\": \"assistant\", truncated\n\n")
	testutil.RequireNoError(t, err, "write malformed line")
	testutil.RequireNoError(t, file.Close(), "close transcript")

	testutil.RequireNoError(t, store.Append(sessionID, messages.NewAssistant(sessionID, "gpt-4", []messages.ContentBlock{
		messages.TextBlock("after"),
	})), "append second")

	replayed, err := store.Load(sessionID)
	testutil.RequireNoError(t, err, "load transcript")
	testutil.RequireEqual(t, len(replayed), 2, "malformed line should be skipped")
	testutil.RequireEqual(t, messages.ExtractText(replayed[0]), "before", "first surviving message")
	testutil.RequireEqual(t, messages.ExtractText(replayed[1]), "after", "second surviving message")
}

func TestAppendCreatesPrivateFile(t *testing.T) {
	store := tempStore(t)
	sessionID := "session-perms"

	testutil.RequireNoError(t, store.Append(sessionID, messages.NewResult(sessionID)), "append")

	info, err := os.Stat(store.TranscriptPath(sessionID))
	testutil.RequireNoError(t, err, "stat transcript")
	testutil.RequireEqual(t, info.Mode().Perm(), os.FileMode(0o600), "transcript permissions")
}

func TestSaveLastAndLoadLast(t *testing.T) {
	store := tempStore(t)
	projectDir := "/work/project-a"

	testutil.RequireNoError(t, store.SaveLast(projectDir, "session-one"), "save first")
	testutil.RequireNoError(t, store.SaveLast(projectDir, "session-two"), "save overwrite")

	loaded, err := store.LoadLast(projectDir)
	testutil.RequireNoError(t, err, "load last")
	testutil.RequireEqual(t, loaded, "session-two", "latest session id wins")

	_, err = store.LoadLast("/work/project-b")
	testutil.RequireTrue(t, os.IsNotExist(err), "unknown project should report not-exist")
}

func TestProjectHashIsStable(t *testing.T) {
	first := ProjectHash("/work/project-a")
	second := ProjectHash("/work/project-a/")
	testutil.RequireEqual(t, first, second, "trailing slash should not change the hash")
	testutil.RequireEqual(t, len(first), 16, "hash length")
	testutil.RequireTrue(t, ProjectHash("/work/project-b") != first, "distinct paths should hash differently")
}

func TestListNewestFirst(t *testing.T) {
	store := tempStore(t)

	for _, sessionID := range []string{"session-old", "session-mid", "session-new"} {
		testutil.RequireNoError(t, store.Append(sessionID, messages.NewResult(sessionID)), "append "+sessionID)
	}

	base := time.Now().Add(-time.Hour)
	for index, sessionID := range []string{"session-old", "session-mid", "session-new"} {
		stamp := base.Add(time.Duration(index) * time.Minute)
		err := os.Chtimes(store.TranscriptPath(sessionID), stamp, stamp)
		testutil.RequireNoError(t, err, "set modtime")
	}

	listed, err := store.List(0)
	testutil.RequireNoError(t, err, "list sessions")
	testutil.RequireEqual(t, listed, []string{"session-new", "session-mid", "session-old"}, "newest first")

	limited, err := store.List(2)
	testutil.RequireNoError(t, err, "list limited")
	testutil.RequireEqual(t, limited, []string{"session-new", "session-mid"}, "limit applies after sorting")
}

func TestListWithoutTranscriptsDir(t *testing.T) {
	store := &Store{BaseDir: filepath.Join(t.TempDir(), "never-created")}
	listed, err := store.List(10)
	testutil.RequireNoError(t, err, "list on empty store")
	testutil.RequireEqual(t, len(listed), 0, "no sessions expected")
}
